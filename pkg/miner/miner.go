// Package miner implements the dataset pipeline stages: repository
// discovery, issue collection, patch mining and contract verification. Each
// stage appends to its CSV table incrementally and skips keys already
// present, so interrupted runs resume where they stopped.
package miner

import (
	"context"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/solfixes/solfixes/internal/metrics"
	"github.com/solfixes/solfixes/pkg/etherscan"
	"github.com/solfixes/solfixes/pkg/github"
	"github.com/solfixes/solfixes/pkg/solidity"
)

// GitHubClient defines the interface for GitHub interactions
type GitHubClient interface {
	SearchRepositories(ctx context.Context, query string) ([]github.Repo, error)
	HasSolidityFile(ctx context.Context, fullName string) (bool, error)
	Subscribers(ctx context.Context, fullName string) (int, error)
	Issues(ctx context.Context, fullName string) ([]github.Issue, error)
	IssueComments(ctx context.Context, fullName string, number int) ([]string, error)
	PullRequestForCommit(ctx context.Context, fullName, sha string) (int, bool, error)
}

// GitClient defines the interface for local repository operations
type GitClient interface {
	Clone(ctx context.Context, dataDir, fullName string) (string, error)
	DefaultBranch(ctx context.Context, dir string) (string, error)
	Checkout(ctx context.Context, dir, ref string) error
	Commits(ctx context.Context, dir, ref string) ([]string, error)
	FileCommits(ctx context.Context, dir, path string) ([]string, error)
	ChangedFiles(ctx context.Context, dir, commit string) ([]string, error)
}

// Toolchain defines the compiler surface the stages depend on
type Toolchain interface {
	EnsureVersion(ctx context.Context, version string) error
	AST(ctx context.Context, dir, file, version string, remaps []string) (gjson.Result, error)
	CompileRuntime(ctx context.Context, dir, file, contract string, opts solidity.CompileOptions) (string, error)
}

// EtherscanClient defines the interface for verified-source lookups
type EtherscanClient interface {
	ContractSource(ctx context.Context, address string) (*etherscan.ContractInfo, error)
}

// ChainClient defines the interface for on-chain bytecode reads
type ChainClient interface {
	RuntimeCode(ctx context.Context, address string) (string, error)
}

// runPool fans jobs out to a fixed pool of workers, tracking the busy-worker
// gauge. Dispatch stops when ctx is cancelled; started jobs run to
// completion.
func runPool(ctx context.Context, workers int, jobs []string, fn func(ctx context.Context, job string)) {
	queue := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				metrics.ActiveWorkers.Inc()
				fn(ctx, job)
				metrics.ActiveWorkers.Dec()
			}
		}()
	}

dispatch:
	for _, job := range jobs {
		select {
		case queue <- job:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(queue)
	wg.Wait()
}
