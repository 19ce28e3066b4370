package miner

import (
	"context"
	"path/filepath"
	"testing"

	goversion "github.com/hashicorp/go-version"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/solfixes/solfixes/pkg/addrstore"
	"github.com/solfixes/solfixes/pkg/config"
	"github.com/solfixes/solfixes/pkg/detectors"
	"github.com/solfixes/solfixes/pkg/detlog"
	"github.com/solfixes/solfixes/pkg/etherscan"
	"github.com/solfixes/solfixes/pkg/github"
	"github.com/solfixes/solfixes/pkg/solidity"
)

// MockGitHubClient is a mock implementation of GitHubClient
type MockGitHubClient struct {
	SearchRepositoriesFunc   func(ctx context.Context, query string) ([]github.Repo, error)
	HasSolidityFileFunc      func(ctx context.Context, fullName string) (bool, error)
	SubscribersFunc          func(ctx context.Context, fullName string) (int, error)
	IssuesFunc               func(ctx context.Context, fullName string) ([]github.Issue, error)
	IssueCommentsFunc        func(ctx context.Context, fullName string, number int) ([]string, error)
	PullRequestForCommitFunc func(ctx context.Context, fullName, sha string) (int, bool, error)
}

func (m *MockGitHubClient) SearchRepositories(ctx context.Context, query string) ([]github.Repo, error) {
	if m.SearchRepositoriesFunc != nil {
		return m.SearchRepositoriesFunc(ctx, query)
	}
	return nil, nil
}

func (m *MockGitHubClient) HasSolidityFile(ctx context.Context, fullName string) (bool, error) {
	if m.HasSolidityFileFunc != nil {
		return m.HasSolidityFileFunc(ctx, fullName)
	}
	return false, nil
}

func (m *MockGitHubClient) Subscribers(ctx context.Context, fullName string) (int, error) {
	if m.SubscribersFunc != nil {
		return m.SubscribersFunc(ctx, fullName)
	}
	return 0, nil
}

func (m *MockGitHubClient) Issues(ctx context.Context, fullName string) ([]github.Issue, error) {
	if m.IssuesFunc != nil {
		return m.IssuesFunc(ctx, fullName)
	}
	return nil, nil
}

func (m *MockGitHubClient) IssueComments(ctx context.Context, fullName string, number int) ([]string, error) {
	if m.IssueCommentsFunc != nil {
		return m.IssueCommentsFunc(ctx, fullName, number)
	}
	return nil, nil
}

func (m *MockGitHubClient) PullRequestForCommit(ctx context.Context, fullName, sha string) (int, bool, error) {
	if m.PullRequestForCommitFunc != nil {
		return m.PullRequestForCommitFunc(ctx, fullName, sha)
	}
	return 0, false, nil
}

// MockGitClient is a mock implementation of GitClient
type MockGitClient struct {
	CloneFunc         func(ctx context.Context, dataDir, fullName string) (string, error)
	DefaultBranchFunc func(ctx context.Context, dir string) (string, error)
	CheckoutFunc      func(ctx context.Context, dir, ref string) error
	CommitsFunc       func(ctx context.Context, dir, ref string) ([]string, error)
	FileCommitsFunc   func(ctx context.Context, dir, path string) ([]string, error)
	ChangedFilesFunc  func(ctx context.Context, dir, commit string) ([]string, error)
}

func (m *MockGitClient) Clone(ctx context.Context, dataDir, fullName string) (string, error) {
	if m.CloneFunc != nil {
		return m.CloneFunc(ctx, dataDir, fullName)
	}
	return "", nil
}

func (m *MockGitClient) DefaultBranch(ctx context.Context, dir string) (string, error) {
	if m.DefaultBranchFunc != nil {
		return m.DefaultBranchFunc(ctx, dir)
	}
	return "main", nil
}

func (m *MockGitClient) Checkout(ctx context.Context, dir, ref string) error {
	if m.CheckoutFunc != nil {
		return m.CheckoutFunc(ctx, dir, ref)
	}
	return nil
}

func (m *MockGitClient) Commits(ctx context.Context, dir, ref string) ([]string, error) {
	if m.CommitsFunc != nil {
		return m.CommitsFunc(ctx, dir, ref)
	}
	return nil, nil
}

func (m *MockGitClient) FileCommits(ctx context.Context, dir, path string) ([]string, error) {
	if m.FileCommitsFunc != nil {
		return m.FileCommitsFunc(ctx, dir, path)
	}
	return nil, nil
}

func (m *MockGitClient) ChangedFiles(ctx context.Context, dir, commit string) ([]string, error) {
	if m.ChangedFilesFunc != nil {
		return m.ChangedFilesFunc(ctx, dir, commit)
	}
	return nil, nil
}

// MockToolchain is a mock implementation of Toolchain
type MockToolchain struct {
	EnsureVersionFunc  func(ctx context.Context, version string) error
	ASTFunc            func(ctx context.Context, dir, file, version string, remaps []string) (gjson.Result, error)
	CompileRuntimeFunc func(ctx context.Context, dir, file, contract string, opts solidity.CompileOptions) (string, error)
}

func (m *MockToolchain) EnsureVersion(ctx context.Context, version string) error {
	if m.EnsureVersionFunc != nil {
		return m.EnsureVersionFunc(ctx, version)
	}
	return nil
}

func (m *MockToolchain) AST(ctx context.Context, dir, file, version string, remaps []string) (gjson.Result, error) {
	if m.ASTFunc != nil {
		return m.ASTFunc(ctx, dir, file, version, remaps)
	}
	return gjson.Result{}, nil
}

func (m *MockToolchain) CompileRuntime(ctx context.Context, dir, file, contract string, opts solidity.CompileOptions) (string, error) {
	if m.CompileRuntimeFunc != nil {
		return m.CompileRuntimeFunc(ctx, dir, file, contract, opts)
	}
	return "", nil
}

// MockEtherscanClient is a mock implementation of EtherscanClient
type MockEtherscanClient struct {
	ContractSourceFunc func(ctx context.Context, address string) (*etherscan.ContractInfo, error)
}

func (m *MockEtherscanClient) ContractSource(ctx context.Context, address string) (*etherscan.ContractInfo, error) {
	if m.ContractSourceFunc != nil {
		return m.ContractSourceFunc(ctx, address)
	}
	return nil, nil
}

// MockChainClient is a mock implementation of ChainClient
type MockChainClient struct {
	RuntimeCodeFunc func(ctx context.Context, address string) (string, error)
}

func (m *MockChainClient) RuntimeCode(ctx context.Context, address string) (string, error) {
	if m.RuntimeCodeFunc != nil {
		return m.RuntimeCodeFunc(ctx, address)
	}
	return "", nil
}

// MockAddressStore is a mock implementation of addrstore.Store
type MockAddressStore struct {
	GetFunc func(ctx context.Context, deploymentAddress string) (*addrstore.Details, error)
	PutFunc func(ctx context.Context, details *addrstore.Details) error
}

func (m *MockAddressStore) Get(ctx context.Context, deploymentAddress string) (*addrstore.Details, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, deploymentAddress)
	}
	return nil, addrstore.ErrAddressNotFound
}

func (m *MockAddressStore) Put(ctx context.Context, details *addrstore.Details) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, details)
	}
	return nil
}

// MockDetector is a mock implementation of detectors.Detector
type MockDetector struct {
	DetectorName string
	ScanFunc     func(ctx context.Context, job detectors.ScanJob) (*detectors.ScanResult, error)
}

func (m *MockDetector) Name() string {
	return m.DetectorName
}

func (m *MockDetector) Scan(ctx context.Context, job detectors.ScanJob) (*detectors.ScanResult, error) {
	if m.ScanFunc != nil {
		return m.ScanFunc(ctx, job)
	}
	return &detectors.ScanResult{}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Dataset: config.DatasetConfig{
			Dir:       filepath.Join(root, "Dataset"),
			LogsDir:   filepath.Join(root, "Logs", "Detector"),
			IssuesDir: filepath.Join(root, "IssuesData"),
			ClonesDir: filepath.Join(root, "Repos"),
		},
		GitHub: config.GitHubConfig{SearchQuery: "smart contract stars:>9"},
		Miner:  config.MinerConfig{Workers: 1, MinSolidityVersion: "0.4.19"},
	}
}

func newTestScanner(t *testing.T, cfg *config.Config, toolchain Toolchain, dets ...detectors.Detector) *Scanner {
	t.Helper()
	minVersion, err := goversion.NewVersion(cfg.Miner.MinSolidityVersion)
	if err != nil {
		t.Fatalf("Failed to parse version floor: %v", err)
	}
	return NewScanner(dets, toolchain, detlog.NewBook(cfg.Dataset.LogsDir), minVersion, zap.NewNop())
}
