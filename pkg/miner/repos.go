package miner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goversion "github.com/hashicorp/go-version"
	"go.uber.org/zap"

	"github.com/solfixes/solfixes/internal/metrics"
	"github.com/solfixes/solfixes/pkg/config"
	"github.com/solfixes/solfixes/pkg/dataset"
	"github.com/solfixes/solfixes/pkg/github"
	"github.com/solfixes/solfixes/pkg/solidity"
)

// RepoDiscovery is the discovery stage: it searches GitHub for candidate
// repositories, clones the hits and records the qualifying ones in the
// repository table.
type RepoDiscovery struct {
	config *config.Config
	hub    GitHubClient
	git    GitClient
	logger *zap.Logger

	mu     sync.Mutex
	writer *dataset.RepoWriter
}

func NewRepoDiscovery(cfg *config.Config, hub GitHubClient, git GitClient, logger *zap.Logger) *RepoDiscovery {
	return &RepoDiscovery{
		config: cfg,
		hub:    hub,
		git:    git,
		logger: logger.Named("repos"),
	}
}

// Run searches for repositories and appends one row per qualifying hit.
// Already-recorded and blacklisted repositories are skipped.
func (d *RepoDiscovery) Run(ctx context.Context) error {
	blacklist, err := config.LoadBlacklist(d.config.Miner.BlacklistFile)
	if err != nil {
		return fmt.Errorf("failed to load blacklist: %w", err)
	}

	tablePath := filepath.Join(d.config.Dataset.Dir, dataset.ReposFile)
	recorded, err := dataset.ReadRepos(tablePath)
	if err != nil {
		return fmt.Errorf("failed to load repository table: %w", err)
	}
	done := make(map[string]struct{}, len(recorded))
	for _, r := range recorded {
		done[r.RepoName] = struct{}{}
	}

	minVersion, err := goversion.NewVersion(d.config.Miner.MinSolidityVersion)
	if err != nil {
		return fmt.Errorf("invalid minimum solidity version: %w", err)
	}

	d.writer, err = dataset.NewRepoWriter(tablePath)
	if err != nil {
		return err
	}
	defer func() { _ = d.writer.Close() }()

	hits, err := d.hub.SearchRepositories(ctx, d.config.GitHub.SearchQuery)
	if err != nil {
		return fmt.Errorf("repository search failed: %w", err)
	}
	d.logger.Info("Repository search finished",
		zap.String("query", d.config.GitHub.SearchQuery),
		zap.Int("hits", len(hits)))

	byName := make(map[string]github.Repo, len(hits))
	var names []string
	for _, hit := range hits {
		if _, ok := blacklist[hit.FullName]; ok {
			metrics.ReposInspected.WithLabelValues("skipped").Inc()
			continue
		}
		if _, ok := done[hit.FullName]; ok {
			metrics.ReposInspected.WithLabelValues("skipped").Inc()
			continue
		}
		byName[hit.FullName] = hit
		names = append(names, hit.FullName)
	}

	runPool(ctx, d.config.Miner.Workers, names, func(ctx context.Context, fullName string) {
		d.inspect(ctx, byName[fullName], minVersion)
	})

	return ctx.Err()
}

func (d *RepoDiscovery) inspect(ctx context.Context, hit github.Repo, minVersion *goversion.Version) {
	logger := d.logger.With(zap.String("repo", hit.FullName))

	hasSol, err := d.hub.HasSolidityFile(ctx, hit.FullName)
	if err != nil {
		logger.Error("Solidity presence check failed", zap.Error(err))
		metrics.ReposInspected.WithLabelValues("error").Inc()
		metrics.ErrorsTotal.WithLabelValues("repos", "github").Inc()
		return
	}
	if !hasSol {
		metrics.ReposInspected.WithLabelValues("no_solidity").Inc()
		return
	}

	checkout, err := d.git.Clone(ctx, d.config.Dataset.ClonesDir, hit.FullName)
	if err != nil {
		logger.Error("Clone failed", zap.Error(err))
		metrics.ReposInspected.WithLabelValues("error").Inc()
		metrics.ErrorsTotal.WithLabelValues("repos", "git").Inc()
		return
	}

	qualified, err := d.qualifies(checkout, minVersion)
	if err != nil {
		logger.Error("Pragma inspection failed", zap.Error(err))
		metrics.ReposInspected.WithLabelValues("error").Inc()
		metrics.ErrorsTotal.WithLabelValues("repos", "internal").Inc()
		return
	}
	if !qualified {
		logger.Info("Repository rejected, no contract clears the version floor")
		metrics.ReposInspected.WithLabelValues("unqualified").Inc()
		return
	}

	count, err := solidity.CountContractFiles(checkout)
	if err != nil {
		logger.Error("Contract count failed", zap.Error(err))
		metrics.ReposInspected.WithLabelValues("error").Inc()
		metrics.ErrorsTotal.WithLabelValues("repos", "internal").Inc()
		return
	}

	watchers, err := d.hub.Subscribers(ctx, hit.FullName)
	if err != nil {
		logger.Error("Subscriber lookup failed", zap.Error(err))
		metrics.ReposInspected.WithLabelValues("error").Inc()
		metrics.ErrorsTotal.WithLabelValues("repos", "github").Inc()
		return
	}

	row := dataset.Repo{
		RepoName:       hit.FullName,
		Stars:          hit.Stars,
		Watchers:       watchers,
		InspectionTime: time.Now(),
		LastActivity:   hit.LastActivity,
		ContractFiles:  count,
	}

	d.mu.Lock()
	err = d.writer.Append(&row)
	d.mu.Unlock()
	if err != nil {
		logger.Error("Row append failed", zap.Error(err))
		metrics.ReposInspected.WithLabelValues("error").Inc()
		metrics.ErrorsTotal.WithLabelValues("repos", "internal").Inc()
		return
	}

	logger.Info("Repository recorded",
		zap.Int("stars", hit.Stars),
		zap.Int("watchers", watchers),
		zap.Int("contract_files", count))
	metrics.ReposInspected.WithLabelValues("recorded").Inc()
}

// qualifies reports whether at least one candidate contract's pragma admits
// a supported compiler release.
func (d *RepoDiscovery) qualifies(checkout string, minVersion *goversion.Version) (bool, error) {
	files, err := solidity.FindContractFiles(checkout)
	if err != nil {
		return false, err
	}

	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return false, err
		}
		if _, err := solidity.VersionFromPragma(solidity.ExtractPragma(content), minVersion); err == nil {
			return true, nil
		}
	}
	return false, nil
}
