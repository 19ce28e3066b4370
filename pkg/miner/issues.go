package miner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/solfixes/solfixes/internal/metrics"
	"github.com/solfixes/solfixes/pkg/config"
	"github.com/solfixes/solfixes/pkg/dataset"
)

// IssueCollector is the collection stage: it snapshots every recorded
// repository's issues into per-repo text files, one file per issue.
type IssueCollector struct {
	config *config.Config
	hub    GitHubClient
	logger *zap.Logger
}

func NewIssueCollector(cfg *config.Config, hub GitHubClient, logger *zap.Logger) *IssueCollector {
	return &IssueCollector{
		config: cfg,
		hub:    hub,
		logger: logger.Named("issues"),
	}
}

// Run downloads issue texts for every repository in the repository table.
// Issues already on disk keep their existing snapshot.
func (c *IssueCollector) Run(ctx context.Context) error {
	names, err := recordedRepos(c.config)
	if err != nil {
		return err
	}

	runPool(ctx, c.config.Miner.Workers, names, c.collect)
	return ctx.Err()
}

func (c *IssueCollector) collect(ctx context.Context, fullName string) {
	logger := c.logger.With(zap.String("repo", fullName))

	dir := issuesDir(c.config, fullName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("Issue folder creation failed", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("issues", "internal").Inc()
		return
	}

	issues, err := c.hub.Issues(ctx, fullName)
	if err != nil {
		logger.Error("Issue listing failed", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("issues", "github").Inc()
		return
	}

	_, repoName, _ := strings.Cut(fullName, "/")
	written := 0
	for _, issue := range issues {
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.txt", repoName, issue.Number))
		if _, err := os.Stat(path); err == nil {
			continue
		}

		parts := []string{issue.Title, issue.Body}
		if issue.Comments > 0 {
			comments, err := c.hub.IssueComments(ctx, fullName, issue.Number)
			if err != nil {
				logger.Error("Comment listing failed",
					zap.Int("issue", issue.Number),
					zap.Error(err))
				metrics.ErrorsTotal.WithLabelValues("issues", "github").Inc()
				continue
			}
			parts = append(parts, comments...)
		}

		if err := os.WriteFile(path, []byte(strings.Join(parts, "\n\n")), 0o644); err != nil {
			logger.Error("Issue snapshot failed",
				zap.Int("issue", issue.Number),
				zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("issues", "internal").Inc()
			continue
		}
		written++
	}

	logger.Info("Issues collected",
		zap.Int("issues", len(issues)),
		zap.Int("new_snapshots", written))
}

// issuesDir returns the folder holding one repository's issue snapshots.
func issuesDir(cfg *config.Config, fullName string) string {
	return filepath.Join(cfg.Dataset.IssuesDir, strings.ReplaceAll(fullName, "/", "__"))
}

// recordedRepos lists the repository table's full names minus the
// blacklist, the work list of every stage after discovery.
func recordedRepos(cfg *config.Config) ([]string, error) {
	blacklist, err := config.LoadBlacklist(cfg.Miner.BlacklistFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load blacklist: %w", err)
	}

	repos, err := dataset.ReadRepos(filepath.Join(cfg.Dataset.Dir, dataset.ReposFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load repository table: %w", err)
	}

	names := make([]string, 0, len(repos))
	for _, r := range repos {
		if _, ok := blacklist[r.RepoName]; ok {
			continue
		}
		names = append(names, r.RepoName)
	}
	return names, nil
}
