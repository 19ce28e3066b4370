package miner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solfixes/solfixes/internal/metrics"
	"github.com/solfixes/solfixes/pkg/config"
	"github.com/solfixes/solfixes/pkg/dataset"
	"github.com/solfixes/solfixes/pkg/detectors"
	"github.com/solfixes/solfixes/pkg/solidity"
)

// PatchMiner is the mining stage: it walks each repository's default branch
// oldest-first, rescans contracts the commits changed, and records findings
// that disappeared as fixed vulnerabilities attributed to the fixing commit.
type PatchMiner struct {
	config  *config.Config
	hub     GitHubClient
	git     GitClient
	scanner *Scanner
	logger  *zap.Logger

	mu     sync.Mutex
	writer *dataset.PatchWriter
}

func NewPatchMiner(cfg *config.Config, hub GitHubClient, git GitClient, scanner *Scanner, logger *zap.Logger) *PatchMiner {
	return &PatchMiner{
		config:  cfg,
		hub:     hub,
		git:     git,
		scanner: scanner,
		logger:  logger.Named("patches"),
	}
}

// fileFindings is one file's recorded findings, keyed by detector name and
// finding fingerprint.
type fileFindings map[string]map[string]detectors.Finding

func findingsState(scan *FileScan) fileFindings {
	state := make(fileFindings, len(scan.Findings))
	for det, findings := range scan.Findings {
		byFp := make(map[string]detectors.Finding, len(findings))
		for _, f := range findings {
			byFp[f.Fingerprint] = f
		}
		state[det] = byFp
	}
	return state
}

// Run mines every recorded repository that has no patch rows yet.
func (m *PatchMiner) Run(ctx context.Context) error {
	names, err := recordedRepos(m.config)
	if err != nil {
		return err
	}

	tablePath := filepath.Join(m.config.Dataset.Dir, dataset.PatchesFile)
	existing, err := dataset.ReadPatches(tablePath)
	if err != nil {
		return fmt.Errorf("failed to load patch table: %w", err)
	}
	done := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		done[p.RepoName] = struct{}{}
	}

	m.writer, err = dataset.NewPatchWriter(tablePath)
	if err != nil {
		return err
	}
	defer func() { _ = m.writer.Close() }()

	var todo []string
	for _, name := range names {
		if _, ok := done[name]; !ok {
			todo = append(todo, name)
		}
	}

	runPool(ctx, m.config.Miner.Workers, todo, m.mine)
	return ctx.Err()
}

func (m *PatchMiner) mine(ctx context.Context, fullName string) {
	logger := m.logger.With(zap.String("repo", fullName))

	checkout, err := m.git.Clone(ctx, m.config.Dataset.ClonesDir, fullName)
	if err != nil {
		logger.Error("Clone failed", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("patches", "git").Inc()
		return
	}

	branch, err := m.git.DefaultBranch(ctx, checkout)
	if err != nil {
		logger.Error("Default branch lookup failed", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("patches", "git").Inc()
		return
	}

	commits, err := m.git.Commits(ctx, checkout, branch)
	if err != nil {
		logger.Error("History listing failed", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("patches", "git").Inc()
		return
	}
	if len(commits) < 2 {
		logger.Info("Single-commit history, nothing to diff")
		return
	}

	remaps, err := solidity.FindRemappings(checkout)
	if err != nil {
		logger.Warn("Remapping discovery failed", zap.Error(err))
	}

	logs, err := m.scanner.OpenTranscripts(fullName, time.Now())
	if err != nil {
		logger.Error("Transcript open failed", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("patches", "internal").Inc()
		return
	}
	defer logs.Close()

	state, err := m.baseline(ctx, checkout, commits[0], remaps, logs, logger)
	if err != nil {
		logger.Error("Baseline scan failed", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("patches", "internal").Inc()
		return
	}

	pending := []string{commits[0]}
	rows := 0
	for _, commit := range commits[1:] {
		if ctx.Err() != nil {
			return
		}
		pending = append(pending, commit)

		changed, err := m.git.ChangedFiles(ctx, checkout, commit)
		if err != nil {
			logger.Error("Changed-file listing failed",
				zap.String("commit", commit),
				zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("patches", "git").Inc()
			return
		}

		var contracts []string
		for _, path := range changed {
			if solidity.ScannablePath(path) {
				contracts = append(contracts, path)
			}
		}
		metrics.CommitsScanned.Inc()
		if len(contracts) == 0 {
			continue
		}

		if err := m.git.Checkout(ctx, checkout, commit); err != nil {
			logger.Error("Checkout failed",
				zap.String("commit", commit),
				zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("patches", "git").Inc()
			return
		}

		emitted := false
		for _, file := range contracts {
			fixed := m.rescan(ctx, checkout, file, remaps, state, logs, logger)
			if len(fixed) == 0 {
				continue
			}
			if n := m.record(ctx, fullName, commit, file, pending, fixed, logger); n > 0 {
				rows += n
				emitted = true
			}
		}
		if emitted {
			pending = nil
		}
	}

	logger.Info("Repository mined",
		zap.Int("commits", len(commits)),
		zap.Int("rows", rows))
}

// baseline scans every candidate contract at the first commit, seeding the
// per-file finding state the walk diffs against.
func (m *PatchMiner) baseline(ctx context.Context, checkout, first string, remaps []string, logs Transcripts, logger *zap.Logger) (map[string]fileFindings, error) {
	if err := m.git.Checkout(ctx, checkout, first); err != nil {
		return nil, err
	}

	files, err := solidity.FindContractFiles(checkout)
	if err != nil {
		return nil, err
	}

	state := make(map[string]fileFindings)
	for _, abs := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rel, err := filepath.Rel(checkout, abs)
		if err != nil {
			return nil, err
		}

		scan, err := m.scanner.ScanFile(ctx, checkout, rel, remaps, logs)
		if err != nil {
			if !errors.Is(err, solidity.ErrNoCompatibleVersion) {
				logger.Warn("Baseline scan skipped file",
					zap.String("file", rel),
					zap.Error(err))
			}
			continue
		}
		state[rel] = findingsState(scan)
	}
	metrics.CommitsScanned.Inc()
	return state, nil
}

// rescan scans one changed file and diffs it against the recorded state.
// The returned findings were present at the previous scanned revision and
// are gone now. Deleted and no-longer-scannable files drop their state
// without producing fixes.
func (m *PatchMiner) rescan(ctx context.Context, checkout, file string, remaps []string, state map[string]fileFindings, logs Transcripts, logger *zap.Logger) []detectors.Finding {
	prev, known := state[file]

	if _, err := os.Stat(filepath.Join(checkout, file)); err != nil {
		delete(state, file)
		return nil
	}

	scan, err := m.scanner.ScanFile(ctx, checkout, file, remaps, logs)
	if err != nil {
		if !errors.Is(err, solidity.ErrNoCompatibleVersion) {
			logger.Warn("Rescan skipped file",
				zap.String("file", file),
				zap.Error(err))
		}
		delete(state, file)
		return nil
	}

	cur := findingsState(scan)
	var fixed []detectors.Finding
	if known {
		for det, prevByFp := range prev {
			if scan.Failed[det] {
				// A failed run voids the comparison for this
				// detector; its state is dropped rather than
				// carried into a later misattribution.
				continue
			}
			curByFp := cur[det]
			for fp, finding := range prevByFp {
				if _, still := curByFp[fp]; !still {
					fixed = append(fixed, finding)
				}
			}
		}
	}
	state[file] = cur
	return fixed
}

// record appends one patch row per fixed (contract, function) pair.
func (m *PatchMiner) record(ctx context.Context, fullName, commit, file string, span []string, fixed []detectors.Finding, logger *zap.Logger) int {
	type patchKey struct {
		contract string
		function string
	}

	groups := make(map[patchKey]map[string][]dataset.Vulnerability)
	for _, f := range fixed {
		if f.Contract == "" {
			// Without a contract the finding cannot be attributed.
			continue
		}
		key := patchKey{contract: f.Contract, function: f.Function}
		byDet := groups[key]
		if byDet == nil {
			byDet = make(map[string][]dataset.Vulnerability)
			groups[key] = byDet
		}
		byDet[f.Detector] = append(byDet[f.Detector], dataset.Vulnerability{
			Kind:      f.Kind,
			Locations: toLocations(f.Locations),
		})
	}
	if len(groups) == 0 {
		return 0
	}

	prid, merged, err := m.hub.PullRequestForCommit(ctx, fullName, commit)
	if err != nil {
		logger.Warn("Pull request lookup failed",
			zap.String("commit", commit),
			zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("patches", "github").Inc()
		prid, merged = 0, false
	}

	var pridPtr *int
	var issueIDs []int
	if prid > 0 {
		pridPtr = &prid
		issueIDs, err = m.issueRefs(fullName, prid)
		if err != nil {
			logger.Warn("Issue reference scan failed",
				zap.Int("prid", prid),
				zap.Error(err))
		}
	}

	keys := make([]patchKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].contract != keys[j].contract {
			return keys[i].contract < keys[j].contract
		}
		return keys[i].function < keys[j].function
	})

	commits := append([]string(nil), span...)
	rows := 0
	for _, key := range keys {
		row := dataset.Patch{
			RepoName:        fullName,
			PRID:            pridPtr,
			IssueIDs:        issueIDs,
			Commits:         commits,
			Merged:          merged,
			ContractName:    key.contract,
			FunctionName:    key.function,
			FilePath:        file,
			Vulnerabilities: dataset.GroupFindings(m.scanner.Order(), groups[key]),
		}

		m.mu.Lock()
		err := m.writer.Append(&row)
		m.mu.Unlock()
		if err != nil {
			logger.Error("Row append failed", zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("patches", "internal").Inc()
			continue
		}
		metrics.PatchesRecorded.Inc()
		rows++
	}

	logger.Info("Fix recorded",
		zap.String("commit", commit),
		zap.String("file", file),
		zap.Int("rows", rows))
	return rows
}

// issueRefs lists the collected issues of a repository whose text mentions
// the pull request, ascending by issue number.
func (m *PatchMiner) issueRefs(fullName string, prid int) ([]int, error) {
	dir := issuesDir(m.config, fullName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	// The trailing non-digit keeps #12 from matching inside #123.
	ref := regexp.MustCompile("#" + strconv.Itoa(prid) + `(\D|$)`)

	var ids []int
	for _, entry := range entries {
		base, ok := strings.CutSuffix(entry.Name(), ".txt")
		if !ok {
			continue
		}
		sep := strings.LastIndex(base, "_")
		if sep < 0 {
			continue
		}
		id, err := strconv.Atoi(base[sep+1:])
		if err != nil {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if ref.Match(content) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func toLocations(locations [][]int) []dataset.Location {
	out := make([]dataset.Location, len(locations))
	for i, group := range locations {
		out[i] = dataset.Location(group)
	}
	return out
}
