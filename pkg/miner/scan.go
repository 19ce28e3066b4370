package miner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	goversion "github.com/hashicorp/go-version"

	"github.com/solfixes/solfixes/internal/metrics"
	"github.com/solfixes/solfixes/pkg/detectors"
	"github.com/solfixes/solfixes/pkg/detlog"
	"github.com/solfixes/solfixes/pkg/solidity"
)

// Scanner runs every configured detector over single files of a repository
// checkout, appending raw tool output to the detector transcripts.
type Scanner struct {
	detectors  []detectors.Detector
	toolchain  Toolchain
	book       *detlog.Book
	minVersion *goversion.Version
	timeout    time.Duration
	logger     *zap.Logger
}

func NewScanner(dets []detectors.Detector, toolchain Toolchain, book *detlog.Book, minVersion *goversion.Version, logger *zap.Logger) *Scanner {
	return &Scanner{
		detectors:  dets,
		toolchain:  toolchain,
		book:       book,
		minVersion: minVersion,
		logger:     logger.Named("scanner"),
	}
}

// SetScanTimeout bounds every individual detector run. Zero leaves runs
// unbounded.
func (s *Scanner) SetScanTimeout(timeout time.Duration) {
	s.timeout = timeout
}

func (s *Scanner) scanContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Order returns the detector names in the order cell entries are emitted.
func (s *Scanner) Order() []string {
	names := make([]string, len(s.detectors))
	for i, d := range s.detectors {
		names[i] = d.Name()
	}
	return names
}

// Transcripts is the set of open per-detector log files for one repository
// scan.
type Transcripts map[string]*detlog.Log

// OpenTranscripts starts one log per detector for a repository scan.
func (s *Scanner) OpenTranscripts(repoFullName string, start time.Time) (Transcripts, error) {
	logs := make(Transcripts, len(s.detectors))
	for _, d := range s.detectors {
		l, err := s.book.Open(d.Name(), repoFullName, start)
		if err != nil {
			logs.Close()
			return nil, err
		}
		logs[d.Name()] = l
	}
	return logs, nil
}

func (t Transcripts) Close() {
	for _, l := range t {
		_ = l.Close()
	}
}

// FileScan is the outcome of scanning one file at one revision.
type FileScan struct {
	// Version is the compiler release the scan ran under.
	Version string
	// Findings holds each detector's normalized findings, keyed by
	// detector name. A detector whose run failed has no key here.
	Findings map[string][]detectors.Finding
	// Failed names the detectors whose run errored at this revision.
	Failed map[string]bool
}

// ScanFile runs every detector over one file at the current checkout. The
// compiler release is picked from the file's pragma; files whose pragma lies
// below the supported floor return solidity.ErrNoCompatibleVersion.
func (s *Scanner) ScanFile(ctx context.Context, dir, file string, remaps []string, logs Transcripts) (*FileScan, error) {
	content, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return nil, fmt.Errorf("read contract: %w", err)
	}

	version, err := solidity.VersionFromPragma(solidity.ExtractPragma(content), s.minVersion)
	if err != nil {
		return nil, err
	}
	if err := s.toolchain.EnsureVersion(ctx, version); err != nil {
		return nil, err
	}

	// A failed AST parse still leaves line-text fingerprints working, so
	// the scan proceeds with unknown function attribution.
	ast, err := s.toolchain.AST(ctx, dir, file, version, remaps)
	if err != nil {
		s.logger.Warn("AST parse failed",
			zap.String("file", file),
			zap.Error(err))
	}
	src := solidity.NewSource(file, content, ast)

	scan := &FileScan{
		Version:  version,
		Findings: make(map[string][]detectors.Finding, len(s.detectors)),
		Failed:   make(map[string]bool),
	}

	job := detectors.ScanJob{Dir: dir, File: file, Source: src, Version: version, Remaps: remaps}
	for _, d := range s.detectors {
		start := time.Now()
		runCtx, cancel := s.scanContext(ctx)
		result, err := d.Scan(runCtx, job)
		cancel()
		metrics.DetectorDuration.WithLabelValues(d.Name()).Observe(time.Since(start).Seconds())

		if log, ok := logs[d.Name()]; ok && result != nil {
			log.Printf("=== %s %s (solc %s) ===", d.Name(), file, version)
			log.Output(result.Stdout, result.Stderr)
		}

		if err != nil {
			metrics.DetectorRuns.WithLabelValues(d.Name(), "error").Inc()
			scan.Failed[d.Name()] = true
			s.logger.Warn("Detector run failed",
				zap.String("detector", d.Name()),
				zap.String("file", file),
				zap.Error(err))
			continue
		}
		metrics.DetectorRuns.WithLabelValues(d.Name(), "ok").Inc()
		scan.Findings[d.Name()] = result.Findings
	}

	return scan, nil
}
