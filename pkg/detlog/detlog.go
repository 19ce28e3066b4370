// Package detlog maintains the detector log folders shipped with the
// dataset: one folder per detector holding a README that states the tool
// build and one transcript per repository scan.
package detlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/solfixes/solfixes/pkg/dataset"
)

const readmeName = "README.md"

// Book is the root of the detector log tree.
type Book struct {
	root string
}

func NewBook(root string) *Book {
	return &Book{root: root}
}

// Dir returns the folder holding one detector's transcripts.
func (b *Book) Dir(detector string) string {
	return filepath.Join(b.root, detector)
}

// WriteReadme records which detector build produced the folder's
// transcripts. Any existing README is replaced.
func (b *Book) WriteReadme(detector, version, commit string) error {
	if err := os.MkdirAll(b.Dir(detector), 0o755); err != nil {
		return fmt.Errorf("create detector folder: %w", err)
	}

	build := version
	if commit != "" {
		build = fmt.Sprintf("%s (commit %s)", version, commit)
	}
	body := fmt.Sprintf(`# %s

Scan transcripts produced by %s %s.

One file per scanned repository, named
`+"`username__reponame_timeofexecution.log`"+`.
`, detector, detector, build)

	return os.WriteFile(filepath.Join(b.Dir(detector), readmeName), []byte(body), 0o644)
}

// Open starts the transcript for one repository scan. The file name
// encodes the repository and the scan start time.
func (b *Book) Open(detector, repoFullName string, start time.Time) (*Log, error) {
	if err := os.MkdirAll(b.Dir(detector), 0o755); err != nil {
		return nil, fmt.Errorf("create detector folder: %w", err)
	}

	path := filepath.Join(b.Dir(detector), dataset.LogFilename(repoFullName, start))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	return &Log{f: f}, nil
}

// Log is an open scan transcript. Writes are best-effort: a failed
// transcript line must not abort the scan it describes.
type Log struct {
	f *os.File
}

// Printf appends one line to the transcript.
func (l *Log) Printf(format string, args ...any) {
	fmt.Fprintf(l.f, format+"\n", args...)
}

// Output appends a tool's captured stdout and stderr.
func (l *Log) Output(stdout, stderr []byte) {
	l.f.Write(stdout)
	if len(stdout) > 0 && stdout[len(stdout)-1] != '\n' {
		l.f.Write([]byte{'\n'})
	}
	if len(stderr) > 0 {
		l.f.Write(stderr)
		if stderr[len(stderr)-1] != '\n' {
			l.f.Write([]byte{'\n'})
		}
	}
}

func (l *Log) Close() error {
	return l.f.Close()
}
