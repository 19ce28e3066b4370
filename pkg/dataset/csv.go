package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// tableWriter appends rows to one CSV table, creating the file with its
// header row on first use. Every append flushes, so an interrupted run loses
// at most the row being written.
type tableWriter struct {
	path   string
	fields []string
	file   *os.File
	cw     *csv.Writer
}

func newTableWriter(path string, fields []string) (*tableWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create table directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat table %s: %w", path, err)
	}

	w := &tableWriter{path: path, fields: fields, file: file, cw: csv.NewWriter(file)}

	if info.Size() == 0 {
		if err := w.append(fields); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("write header of %s: %w", path, err)
		}
	}

	return w, nil
}

func (w *tableWriter) append(row []string) error {
	if len(row) != len(w.fields) {
		return fmt.Errorf("row has %d columns, table %s has %d", len(row), w.path, len(w.fields))
	}
	if err := w.cw.Write(row); err != nil {
		return err
	}
	w.cw.Flush()
	return w.cw.Error()
}

func (w *tableWriter) Close() error {
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// readTable loads all rows of a table, checking the header. A missing file
// reads as an empty table so stages can resume into a fresh dataset
// directory.
func readTable(path string, fields []string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open table %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	cr := csv.NewReader(file)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	if len(header) != len(fields) {
		return nil, fmt.Errorf("table %s: expected %d header columns, got %d", path, len(fields), len(header))
	}
	for i, name := range fields {
		if header[i] != name {
			return nil, fmt.Errorf("table %s: header column %d is %q, want %q", path, i, header[i], name)
		}
	}

	return records[1:], nil
}

// RepoWriter appends Repo records to Repos.csv.
type RepoWriter struct {
	t *tableWriter
}

func NewRepoWriter(path string) (*RepoWriter, error) {
	t, err := newTableWriter(path, RepoFields)
	if err != nil {
		return nil, err
	}
	return &RepoWriter{t: t}, nil
}

func (w *RepoWriter) Append(r *Repo) error {
	return w.t.append(r.MarshalRow())
}

func (w *RepoWriter) Close() error {
	return w.t.Close()
}

// PatchWriter appends Patch records to Patches.csv.
type PatchWriter struct {
	t *tableWriter
}

func NewPatchWriter(path string) (*PatchWriter, error) {
	t, err := newTableWriter(path, PatchFields)
	if err != nil {
		return nil, err
	}
	return &PatchWriter{t: t}, nil
}

func (w *PatchWriter) Append(p *Patch) error {
	return w.t.append(p.MarshalRow())
}

func (w *PatchWriter) Close() error {
	return w.t.Close()
}

// ContractWriter appends Contract records to Contracts.csv.
type ContractWriter struct {
	t *tableWriter
}

func NewContractWriter(path string) (*ContractWriter, error) {
	t, err := newTableWriter(path, ContractFields)
	if err != nil {
		return nil, err
	}
	return &ContractWriter{t: t}, nil
}

func (w *ContractWriter) Append(c *Contract) error {
	return w.t.append(c.MarshalRow())
}

func (w *ContractWriter) Close() error {
	return w.t.Close()
}

// ReadRepos loads Repos.csv.
func ReadRepos(path string) ([]Repo, error) {
	rows, err := readTable(path, RepoFields)
	if err != nil {
		return nil, err
	}

	repos := make([]Repo, 0, len(rows))
	for i, row := range rows {
		var r Repo
		if err := r.UnmarshalRow(row); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		repos = append(repos, r)
	}
	return repos, nil
}

// ReadPatches loads Patches.csv.
func ReadPatches(path string) ([]Patch, error) {
	rows, err := readTable(path, PatchFields)
	if err != nil {
		return nil, err
	}

	patches := make([]Patch, 0, len(rows))
	for i, row := range rows {
		var p Patch
		if err := p.UnmarshalRow(row); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		patches = append(patches, p)
	}
	return patches, nil
}

// ReadContracts loads Contracts.csv.
func ReadContracts(path string) ([]Contract, error) {
	rows, err := readTable(path, ContractFields)
	if err != nil {
		return nil, err
	}

	contracts := make([]Contract, 0, len(rows))
	for i, row := range rows {
		var c Contract
		if err := c.UnmarshalRow(row); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		contracts = append(contracts, c)
	}
	return contracts, nil
}
