package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Conformance check names.
const (
	CheckReferentialIntegrity = "referential-integrity"
	CheckVulnerabilityGrammar = "vulnerability-grammar"
	CheckMergedLiteral        = "merged-literal"
	CheckLogNaming            = "log-naming"
	CheckRowSchema            = "row-schema"
)

// Violation is one failed conformance check.
type Violation struct {
	Check   string
	File    string
	Line    int // 1-based file line, 0 when the violation is not row-scoped
	Message string
}

// Report is the outcome of validating a dataset directory.
type Report struct {
	RowsChecked map[string]int
	LogsChecked int
	Violations  []Violation
}

// OK reports whether every check passed.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

// Counts returns the number of violations per check.
func (r *Report) Counts() map[string]int {
	counts := make(map[string]int)
	for _, v := range r.Violations {
		counts[v.Check]++
	}
	return counts
}

func (r *Report) add(check, file string, line int, format string, args ...any) {
	r.Violations = append(r.Violations, Violation{
		Check:   check,
		File:    file,
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	})
}

var solcVersionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// newRecordValidator builds the struct validator for record field checks.
func newRecordValidator() *validator.Validate {
	validate := validator.New()

	// Compiler versions are recorded bare, without the v prefix or commit suffix.
	_ = validate.RegisterValidation("solc_version", func(fl validator.FieldLevel) bool {
		return solcVersionPattern.MatchString(fl.Field().String())
	})

	return validate
}

type record interface {
	UnmarshalRow(row []string) error
}

// ValidateDataset runs the schema-conformance checks against a dataset
// directory: referential integrity of RepoName across tables, the
// vulnerability-cell grammar, the Merged literals, row schemas, and, when
// logsRoot is non-empty, detector log naming.
func ValidateDataset(dir, logsRoot string) (*Report, error) {
	rep := &Report{RowsChecked: make(map[string]int)}
	validate := newRecordValidator()

	repoRows := loadRows(rep, filepath.Join(dir, ReposFile), RepoFields)
	patchRows := loadRows(rep, filepath.Join(dir, PatchesFile), PatchFields)
	contractRows := loadRows(rep, filepath.Join(dir, ContractsFile), ContractFields)

	repoNames := make(map[string]struct{}, len(repoRows))
	for _, row := range repoRows {
		if len(row) > 0 {
			repoNames[row[0]] = struct{}{}
		}
	}

	checkRows(rep, validate, ReposFile, repoRows, RepoFields, func() record { return &Repo{} }, nil)

	checkRows(rep, validate, PatchesFile, patchRows, PatchFields, func() record { return &Patch{} },
		func(line int, row []string) {
			checkRepoName(rep, PatchesFile, line, row[0], repoNames)
			if row[4] != MergedTrue && row[4] != MergedFalse {
				rep.add(CheckMergedLiteral, PatchesFile, line, "Merged is %q, want %q or %q", row[4], MergedTrue, MergedFalse)
			}
			checkCell(rep, PatchesFile, line, row[8])
		})

	checkRows(rep, validate, ContractsFile, contractRows, ContractFields, func() record { return &Contract{} },
		func(line int, row []string) {
			checkRepoName(rep, ContractsFile, line, row[0], repoNames)
			checkCell(rep, ContractsFile, line, row[6])
		})

	if logsRoot != "" {
		if err := checkLogs(rep, logsRoot); err != nil {
			return nil, err
		}
	}

	return rep, nil
}

func loadRows(rep *Report, path string, fields []string) [][]string {
	rows, err := readTable(path, fields)
	if err != nil {
		rep.add(CheckRowSchema, filepath.Base(path), 0, "%v", err)
		return nil
	}
	rep.RowsChecked[filepath.Base(path)] = len(rows)
	return rows
}

func checkRows(rep *Report, validate *validator.Validate, file string, rows [][]string,
	fields []string, newRecord func() record, perRow func(line int, row []string)) {
	for i, row := range rows {
		line := i + 2

		if len(row) != len(fields) {
			rep.add(CheckRowSchema, file, line, "expected %d columns, got %d", len(fields), len(row))
			continue
		}

		if perRow != nil {
			perRow(line, row)
		}

		rec := newRecord()
		if err := rec.UnmarshalRow(row); err != nil {
			rep.add(CheckRowSchema, file, line, "%v", err)
			continue
		}
		if err := validate.Struct(rec); err != nil {
			rep.add(CheckRowSchema, file, line, "%v", err)
		}
	}
}

func checkRepoName(rep *Report, file string, line int, name string, repoNames map[string]struct{}) {
	if _, ok := repoNames[name]; !ok {
		rep.add(CheckReferentialIntegrity, file, line, "RepoName %q not present in %s", name, ReposFile)
	}
}

func checkCell(rep *Report, file string, line int, cell string) {
	if _, err := ParseCell(cell); err != nil {
		rep.add(CheckVulnerabilityGrammar, file, line, "%v", err)
	}
}

// checkLogs walks one folder per detector under logsRoot and checks every
// log file name. Folder READMEs are exempt.
func checkLogs(rep *Report, logsRoot string) error {
	detectors, err := os.ReadDir(logsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read logs directory: %w", err)
	}

	for _, d := range detectors {
		if !d.IsDir() {
			rep.add(CheckLogNaming, d.Name(), 0, "unexpected file outside a detector folder")
			continue
		}

		files, err := os.ReadDir(filepath.Join(logsRoot, d.Name()))
		if err != nil {
			return fmt.Errorf("read detector folder %s: %w", d.Name(), err)
		}

		for _, f := range files {
			if f.IsDir() {
				rep.add(CheckLogNaming, filepath.Join(d.Name(), f.Name()), 0, "unexpected directory in a detector folder")
				continue
			}
			if f.Name() == "README.md" {
				continue
			}

			rep.LogsChecked++
			if _, _, err := ParseLogFilename(f.Name()); err != nil {
				rep.add(CheckLogNaming, filepath.Join(d.Name(), f.Name()), 0, "%v", err)
			}
		}
	}

	return nil
}
