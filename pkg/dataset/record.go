// Package dataset defines the records, cell grammar and file conventions of
// the vulnerability-patch dataset: three CSV tables (Repos.csv, Patches.csv,
// Contracts.csv) plus per-detector log folders.
package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Table file names inside the dataset directory.
const (
	ReposFile     = "Repos.csv"
	PatchesFile   = "Patches.csv"
	ContractsFile = "Contracts.csv"
)

// Cell time layouts. InspectionTimeLayout keeps microsecond precision with a
// space separator; ActivityTimeLayout is the UTC form GitHub reports.
const (
	InspectionTimeLayout = "2006-01-02 15:04:05.000000"
	ActivityTimeLayout   = "2006-01-02T15:04:05Z"
)

// Column orders of the three tables, as written to the header row.
var (
	RepoFields = []string{
		"RepoName", "#Stars", "#Watchers", "InspectionTime", "LastActivityTime", "#ContractFiles",
	}
	PatchFields = []string{
		"RepoName", "PRID", "IssueIDs", "Commits", "Merged", "ContractName",
		"FunctionName", "ContractFilePath", "Vulnerabilities",
	}
	ContractFields = []string{
		"RepoName", "ContractName", "CommitHashes", "ContractFilePath",
		"DeploymentAddress", "SOLC-Version", "Vulnerabilities",
	}
)

// Merged column literals.
const (
	MergedTrue  = "True"
	MergedFalse = "False"
)

// Repo is a row of Repos.csv: one inspected GitHub repository.
type Repo struct {
	RepoName       string    `validate:"required,contains=/"`
	Stars          int       `validate:"min=0"`
	Watchers       int       `validate:"min=0"`
	InspectionTime time.Time `validate:"required"`
	LastActivity   time.Time `validate:"required"`
	ContractFiles  int       `validate:"min=1"`
}

// MarshalRow renders the record in RepoFields order.
func (r *Repo) MarshalRow() []string {
	return []string{
		r.RepoName,
		strconv.Itoa(r.Stars),
		strconv.Itoa(r.Watchers),
		r.InspectionTime.Format(InspectionTimeLayout),
		r.LastActivity.UTC().Format(ActivityTimeLayout),
		strconv.Itoa(r.ContractFiles),
	}
}

// UnmarshalRow parses a row in RepoFields order.
func (r *Repo) UnmarshalRow(row []string) error {
	if len(row) != len(RepoFields) {
		return fmt.Errorf("expected %d columns, got %d", len(RepoFields), len(row))
	}

	var err error
	r.RepoName = row[0]

	if r.Stars, err = strconv.Atoi(row[1]); err != nil {
		return fmt.Errorf("invalid #Stars %q: %w", row[1], err)
	}
	if r.Watchers, err = strconv.Atoi(row[2]); err != nil {
		return fmt.Errorf("invalid #Watchers %q: %w", row[2], err)
	}
	if r.InspectionTime, err = ParseInspectionTime(row[3]); err != nil {
		return fmt.Errorf("invalid InspectionTime %q: %w", row[3], err)
	}
	if r.LastActivity, err = time.Parse(ActivityTimeLayout, row[4]); err != nil {
		return fmt.Errorf("invalid LastActivityTime %q: %w", row[4], err)
	}
	if r.ContractFiles, err = strconv.Atoi(row[5]); err != nil {
		return fmt.Errorf("invalid #ContractFiles %q: %w", row[5], err)
	}
	return nil
}

// ParseInspectionTime accepts the inspection layout with or without the
// fractional part, which vanishes when a timestamp lands on a whole second.
func ParseInspectionTime(s string) (time.Time, error) {
	t, err := time.Parse(InspectionTimeLayout, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}

// Patch is a row of Patches.csv: one fixed (contract, function) pair with the
// vulnerabilities that disappeared.
//
// A nil PRID means the fixing commit reached the default branch without a
// pull request and is written as the null literal. FunctionName is empty for
// the fallback or receive function and the literal "constructor" for
// constructors.
type Patch struct {
	RepoName        string   `validate:"required,contains=/"`
	PRID            *int     `validate:"omitempty,min=1"`
	IssueIDs        []int    `validate:"dive,min=1"`
	Commits         []string `validate:"required,dive,hexadecimal,len=40"`
	Merged          bool
	ContractName    string   `validate:"required"`
	FunctionName    string
	FilePath        string   `validate:"required"`
	Vulnerabilities []Entry
}

// MarshalRow renders the record in PatchFields order.
func (p *Patch) MarshalRow() []string {
	prid := NullLiteral
	if p.PRID != nil {
		prid = strconv.Itoa(*p.PRID)
	}

	issues := NullLiteral
	if len(p.IssueIDs) > 0 {
		parts := make([]string, len(p.IssueIDs))
		for i, id := range p.IssueIDs {
			parts[i] = strconv.Itoa(id)
		}
		issues = strings.Join(parts, ";")
	}

	merged := MergedFalse
	if p.Merged {
		merged = MergedTrue
	}

	return []string{
		p.RepoName,
		prid,
		issues,
		strings.Join(p.Commits, ";"),
		merged,
		p.ContractName,
		p.FunctionName,
		p.FilePath,
		FormatCell(p.Vulnerabilities),
	}
}

// UnmarshalRow parses a row in PatchFields order.
func (p *Patch) UnmarshalRow(row []string) error {
	if len(row) != len(PatchFields) {
		return fmt.Errorf("expected %d columns, got %d", len(PatchFields), len(row))
	}

	p.RepoName = row[0]

	p.PRID = nil
	if row[1] != NullLiteral {
		id, err := strconv.Atoi(row[1])
		if err != nil {
			return fmt.Errorf("invalid PRID %q: %w", row[1], err)
		}
		p.PRID = &id
	}

	p.IssueIDs = nil
	if row[2] != NullLiteral && row[2] != "" {
		for _, part := range strings.Split(row[2], ";") {
			id, err := strconv.Atoi(part)
			if err != nil {
				return fmt.Errorf("invalid issue id %q: %w", part, err)
			}
			p.IssueIDs = append(p.IssueIDs, id)
		}
	}

	p.Commits = splitList(row[3])

	switch row[4] {
	case MergedTrue:
		p.Merged = true
	case MergedFalse:
		p.Merged = false
	default:
		return fmt.Errorf("invalid Merged %q: want %q or %q", row[4], MergedTrue, MergedFalse)
	}

	p.ContractName = row[5]
	p.FunctionName = row[6]
	p.FilePath = row[7]

	entries, err := ParseCell(row[8])
	if err != nil {
		return fmt.Errorf("invalid Vulnerabilities cell: %w", err)
	}
	p.Vulnerabilities = entries
	return nil
}

// Contract is a row of Contracts.csv: one repository contract matched to a
// verified deployment address. CommitHashes and SolcVersions run in parallel,
// one version per matching compile.
type Contract struct {
	RepoName          string   `validate:"required,contains=/"`
	ContractName      string   `validate:"required"`
	CommitHashes      []string `validate:"required,dive,hexadecimal,len=40"`
	FilePath          string   `validate:"required"`
	DeploymentAddress string   `validate:"required,eth_addr"`
	SolcVersions      []string `validate:"required,dive,solc_version"`
	Vulnerabilities   []Entry
}

// MarshalRow renders the record in ContractFields order.
func (c *Contract) MarshalRow() []string {
	return []string{
		c.RepoName,
		c.ContractName,
		strings.Join(c.CommitHashes, ";"),
		c.FilePath,
		c.DeploymentAddress,
		strings.Join(c.SolcVersions, ";"),
		FormatCell(c.Vulnerabilities),
	}
}

// UnmarshalRow parses a row in ContractFields order.
func (c *Contract) UnmarshalRow(row []string) error {
	if len(row) != len(ContractFields) {
		return fmt.Errorf("expected %d columns, got %d", len(ContractFields), len(row))
	}

	c.RepoName = row[0]
	c.ContractName = row[1]
	c.CommitHashes = splitList(row[2])
	c.FilePath = row[3]
	c.DeploymentAddress = row[4]
	c.SolcVersions = splitList(row[5])

	entries, err := ParseCell(row[6])
	if err != nil {
		return fmt.Errorf("invalid Vulnerabilities cell: %w", err)
	}
	c.Vulnerabilities = entries
	return nil
}

func splitList(cell string) []string {
	if cell == "" {
		return nil
	}
	return strings.Split(cell, ";")
}
