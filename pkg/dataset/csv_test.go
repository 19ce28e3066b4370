package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testRepo(name string, stars int) *Repo {
	return &Repo{
		RepoName:       name,
		Stars:          stars,
		Watchers:       stars / 10,
		InspectionTime: time.Date(2026, 8, 21, 9, 0, 0, 500000000, time.UTC),
		LastActivity:   time.Date(2026, 8, 19, 12, 0, 0, 0, time.UTC),
		ContractFiles:  3,
	}
}

func TestRepoWriterCreatesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), ReposFile)

	w, err := NewRepoWriter(path)
	if err != nil {
		t.Fatalf("NewRepoWriter returned error: %v", err)
	}
	if err := w.Append(testRepo("a/b", 10)); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile returned error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected header plus one row, got %d lines", len(lines))
	}
	if lines[0] != strings.Join(RepoFields, ",") {
		t.Errorf("Unexpected header %q", lines[0])
	}
}

func TestRepoWriterResumesWithoutDuplicateHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), ReposFile)

	w, err := NewRepoWriter(path)
	if err != nil {
		t.Fatalf("NewRepoWriter returned error: %v", err)
	}
	if err := w.Append(testRepo("a/b", 10)); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	// Reopen, as a resumed run would.
	w, err = NewRepoWriter(path)
	if err != nil {
		t.Fatalf("NewRepoWriter on existing table returned error: %v", err)
	}
	if err := w.Append(testRepo("c/d", 20)); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	repos, err := ReadRepos(path)
	if err != nil {
		t.Fatalf("ReadRepos returned error: %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("Expected 2 repos, got %d", len(repos))
	}
	if repos[0].RepoName != "a/b" || repos[1].RepoName != "c/d" {
		t.Errorf("Unexpected repo names %q, %q", repos[0].RepoName, repos[1].RepoName)
	}
}

func TestReadReposMissingFile(t *testing.T) {
	repos, err := ReadRepos(filepath.Join(t.TempDir(), ReposFile))
	if err != nil {
		t.Fatalf("Expected missing table to read as empty, got error: %v", err)
	}
	if len(repos) != 0 {
		t.Errorf("Expected no repos, got %d", len(repos))
	}
}

func TestReadTableRejectsForeignHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), PatchesFile)
	if err := os.WriteFile(path, []byte(strings.Join(RepoFields, ",")+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	if _, err := ReadPatches(path); err == nil {
		t.Error("Expected header mismatch error")
	}
}

func TestPatchTableRoundTripThroughFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), PatchesFile)

	prid := 7
	patch := &Patch{
		RepoName:     "a/b",
		PRID:         &prid,
		IssueIDs:     []int{3},
		Commits:      []string{"ffffffffffffffffffffffffffffffffffffffff"},
		Merged:       true,
		ContractName: "Token",
		FunctionName: "constructor",
		FilePath:     "contracts/Token.sol",
		Vulnerabilities: []Entry{
			{Detectors: []string{"Slither", "Oyente"}, Vulns: []Vulnerability{{Kind: "Reentrancy", Locations: []Location{{5}}}}},
		},
	}

	w, err := NewPatchWriter(path)
	if err != nil {
		t.Fatalf("NewPatchWriter returned error: %v", err)
	}
	if err := w.Append(patch); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	patches, err := ReadPatches(path)
	if err != nil {
		t.Fatalf("ReadPatches returned error: %v", err)
	}
	if len(patches) != 1 {
		t.Fatalf("Expected 1 patch, got %d", len(patches))
	}
	if patches[0].FunctionName != "constructor" {
		t.Errorf("Expected FunctionName constructor, got %q", patches[0].FunctionName)
	}
	if got := FormatCell(patches[0].Vulnerabilities); got != "Slither|Oyente:Reentrancy(5)" {
		t.Errorf("Unexpected Vulnerabilities cell %q", got)
	}
}
