// Package detectors wraps the third-party vulnerability scanners and
// normalizes their findings into dataset records.
package detectors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strings"

	"github.com/solfixes/solfixes/pkg/solidity"
)

// Finding is one vulnerability report attributed to a contract function.
type Finding struct {
	Detector string
	Kind     string
	Contract string
	Function string
	File     string
	// Locations groups the flagged line numbers the way the scanner
	// reported them, one group per flagged code node. Empty when the
	// scanner gave no line information.
	Locations [][]int

	// Fingerprint identifies the finding across commits. It hashes the
	// flagged source text rather than line numbers, so unrelated edits
	// moving code around do not make an old finding look new.
	Fingerprint string
}

// ScanJob is one scanner invocation against a single source file.
type ScanJob struct {
	// Dir is the repository checkout the scanner runs in.
	Dir string
	// File is the contract path relative to Dir.
	File string
	// Source is the parsed file at the scanned commit.
	Source *solidity.Source
	// Version selects the compiler release through the solc-select shim.
	Version string
	Remaps  []string
}

// ScanResult carries the normalized findings plus the raw tool output for
// the scan transcript.
type ScanResult struct {
	Findings []Finding
	Stdout   []byte
	Stderr   []byte
}

// Detector is a wrapped third-party scanner.
type Detector interface {
	// Name returns the detector name as recorded in dataset cells and
	// log folders.
	Name() string
	Scan(ctx context.Context, job ScanJob) (*ScanResult, error)
}

// normalizeFunction maps scanner function names onto the dataset
// convention: constructors become "constructor", fallback and receive
// functions the empty name.
func normalizeFunction(name, contract string) string {
	switch name {
	case "constructor":
		return "constructor"
	case "fallback", "receive":
		return ""
	}
	if name != "" && name == contract {
		return "constructor"
	}
	return name
}

// resolveFunction locates the function owning the first flagged line when
// the scanner did not attribute one itself. Lines outside any function are
// marked unknown, matching how unattributable findings are recorded.
func resolveFunction(src *solidity.Source, locations [][]int) (string, string) {
	for _, group := range locations {
		for _, line := range group {
			contract, function, ok := src.EnclosingFunction(line)
			if ok {
				return contract, function
			}
			if contract != "" {
				return contract, "unknown"
			}
		}
	}
	return "", "unknown"
}

func fingerprint(src *solidity.Source, kind, contract, function string, locations [][]int) string {
	lines := flatten(locations)

	h := sha256.New()
	for _, part := range []string{kind, contract, function} {
		io.WriteString(h, part)
		h.Write([]byte{0})
	}
	for _, line := range lines {
		io.WriteString(h, normalizeLine(src.LineText(line)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeLine collapses whitespace so reindentation does not change a
// finding's identity.
func normalizeLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func flatten(locations [][]int) []int {
	seen := make(map[int]struct{})
	var lines []int
	for _, group := range locations {
		for _, line := range group {
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			lines = append(lines, line)
		}
	}
	sort.Ints(lines)
	return lines
}
