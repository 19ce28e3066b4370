package detectors

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	apperrors "github.com/solfixes/solfixes/pkg/app/errors"
	"github.com/solfixes/solfixes/pkg/cmdutil"
)

// SlitherName is the detector name used in dataset cells and log folders.
const SlitherName = "Slither"

// slitherChecks is the fixed detector selection scanned for the dataset.
const slitherChecks = "name-reused,rtlo,shadowing-state,suicidal,uninitialized-state," +
	"uninitialized-storage,arbitrary-send,controlled-delegatecall,reentrancy-eth," +
	"incorrect-equality,locked-ether,reentrancy-no-eth,unchecked-send," +
	"reentrancy-benign,reentrancy-events"

// versionEnv selects the compiler release for the scanner's solc-select
// shim, the same way the toolchain compiles.
const versionEnv = "SOLC_VERSION"

// Slither runs the Slither static analyzer.
type Slither struct {
	binary string
}

func NewSlither(binary string) *Slither {
	return &Slither{binary: binary}
}

func (s *Slither) Name() string {
	return SlitherName
}

// Version probes the installed Slither release for the log folder README.
func (s *Slither) Version(ctx context.Context) (string, error) {
	stdout, stderr, err := cmdutil.Run(ctx, "", nil, s.binary, "--version")
	if err != nil {
		return "", fmt.Errorf("slither --version: %w: %s", err, strings.TrimSpace(string(stderr)))
	}
	return strings.TrimSpace(string(stdout)), nil
}

// Scan runs Slither on one file. The returned result carries the raw output
// even when the scan fails, so transcripts record failed runs too.
func (s *Slither) Scan(ctx context.Context, job ScanJob) (*ScanResult, error) {
	args := []string{job.File, "--json", "-", "--json-types", "detectors", "--detect", slitherChecks}
	if len(job.Remaps) > 0 {
		args = append(args, "--solc-remaps", strings.Join(job.Remaps, " "))
	}

	// Slither exits non-zero when it finds issues. The JSON success flag
	// is the real failure signal.
	stdout, stderr, runErr := cmdutil.Run(ctx, job.Dir, []string{versionEnv + "=" + job.Version}, s.binary, args...)
	result := &ScanResult{Stdout: stdout, Stderr: stderr}

	parsed := gjson.ParseBytes(stdout)
	if !parsed.Get("success").Bool() {
		if runErr != nil {
			return result, apperrors.DependencyError(fmt.Errorf("slither %s: %w", job.File, runErr), "slither run failed")
		}
		return result, apperrors.DependencyError(fmt.Errorf("slither %s: %s", job.File, parsed.Get("error").String()), "slither run failed")
	}

	result.Findings = parseSlitherFindings(parsed, job)
	return result, nil
}

func parseSlitherFindings(parsed gjson.Result, job ScanJob) []Finding {
	var findings []Finding

	parsed.Get("results.detectors").ForEach(func(_, det gjson.Result) bool {
		elements := det.Get("elements")
		if !elements.Exists() || len(elements.Array()) == 0 {
			return true
		}

		var locations [][]int
		var contract, function, contractEl string
		imported := false

		elements.ForEach(func(_, el gjson.Result) bool {
			if !sameFile(el.Get("source_mapping.filename_used").String(), job.File) {
				// Findings dragged in through imports belong to the
				// file that defines them, not this scan.
				imported = true
				return false
			}

			switch el.Get("type").String() {
			case "function":
				if function == "" {
					function = el.Get("name").String()
					contract = el.Get("type_specific_fields.parent.name").String()
				}
			case "contract":
				if contractEl == "" {
					contractEl = el.Get("name").String()
				}
			case "node":
				var group []int
				el.Get("source_mapping.lines").ForEach(func(_, line gjson.Result) bool {
					group = append(group, int(line.Int()))
					return true
				})
				if len(group) > 0 {
					sort.Ints(group)
					locations = append(locations, group)
				}
			}
			return true
		})

		if imported {
			return true
		}

		// Contract-scope findings carry no lines and are recorded with
		// the null location.
		switch {
		case function != "":
			function = normalizeFunction(function, contract)
		case len(locations) > 0:
			contract, function = resolveFunction(job.Source, locations)
		case contractEl != "":
			contract, function = contractEl, "unknown"
		default:
			return true
		}

		kind := det.Get("check").String()
		findings = append(findings, Finding{
			Detector:    SlitherName,
			Kind:        kind,
			Contract:    contract,
			Function:    function,
			File:        job.File,
			Locations:   locations,
			Fingerprint: fingerprint(job.Source, kind, contract, function, locations),
		})
		return true
	})

	return findings
}

// sameFile compares scanner-reported paths against the scanned file,
// tolerating one side being absolute.
func sameFile(reported, scanned string) bool {
	if reported == scanned {
		return true
	}
	return strings.HasSuffix(reported, "/"+scanned) || strings.HasSuffix(scanned, "/"+reported)
}
