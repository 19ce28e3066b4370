package detectors

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	apperrors "github.com/solfixes/solfixes/pkg/app/errors"
	"github.com/solfixes/solfixes/pkg/cmdutil"
)

// OyenteName is the detector name used in dataset cells and log folders.
const OyenteName = "Oyente"

// Oyente runs the Oyente symbolic executor through its Python entry point.
type Oyente struct {
	python string
	path   string
}

func NewOyente(python, path string) *Oyente {
	return &Oyente{python: python, path: path}
}

func (o *Oyente) Name() string {
	return OyenteName
}

// Scan runs Oyente on one file. Each flagged line becomes its own finding,
// which is the granularity the tool reports at.
func (o *Oyente) Scan(ctx context.Context, job ScanJob) (*ScanResult, error) {
	args := []string{o.path, "-s", job.File, "-j", "--web", "--allow-paths", job.Dir}
	if len(job.Remaps) > 0 {
		args = append(args, "-rmp", strings.Join(job.Remaps, " "))
	}

	stdout, stderr, runErr := cmdutil.Run(ctx, job.Dir, []string{versionEnv + "=" + job.Version}, o.python, args...)
	result := &ScanResult{Stdout: stdout, Stderr: stderr}

	parsed := gjson.ParseBytes(stdout)
	if !parsed.IsObject() {
		if runErr != nil {
			return result, apperrors.DependencyError(fmt.Errorf("oyente %s: %w", job.File, runErr), "oyente run failed")
		}
		return result, apperrors.DependencyError(fmt.Errorf("oyente %s: no JSON output", job.File), "oyente run failed")
	}

	result.Findings = parseOyenteFindings(parsed, job)
	return result, nil
}

func parseOyenteFindings(parsed gjson.Result, job ScanJob) []Finding {
	var findings []Finding

	parsed.ForEach(func(file, contracts gjson.Result) bool {
		if !sameFile(file.String(), job.File) {
			return true
		}

		contracts.ForEach(func(contract, data gjson.Result) bool {
			data.Get("vulnerabilities").ForEach(func(kind, reports gjson.Result) bool {
				for _, line := range oyenteLines(reports) {
					findings = append(findings, oyenteFinding(job, contract.String(), kind.String(), line))
				}
				return true
			})
			return true
		})
		return true
	})

	return findings
}

// oyenteLines extracts line numbers from one vulnerability's report list,
// where each item is either a file:line:column string or a nested list of
// them.
func oyenteLines(reports gjson.Result) []int {
	var lines []int

	var collect func(r gjson.Result)
	collect = func(r gjson.Result) {
		if r.IsArray() {
			r.ForEach(func(_, item gjson.Result) bool {
				collect(item)
				return true
			})
			return
		}
		parts := strings.Split(r.String(), ":")
		if len(parts) < 2 {
			return
		}
		line, err := strconv.Atoi(parts[1])
		if err != nil {
			return
		}
		lines = append(lines, line)
	}
	collect(reports)

	return lines
}

func oyenteFinding(job ScanJob, contract, kind string, line int) Finding {
	function := "unknown"
	if _, name, ok := job.Source.EnclosingFunction(line); ok {
		function = name
	}

	locations := [][]int{{line}}
	return Finding{
		Detector:    OyenteName,
		Kind:        kind,
		Contract:    contract,
		Function:    function,
		File:        job.File,
		Locations:   locations,
		Fingerprint: fingerprint(job.Source, kind, contract, function, locations),
	}
}
