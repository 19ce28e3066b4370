//go:build ignore

// Summarize the mined dataset tables

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/solfixes/solfixes/pkg/dataset"
)

func main() {
	dir := "Dataset"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	repos, err := dataset.ReadRepos(filepath.Join(dir, dataset.ReposFile))
	if err != nil {
		fmt.Printf("Repos error: %v\n", err)
		return
	}
	patches, err := dataset.ReadPatches(filepath.Join(dir, dataset.PatchesFile))
	if err != nil {
		fmt.Printf("Patches error: %v\n", err)
		return
	}
	contracts, err := dataset.ReadContracts(filepath.Join(dir, dataset.ContractsFile))
	if err != nil {
		fmt.Printf("Contracts error: %v\n", err)
		return
	}

	fmt.Println("=== Dataset Summary ===")
	fmt.Printf("Repos:     %d\n", len(repos))
	fmt.Printf("Patches:   %d\n", len(patches))
	fmt.Printf("Contracts: %d\n", len(contracts))

	var stars, files int
	for _, r := range repos {
		stars += r.Stars
		files += r.ContractFiles
	}
	if len(repos) > 0 {
		fmt.Printf("Avg stars: %.1f, avg contract files: %.1f\n",
			float64(stars)/float64(len(repos)), float64(files)/float64(len(repos)))
	}

	merged := 0
	withIssues := 0
	kinds := make(map[string]int)
	detectors := make(map[string]int)
	for _, p := range patches {
		if p.Merged {
			merged++
		}
		if len(p.IssueIDs) > 0 {
			withIssues++
		}
		for _, e := range p.Vulnerabilities {
			for _, v := range e.Vulns {
				kinds[v.Kind]++
			}
			for _, d := range e.Detectors {
				detectors[d]++
			}
		}
	}

	fmt.Println("\n=== Patches ===")
	fmt.Printf("Merged: %d, with issue references: %d\n", merged, withIssues)

	fmt.Println("\nFixed findings by kind:")
	for _, kind := range sortedKeys(kinds) {
		fmt.Printf("  %-32s %d\n", kind, kinds[kind])
	}

	fmt.Println("\nEntries by detector:")
	for _, det := range sortedKeys(detectors) {
		fmt.Printf("  %-32s %d\n", det, detectors[det])
	}

	deployed := make(map[string]int)
	for _, c := range contracts {
		for _, v := range c.SolcVersions {
			deployed[v]++
		}
	}
	fmt.Println("\n=== Contracts ===")
	fmt.Println("Verified revisions by compiler version:")
	for _, v := range sortedKeys(deployed) {
		fmt.Printf("  %-12s %d\n", v, deployed[v])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Most frequent first, name breaks ties.
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
