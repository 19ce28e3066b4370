//go:build ignore

// Check the analysis toolchain before a mining run

package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/solfixes/solfixes/pkg/cmdutil"
	"github.com/solfixes/solfixes/pkg/detectors"
	"github.com/solfixes/solfixes/pkg/solidity"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("=== Toolchain Probe ===")

	slither := detectors.NewSlither("slither")
	if version, err := slither.Version(ctx); err != nil {
		fmt.Printf("slither:     MISSING (%v)\n", err)
	} else {
		fmt.Printf("slither:     %s\n", version)
	}

	// Python prints its version banner on stderr up to 3.3.
	if _, errOut, err := cmdutil.Run(ctx, "", nil, "python2", "--version"); err != nil {
		fmt.Printf("python2:     MISSING (%v)\n", err)
	} else {
		fmt.Printf("python2:     %s", errOut)
	}

	toolchain := solidity.NewToolchain("solc", "solc-select")
	installed, err := toolchain.InstalledVersions(ctx)
	if err != nil {
		fmt.Printf("solc-select: MISSING (%v)\n", err)
		return
	}

	versions := make([]string, 0, len(installed))
	for v := range installed {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	fmt.Printf("solc-select: %d versions installed\n", len(versions))
	for _, v := range versions {
		fmt.Printf("  %s\n", v)
	}
}
