package solidity

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func seedTree(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll returned error: %v", err)
		}
		if err := os.WriteFile(full, []byte("pragma solidity ^0.4.24;\n"), 0o644); err != nil {
			t.Fatalf("WriteFile returned error: %v", err)
		}
	}
}

func TestFindContractFiles(t *testing.T) {
	root := t.TempDir()
	seedTree(t, root,
		"contracts/Vault.sol",
		"contracts/token/Token.sol",
		"contracts/README.md",
		"node_modules/zeppelin/Ownable.sol",
		"test/VaultTest.sol",
		"contest/Entry.sol",
		"mocks/MockVault.sol",
	)

	files, err := FindContractFiles(root)
	if err != nil {
		t.Fatalf("FindContractFiles returned error: %v", err)
	}

	sort.Strings(files)
	want := []string{
		filepath.Join(root, "contracts/Vault.sol"),
		filepath.Join(root, "contracts/token/Token.sol"),
	}
	if len(files) != len(want) {
		t.Fatalf("Expected %d files, got %d: %v", len(want), len(files), files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("Expected %q, got %q", want[i], files[i])
		}
	}
}

func TestCountContractFiles(t *testing.T) {
	root := t.TempDir()
	seedTree(t, root,
		"contracts/Vault.sol",
		"node_modules/zeppelin/Ownable.sol",
		"test/VaultTest.sol",
	)

	count, err := CountContractFiles(root)
	if err != nil {
		t.Fatalf("CountContractFiles returned error: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 files, got %d", count)
	}
}

func TestFindRemappings(t *testing.T) {
	root := t.TempDir()
	seedTree(t, root,
		"node_modules/zeppelin/contracts/Ownable.sol",
		"node_modules/lodash/index.js",
	)

	remaps, err := FindRemappings(root)
	if err != nil {
		t.Fatalf("FindRemappings returned error: %v", err)
	}

	want := "zeppelin=" + filepath.Join(root, "node_modules", "zeppelin")
	if len(remaps) != 1 || remaps[0] != want {
		t.Errorf("Expected [%q], got %v", want, remaps)
	}
}

func TestFindRemappingsWithoutNodeModules(t *testing.T) {
	remaps, err := FindRemappings(t.TempDir())
	if err != nil {
		t.Fatalf("FindRemappings returned error: %v", err)
	}
	if remaps != nil {
		t.Errorf("Expected no remappings, got %v", remaps)
	}
}
