// Package solidity locates, parses and compiles Solidity sources through the
// solc-select toolchain.
package solidity

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const fileExt = ".sol"

// Directory name fragments excluded from vulnerability scans. Vendored and
// test contracts are not part of a project's own attack surface.
var excludedDirParts = []string{"node_modules", "mocks", "test"}

func excludedDir(name string) bool {
	for _, part := range excludedDirParts {
		if strings.Contains(name, part) {
			return true
		}
	}
	return false
}

// FindContractFiles walks root and returns the Solidity files eligible for
// scanning, with vendored, mock and test trees pruned.
func FindContractFiles(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && excludedDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), fileExt) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// CountContractFiles counts every Solidity file under root, vendored trees
// included. The repository table records the full count.
func CountContractFiles(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), fileExt) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ScannablePath reports whether a repository-relative path names a Solidity
// file outside the excluded trees.
func ScannablePath(rel string) bool {
	if !strings.HasSuffix(rel, fileExt) {
		return false
	}
	dir := filepath.Dir(rel)
	if dir == "." {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if excludedDir(part) {
			return false
		}
	}
	return true
}

// FindRemappings maps each node_modules package shipping Solidity sources to
// an import remapping, so vendored library imports resolve during
// compilation.
func FindRemappings(root string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, "node_modules"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var remaps []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(root, "node_modules", e.Name())
		ok, err := containsContractFile(path)
		if err != nil {
			return nil, err
		}
		if ok {
			remaps = append(remaps, e.Name()+"="+path)
		}
	}
	return remaps, nil
}

var errFoundContract = errors.New("contract file found")

func containsContractFile(root string) (bool, error) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), fileExt) {
			return errFoundContract
		}
		return nil
	})
	if errors.Is(err, errFoundContract) {
		return true, nil
	}
	return false, err
}
