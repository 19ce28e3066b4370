package etherscan

import (
	"encoding/csv"
	"fmt"
	"os"
)

// LoadVerifiedIndex reads Etherscan's verified-contract export, a CSV of
// transaction hash, deployment address and contract name, and returns a
// contract name to candidate addresses map.
func LoadVerifiedIndex(path string) (map[string][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open verified-contract index: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read verified-contract index: %w", err)
	}

	index := make(map[string][]string)
	for i, row := range rows {
		if i == 0 || len(row) < 3 {
			continue
		}
		address, name := row[1], row[2]
		index[name] = append(index[name], address)
	}
	return index, nil
}
