package solidity

import (
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Bytecode markers used to strip compiler metadata before comparing a local
// build against chain state. The prologue opcode sequence and the trailing
// metadata hash both moved across compiler generations.
const (
	prologue060  = "6080604052"
	prologue047  = "6060604052"
	metadata060  = "a264697066735822"
	metadata0422 = "a165627a7a72305820"
)

var (
	version060  = goversion.Must(goversion.NewVersion("0.6.0"))
	version0422 = goversion.Must(goversion.NewVersion("0.4.22"))
	version047  = goversion.Must(goversion.NewVersion("0.4.7"))
)

// TrimMetadata strips the compiler metadata a runtime bytecode blob carries,
// according to the compiler generation that produced it. Bytecode from
// compilers older than 0.4.7 is returned unchanged.
func TrimMetadata(bytecode, compilerVersion string) (string, error) {
	v, err := goversion.NewVersion(compilerVersion)
	if err != nil {
		return "", fmt.Errorf("compiler version %q: %w", compilerVersion, err)
	}

	switch {
	case v.GreaterThanOrEqual(version060):
		return cut(bytecode, prologue060, metadata060), nil
	case v.GreaterThanOrEqual(version0422):
		return cut(bytecode, prologue060, metadata0422), nil
	case v.GreaterThanOrEqual(version047):
		return cut(bytecode, prologue047, ""), nil
	default:
		return bytecode, nil
	}
}

// cut slices bytecode from the last occurrence of prologue to the last
// occurrence of metadata. A missing marker leaves that side of the blob
// untouched.
func cut(bytecode, prologue, metadata string) string {
	start := strings.LastIndex(bytecode, prologue)
	if start < 0 {
		start = 0
	}
	end := len(bytecode)
	if metadata != "" {
		if idx := strings.LastIndex(bytecode, metadata); idx >= 0 {
			end = idx
		}
	}
	if start > end {
		return bytecode
	}
	return bytecode[start:end]
}

// RuntimeEqual compares two runtime bytecode blobs after metadata trimming,
// tolerating 0x prefixes and case differences.
func RuntimeEqual(local, chain, compilerVersion string) (bool, error) {
	local = normalizeBytecode(local)
	chain = normalizeBytecode(chain)

	trimmedLocal, err := TrimMetadata(local, compilerVersion)
	if err != nil {
		return false, err
	}
	trimmedChain, err := TrimMetadata(chain, compilerVersion)
	if err != nil {
		return false, err
	}
	return trimmedLocal != "" && trimmedLocal == trimmedChain, nil
}

func normalizeBytecode(bytecode string) string {
	return strings.ToLower(strings.TrimPrefix(bytecode, "0x"))
}
