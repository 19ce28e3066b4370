package solidity

import (
	"testing"

	"github.com/creasty/defaults"
)

const combinedASTOutput = `JSON AST (compact format):


======= node_modules/zeppelin/Ownable.sol =======
{"nodeType": "SourceUnit", "nodes": []}


======= contracts/Vault.sol =======
{"nodeType": "SourceUnit", "nodes": [{"nodeType": "PragmaDirective", "src": "0:24:1"}]}
`

func TestASTSection(t *testing.T) {
	section, ok := astSection(combinedASTOutput, "contracts/Vault.sol")
	if !ok {
		t.Fatal("Expected a section for contracts/Vault.sol")
	}
	want := `{"nodeType": "SourceUnit", "nodes": [{"nodeType": "PragmaDirective", "src": "0:24:1"}]}`
	if section != want {
		t.Errorf("Expected %q, got %q", want, section)
	}

	section, ok = astSection(combinedASTOutput, "node_modules/zeppelin/Ownable.sol")
	if !ok {
		t.Fatal("Expected a section for the vendored file")
	}
	if section != `{"nodeType": "SourceUnit", "nodes": []}` {
		t.Errorf("Unexpected vendored section %q", section)
	}

	if _, ok := astSection(combinedASTOutput, "contracts/Missing.sol"); ok {
		t.Error("Expected no section for an absent file")
	}
}

func TestCompileOptionsDefaults(t *testing.T) {
	opts := CompileOptions{Version: "0.4.24", Optimize: true}
	if err := defaults.Set(&opts); err != nil {
		t.Fatalf("defaults.Set returned error: %v", err)
	}
	if opts.OptimizeRuns != 200 {
		t.Errorf("Expected 200 optimizer runs, got %d", opts.OptimizeRuns)
	}
}
