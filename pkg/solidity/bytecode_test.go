package solidity

import "testing"

func TestTrimMetadata(t *testing.T) {
	tests := []struct {
		name     string
		bytecode string
		version  string
		want     string
	}{
		{
			name:     "modern compiler strips ipfs metadata",
			bytecode: "deadbeef6080604052ffffa264697066735822cafe",
			version:  "0.6.12",
			want:     "6080604052ffff",
		},
		{
			name:     "mid generation strips swarm metadata",
			bytecode: "deadbeef6080604052ffffa165627a7a72305820cafe",
			version:  "0.4.24",
			want:     "6080604052ffff",
		},
		{
			name:     "early generation trims leading bootstrap only",
			bytecode: "deadbeef6060604052ffff",
			version:  "0.4.11",
			want:     "6060604052ffff",
		},
		{
			name:     "ancient compiler untouched",
			bytecode: "deadbeef",
			version:  "0.4.2",
			want:     "deadbeef",
		},
		{
			name:     "last prologue occurrence wins",
			bytecode: "6080604052aaaa6080604052bbbba165627a7a72305820cafe",
			version:  "0.4.24",
			want:     "6080604052bbbb",
		},
		{
			name:     "missing markers leave blob intact",
			bytecode: "deadbeef",
			version:  "0.6.12",
			want:     "deadbeef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TrimMetadata(tt.bytecode, tt.version)
			if err != nil {
				t.Fatalf("TrimMetadata returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTrimMetadataRejectsBadVersion(t *testing.T) {
	if _, err := TrimMetadata("deadbeef", "not-a-version"); err == nil {
		t.Fatal("Expected error for malformed version")
	}
}

func TestRuntimeEqual(t *testing.T) {
	local := "6080604052ffffa165627a7a72305820cafe"
	chain := "0x6080604052FFFFa165627a7a72305820beef"

	equal, err := RuntimeEqual(local, chain, "0.4.24")
	if err != nil {
		t.Fatalf("RuntimeEqual returned error: %v", err)
	}
	if !equal {
		t.Error("Expected bytecode to match after metadata trimming")
	}

	equal, err = RuntimeEqual("6080604052aaaa", chain, "0.4.24")
	if err != nil {
		t.Fatalf("RuntimeEqual returned error: %v", err)
	}
	if equal {
		t.Error("Expected differing runtime sections to mismatch")
	}
}
