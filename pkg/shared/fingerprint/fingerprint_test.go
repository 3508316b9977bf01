package fingerprint

import (
	"testing"
)

const addr = "0x00000000000000000000000000000000000000c0"

func TestHash(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty string", ""},
		{"simple string", "hello"},
		{"finding", "finding:0xabc:high: reentrancy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash := Hash(tt.input)

			if len(hash) != 64 {
				t.Errorf("Hash(%q) length = %d, want 64", tt.input, len(hash))
			}
			if hash != Hash(tt.input) {
				t.Error("Hash is not deterministic")
			}
			for _, c := range hash {
				if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
					t.Errorf("Hash contains non-hex character: %c", c)
				}
			}
		})
	}
}

func TestFinding(t *testing.T) {
	base := Finding(addr, "High: reentrancy risk")

	same := []struct {
		name    string
		address string
		finding string
	}{
		{"case", "0x00000000000000000000000000000000000000C0", "HIGH: Reentrancy Risk"},
		{"whitespace", "  " + addr + " ", "High:   reentrancy\trisk "},
		{"missing prefix", "00000000000000000000000000000000000000c0", "High: reentrancy risk"},
	}
	for _, tt := range same {
		t.Run(tt.name, func(t *testing.T) {
			if got := Finding(tt.address, tt.finding); got != base {
				t.Errorf("Finding(%q, %q) differs from base", tt.address, tt.finding)
			}
		})
	}

	if Finding(addr, "Low: reentrancy risk") == base {
		t.Error("different finding text must change the fingerprint")
	}
	if Finding("0x00000000000000000000000000000000000000c1", "High: reentrancy risk") == base {
		t.Error("different address must change the fingerprint")
	}
}

func TestReport(t *testing.T) {
	findings := []string{"High: a", "Medium: b"}
	base := Report(addr, findings)

	tests := []struct {
		name     string
		findings []string
		same     bool
	}{
		{"reordered", []string{"Medium: b", "High: a"}, true},
		{"duplicate", []string{"High: a", "Medium: b", "high: a"}, true},
		{"subset", []string{"High: a"}, false},
		{"extra", []string{"High: a", "Medium: b", "Low: c"}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Report(addr, tt.findings) == base
			if got != tt.same {
				t.Errorf("Report(%v) == base: %v, want %v", tt.findings, got, tt.same)
			}
		})
	}

	if Report(addr, nil) != Report(addr, []string{}) {
		t.Error("nil and empty findings must match")
	}
	if Report(addr, nil) == Report("0x00000000000000000000000000000000000000c1", nil) {
		t.Error("empty reports of different contracts must differ")
	}
}
