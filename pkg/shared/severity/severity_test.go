package severity

import (
	"encoding/json"
	"testing"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{None, "None"},
		{Low, "Low"},
		{Medium, "Medium"},
		{High, "High"},
		{Critical, "Critical"},
		{Level(42), "None"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("Level.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLevel_Ordering(t *testing.T) {
	ordered := []Level{None, Low, Medium, High, Critical}
	for i := 0; i < len(ordered)-1; i++ {
		if !ordered[i+1].IsHigherThan(ordered[i]) {
			t.Errorf("%v should be higher than %v", ordered[i+1], ordered[i])
		}
		if Compare(ordered[i], ordered[i+1]) != -1 {
			t.Errorf("Compare(%v, %v) should be -1", ordered[i], ordered[i+1])
		}
	}

	if Compare(High, High) != 0 {
		t.Error("Compare(High, High) should be 0")
	}
	if Level(99).Priority() != int(None) {
		t.Error("out-of-range levels should rank as None")
	}
}

func TestLevel_IsAtLeast(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Level
		expected bool
	}{
		{"Critical >= High", Critical, High, true},
		{"High >= High", High, High, true},
		{"High >= Critical", High, Critical, false},
		{"None >= None", None, None, true},
		{"None >= Low", None, Low, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.IsAtLeast(tt.b); got != tt.expected {
				t.Errorf("Level.IsAtLeast() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMaxMin(t *testing.T) {
	levels := AllLevels()
	for _, a := range levels {
		for _, b := range levels {
			max := Max(a, b)
			if max != a && max != b {
				t.Fatalf("Max(%v, %v) = %v, not one of the inputs", a, b, max)
			}
			if max.Priority() < a.Priority() || max.Priority() < b.Priority() {
				t.Errorf("Max(%v, %v) = %v", a, b, max)
			}
			if Max(a, b) != Max(b, a) {
				t.Errorf("Max should be commutative for %v, %v", a, b)
			}
			if Min(a, b).IsHigherThan(max) {
				t.Errorf("Min(%v, %v) should not exceed Max", a, b)
			}
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"critical", Critical, false},
		{"HIGH", High, false},
		{" Medium ", Medium, false},
		{"low", Low, false},
		{"none", None, false},
		{"", None, false},
		{"severe", None, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLevel_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Risk Level `json:"risk"`
	}{High})
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if string(data) != `{"risk":"High"}` {
		t.Errorf("Marshal = %s", data)
	}

	var decoded struct {
		Risk Level `json:"risk"`
	}
	if err := json.Unmarshal([]byte(`{"risk":"Critical"}`), &decoded); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if decoded.Risk != Critical {
		t.Errorf("Unmarshal = %v, want Critical", decoded.Risk)
	}

	if err := json.Unmarshal([]byte(`{"risk":"bogus"}`), &decoded); err == nil {
		t.Error("Unmarshal should reject unknown level names")
	}
}

func TestFromFinding(t *testing.T) {
	tests := []struct {
		finding  string
		expected Level
	}{
		// Critical set
		{"Critical vulnerability found", Critical},
		{"SEVERE storage collision", Critical},
		{"this is a high risk path", Critical},
		// High set
		{"High: Missing access control on critical function", Critical},
		{"High: unchecked delegatecall", High},
		{"major issue", High},
		{"Significant gas waste", High},
		// Medium set
		{"Medium: Possible reentrancy", Medium},
		{"moderate exposure", Medium},
		// Low set
		{"Low risk issue detected", Low},
		{"minor style issue", Low},
		{"Info: Consider using SafeMath library", Low},
		// Substring matches are intentional
		{"allowance not reset", Low},
		{"informational only", Low},
		// No match
		{"No reentrancy vulnerabilities found", None},
		{"", None},
	}

	for _, tt := range tests {
		t.Run(tt.finding, func(t *testing.T) {
			if got := FromFinding(tt.finding); got != tt.expected {
				t.Errorf("FromFinding(%q) = %v, want %v", tt.finding, got, tt.expected)
			}
		})
	}
}

func TestFromFindings(t *testing.T) {
	tests := []struct {
		name     string
		findings []string
		expected Level
	}{
		{"empty", nil, None},
		{"no match", []string{"all good", "nothing to report"}, None},
		{"max wins", []string{"Critical vulnerability found", "Low risk issue detected"}, Critical},
		{"order independent", []string{"Low risk issue detected", "Critical vulnerability found"}, Critical},
		{"medium over low", []string{"minor", "moderate"}, Medium},
		{"low and critical substrings in one finding", []string{"low gas, critical path"}, Critical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromFindings(tt.findings); got != tt.expected {
				t.Errorf("FromFindings() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCountFindings(t *testing.T) {
	c := CountFindings([]string{
		"Critical: selfdestruct reachable",
		"High: delegatecall",
		"Medium: reentrancy",
		"Low: style",
		"Info: note",
		"nothing",
	})

	if c.Total != 6 {
		t.Errorf("Total = %d, want 6", c.Total)
	}
	if c.Critical != 1 || c.High != 1 || c.Medium != 1 || c.Low != 2 || c.None != 1 {
		t.Errorf("unexpected counts: %+v", c)
	}
	if c.Get(Low) != 2 {
		t.Errorf("Get(Low) = %d, want 2", c.Get(Low))
	}
	if c.HighestSeverity() != Critical {
		t.Errorf("HighestSeverity() = %v, want Critical", c.HighestSeverity())
	}

	var empty CountBySeverity
	if empty.HighestSeverity() != None {
		t.Errorf("empty HighestSeverity() = %v, want None", empty.HighestSeverity())
	}
}
