// Package severity provides the ordered risk scale used to rank security
// findings, and the keyword heuristic that derives a risk level from
// free-text scanner findings.
//
// IMPORTANT: FromFinding is relied on by API consumers that compare risk
// levels across releases. Any change to the keyword sets changes observable
// results and must be coordinated.
package severity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Level is a risk level. Levels are totally ordered:
// None < Low < Medium < High < Critical.
type Level int

const (
	// None - No risk signal was found.
	None Level = iota

	// Low - Minor or informational issue.
	Low

	// Medium - Moderate risk, should be reviewed.
	Medium

	// High - Serious vulnerability that should be addressed urgently.
	High

	// Critical - Immediate action required.
	Critical
)

// AllLevels returns all levels in order of priority (highest first).
func AllLevels() []Level {
	return []Level{Critical, High, Medium, Low, None}
}

// String returns the display name of the level.
func (l Level) String() string {
	switch l {
	case Low:
		return "Low"
	case Medium:
		return "Medium"
	case High:
		return "High"
	case Critical:
		return "Critical"
	default:
		return "None"
	}
}

// Priority returns the numeric priority of the level.
// Higher numbers = higher priority. Out-of-range values rank as None.
func (l Level) Priority() int {
	if l < None || l > Critical {
		return int(None)
	}
	return int(l)
}

// IsHigherThan returns true if this level is higher than the other.
func (l Level) IsHigherThan(other Level) bool {
	return l.Priority() > other.Priority()
}

// IsAtLeast returns true if this level is at least as high as the other.
func (l Level) IsAtLeast(other Level) bool {
	return l.Priority() >= other.Priority()
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return None, nil
	case "low":
		return Low, nil
	case "medium":
		return Medium, nil
	case "high":
		return High, nil
	case "critical":
		return Critical, nil
	default:
		return None, fmt.Errorf("unknown risk level %q", s)
	}
}

// MarshalJSON encodes the level by name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level name.
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Compare returns:
//
//	-1 if a < b (a is lower risk)
//	 0 if a == b
//	+1 if a > b (a is higher risk)
func Compare(a, b Level) int {
	pa, pb := a.Priority(), b.Priority()
	switch {
	case pa < pb:
		return -1
	case pa > pb:
		return 1
	default:
		return 0
	}
}

// Max returns the higher of two levels.
func Max(a, b Level) Level {
	if a.IsHigherThan(b) {
		return a
	}
	return b
}

// Min returns the lower of two levels.
func Min(a, b Level) Level {
	if a.IsHigherThan(b) {
		return b
	}
	return a
}

// =============================================================================
// Finding Classification
// =============================================================================

// Keyword sets, most severe first. A finding is assigned the level of the
// first set with any keyword occurring as a substring of the lower-cased text.
var (
	criticalKeywords = []string{"critical", "severe", "high risk"}
	highKeywords     = []string{"high", "major", "significant"}
	mediumKeywords   = []string{"medium", "moderate"}
	lowKeywords      = []string{"low", "minor", "info"}
)

// FromFinding derives the risk level implied by one finding.
// Matching is plain substring search: "allowance" contains "low" and
// ranks as Low.
func FromFinding(finding string) Level {
	text := strings.ToLower(finding)
	switch {
	case containsAny(text, criticalKeywords):
		return Critical
	case containsAny(text, highKeywords):
		return High
	case containsAny(text, mediumKeywords):
		return Medium
	case containsAny(text, lowKeywords):
		return Low
	default:
		return None
	}
}

// FromFindings returns the maximum level across all findings.
// An empty slice yields None.
func FromFindings(findings []string) Level {
	highest := None
	for _, f := range findings {
		highest = Max(highest, FromFinding(f))
	}
	return highest
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// =============================================================================
// Counting
// =============================================================================

// CountBySeverity counts findings by derived level.
type CountBySeverity struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	None     int `json:"none"`
	Total    int `json:"total"`
}

// CountFindings classifies every finding and tallies the levels.
func CountFindings(findings []string) CountBySeverity {
	var c CountBySeverity
	for _, f := range findings {
		c.Increment(FromFinding(f))
	}
	return c
}

// Increment increases the count for the given level.
func (c *CountBySeverity) Increment(level Level) {
	c.Total++
	switch level {
	case Critical:
		c.Critical++
	case High:
		c.High++
	case Medium:
		c.Medium++
	case Low:
		c.Low++
	default:
		c.None++
	}
}

// Get returns the count for a level.
func (c *CountBySeverity) Get(level Level) int {
	switch level {
	case Critical:
		return c.Critical
	case High:
		return c.High
	case Medium:
		return c.Medium
	case Low:
		return c.Low
	default:
		return c.None
	}
}

// HighestSeverity returns the highest level that has a non-zero count.
func (c *CountBySeverity) HighestSeverity() Level {
	if c.Critical > 0 {
		return Critical
	}
	if c.High > 0 {
		return High
	}
	if c.Medium > 0 {
		return Medium
	}
	if c.Low > 0 {
		return Low
	}
	return None
}
