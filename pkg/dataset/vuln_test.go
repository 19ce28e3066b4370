package dataset

import (
	"reflect"
	"testing"
)

var parseCellSamples = []struct {
	input    string
	expected []Entry
}{
	{
		input:    "",
		expected: nil,
	},
	{
		input: "Slither:Reentrancy(25|26:11|12)",
		expected: []Entry{
			{
				Detectors: []string{"Slither"},
				Vulns: []Vulnerability{
					{Kind: "Reentrancy", Locations: []Location{{25, 26}, {11, 12}}},
				},
			},
		},
	},
	{
		input: "Slither|Oyente:integer_overflow(10)",
		expected: []Entry{
			{
				Detectors: []string{"Slither", "Oyente"},
				Vulns: []Vulnerability{
					{Kind: "integer_overflow", Locations: []Location{{10}}},
				},
			},
		},
	},
	{
		input: "Slither:locked-ether(null)",
		expected: []Entry{
			{
				Detectors: []string{"Slither"},
				Vulns: []Vulnerability{
					{Kind: "locked-ether", Locations: []Location{nil}},
				},
			},
		},
	},
	{
		input: "Slither:reentrancy-eth(7)|suicidal(null)",
		expected: []Entry{
			{
				Detectors: []string{"Slither"},
				Vulns: []Vulnerability{
					{Kind: "reentrancy-eth", Locations: []Location{{7}}},
					{Kind: "suicidal", Locations: []Location{nil}},
				},
			},
		},
	},
	{
		input: "Slither|Oyente:Reentrancy(25|26:11|12);Oyente:time_dependency(null:3)",
		expected: []Entry{
			{
				Detectors: []string{"Slither", "Oyente"},
				Vulns: []Vulnerability{
					{Kind: "Reentrancy", Locations: []Location{{25, 26}, {11, 12}}},
				},
			},
			{
				Detectors: []string{"Oyente"},
				Vulns: []Vulnerability{
					{Kind: "time_dependency", Locations: []Location{nil, {3}}},
				},
			},
		},
	},
}

func TestParseCell(t *testing.T) {
	for _, sample := range parseCellSamples {
		entries, err := ParseCell(sample.input)
		if err != nil {
			t.Errorf("ParseCell(%q) returned error: %v", sample.input, err)
			continue
		}
		if !reflect.DeepEqual(entries, sample.expected) {
			t.Errorf("ParseCell(%q) = %#v, want %#v", sample.input, entries, sample.expected)
		}
	}
}

var malformedCells = []string{
	"Slither",
	"Slither:",
	":Reentrancy(1)",
	"Slither:Reentrancy",
	"Slither:Reentrancy(",
	"Slither:Reentrancy()",
	"Slither:Reentrancy(1",
	"Slither:Reentrancy(1))",
	"Slither:Reentrancy(null|2)",
	"Slither:Reentrancy(1|)",
	"Slither:Reentrancy(1:)",
	"Slither:Reentrancy(1);",
	"Slither:Reentrancy(1)|",
	"Slither:(1)",
	"Slither:Reentrancy(abc)",
	"Slither&:Reentrancy(1)",
	";Slither:Reentrancy(1)",
}

func TestParseCellRejectsMalformed(t *testing.T) {
	for _, cell := range malformedCells {
		if _, err := ParseCell(cell); err == nil {
			t.Errorf("ParseCell(%q) accepted a malformed cell", cell)
		}
	}
}

func TestFormatCellRoundTrip(t *testing.T) {
	cells := []string{
		"Slither:Reentrancy(25|26:11|12)",
		"Slither|Oyente:integer_overflow(10);Slither:locked-ether(null)",
		"Oyente:callstack(3:9:27)",
		"Slither:reentrancy-eth(7)|suicidal(null)",
	}

	for _, cell := range cells {
		entries, err := ParseCell(cell)
		if err != nil {
			t.Fatalf("ParseCell(%q) returned error: %v", cell, err)
		}
		if got := FormatCell(entries); got != cell {
			t.Errorf("FormatCell(ParseCell(%q)) = %q", cell, got)
		}
	}
}

func TestGroupFindings(t *testing.T) {
	order := []string{"Slither", "Oyente"}
	byDetector := map[string][]Vulnerability{
		"Slither": {
			{Kind: "Reentrancy", Locations: []Location{{25, 26}, {11, 12}}},
			{Kind: "locked-ether", Locations: []Location{nil}},
		},
		"Oyente": {
			// Same finding with lines and groups in a different order.
			{Kind: "Reentrancy", Locations: []Location{{12, 11}, {26, 25}}},
			{Kind: "time_dependency", Locations: []Location{{40}}},
		},
	}

	entries := GroupFindings(order, byDetector)

	got := FormatCell(entries)
	want := "Slither|Oyente:Reentrancy(25|26:11|12);Slither:locked-ether(null);Oyente:time_dependency(40)"
	if got != want {
		t.Errorf("GroupFindings cell = %q, want %q", got, want)
	}
}

func TestGroupFindingsSingleDetector(t *testing.T) {
	entries := GroupFindings([]string{"Slither", "Oyente"}, map[string][]Vulnerability{
		"Oyente": {{Kind: "callstack", Locations: []Location{{3}}}},
	})

	if got := FormatCell(entries); got != "Oyente:callstack(3)" {
		t.Errorf("GroupFindings cell = %q, want %q", got, "Oyente:callstack(3)")
	}
}

func TestGroupFindingsEmpty(t *testing.T) {
	if entries := GroupFindings([]string{"Slither", "Oyente"}, nil); len(entries) != 0 {
		t.Errorf("GroupFindings(nil) = %#v, want empty", entries)
	}
}
