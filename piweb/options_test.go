package piweb

import "testing"

func TestParseUpdateOption(t *testing.T) {
	valid := []string{"Replace", "Insert", "NoReplace", "ReplaceOnly", "InsertNoCompression", "Remove"}
	for _, s := range valid {
		opt, err := ParseUpdateOption(s)
		if err != nil {
			t.Errorf("ParseUpdateOption(%q) failed: %v", s, err)
		}
		if string(opt) != s {
			t.Errorf("ParseUpdateOption(%q) = %q", s, opt)
		}
	}

	for _, s := range []string{"", "replace", "Upsert"} {
		if _, err := ParseUpdateOption(s); err == nil {
			t.Errorf("ParseUpdateOption(%q) should fail", s)
		}
	}
}

func TestParseBufferOption(t *testing.T) {
	for _, s := range []string{"DoNotBuffer", "BufferIfPossible", "Buffer"} {
		if _, err := ParseBufferOption(s); err != nil {
			t.Errorf("ParseBufferOption(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseBufferOption("Always"); err == nil {
		t.Error("ParseBufferOption(\"Always\") should fail")
	}
}

func TestParseRetrievalMode(t *testing.T) {
	for _, s := range []string{"Auto", "AtOrBefore", "AtOrAfter", "Before", "After", "Exact", "Interpolated"} {
		if _, err := ParseRetrievalMode(s); err != nil {
			t.Errorf("ParseRetrievalMode(%q) failed: %v", s, err)
		}
	}
	for _, s := range []string{"", "exact", "Nearest"} {
		if _, err := ParseRetrievalMode(s); err == nil {
			t.Errorf("ParseRetrievalMode(%q) should fail", s)
		}
	}
}

func TestParseSummaryType(t *testing.T) {
	valid := []string{
		"Total", "Average", "Minimum", "Maximum", "Range", "StdDev",
		"PopulationStdDev", "Count", "PercentGood", "All", "AllForNonNumeric",
	}
	for _, s := range valid {
		if _, err := ParseSummaryType(s); err != nil {
			t.Errorf("ParseSummaryType(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseSummaryType("Median"); err == nil {
		t.Error("ParseSummaryType(\"Median\") should fail")
	}
}
