package piweb

import "fmt"

// UpdateOption controls how the historian resolves conflicts when a
// submitted value collides with an existing sample.
type UpdateOption string

const (
	UpdateReplace             UpdateOption = "Replace"
	UpdateInsert              UpdateOption = "Insert"
	UpdateNoReplace           UpdateOption = "NoReplace"
	UpdateReplaceOnly         UpdateOption = "ReplaceOnly"
	UpdateInsertNoCompression UpdateOption = "InsertNoCompression"
	UpdateRemove              UpdateOption = "Remove"
)

var updateOptions = map[UpdateOption]bool{
	UpdateReplace:             true,
	UpdateInsert:              true,
	UpdateNoReplace:           true,
	UpdateReplaceOnly:         true,
	UpdateInsertNoCompression: true,
	UpdateRemove:              true,
}

// ParseUpdateOption validates s against the closed set of update options.
func ParseUpdateOption(s string) (UpdateOption, error) {
	opt := UpdateOption(s)
	if !updateOptions[opt] {
		return "", fmt.Errorf("invalid update option %q", s)
	}
	return opt, nil
}

// BufferOption controls server-side queuing of submitted values.
type BufferOption string

const (
	BufferDoNotBuffer BufferOption = "DoNotBuffer"
	BufferIfPossible  BufferOption = "BufferIfPossible"
	BufferAlways      BufferOption = "Buffer"
)

var bufferOptions = map[BufferOption]bool{
	BufferDoNotBuffer: true,
	BufferIfPossible:  true,
	BufferAlways:      true,
}

// ParseBufferOption validates s against the closed set of buffer options.
func ParseBufferOption(s string) (BufferOption, error) {
	opt := BufferOption(s)
	if !bufferOptions[opt] {
		return "", fmt.Errorf("invalid buffer option %q", s)
	}
	return opt, nil
}

// RetrievalMode governs how a recorded-at-time request resolves a time
// that does not exactly match a stored sample.
type RetrievalMode string

const (
	RetrievalAuto         RetrievalMode = "Auto"
	RetrievalAtOrBefore   RetrievalMode = "AtOrBefore"
	RetrievalAtOrAfter    RetrievalMode = "AtOrAfter"
	RetrievalBefore       RetrievalMode = "Before"
	RetrievalAfter        RetrievalMode = "After"
	RetrievalExact        RetrievalMode = "Exact"
	RetrievalInterpolated RetrievalMode = "Interpolated"
)

var retrievalModes = map[RetrievalMode]bool{
	RetrievalAuto:         true,
	RetrievalAtOrBefore:   true,
	RetrievalAtOrAfter:    true,
	RetrievalBefore:       true,
	RetrievalAfter:        true,
	RetrievalExact:        true,
	RetrievalInterpolated: true,
}

// ParseRetrievalMode validates s against the closed set of retrieval modes.
func ParseRetrievalMode(s string) (RetrievalMode, error) {
	mode := RetrievalMode(s)
	if !retrievalModes[mode] {
		return "", fmt.Errorf("invalid retrieval mode %q", s)
	}
	return mode, nil
}

// SummaryType selects the aggregate computed by a summary request.
type SummaryType string

const (
	SummaryTotal            SummaryType = "Total"
	SummaryAverage          SummaryType = "Average"
	SummaryMinimum          SummaryType = "Minimum"
	SummaryMaximum          SummaryType = "Maximum"
	SummaryRange            SummaryType = "Range"
	SummaryStdDev           SummaryType = "StdDev"
	SummaryPopulationStdDev SummaryType = "PopulationStdDev"
	SummaryCount            SummaryType = "Count"
	SummaryPercentGood      SummaryType = "PercentGood"
	SummaryAll              SummaryType = "All"
	SummaryAllForNonNumeric SummaryType = "AllForNonNumeric"
)

var summaryTypes = map[SummaryType]bool{
	SummaryTotal:            true,
	SummaryAverage:          true,
	SummaryMinimum:          true,
	SummaryMaximum:          true,
	SummaryRange:            true,
	SummaryStdDev:           true,
	SummaryPopulationStdDev: true,
	SummaryCount:            true,
	SummaryPercentGood:      true,
	SummaryAll:              true,
	SummaryAllForNonNumeric: true,
}

// ParseSummaryType validates s against the closed set of summary types.
func ParseSummaryType(s string) (SummaryType, error) {
	st := SummaryType(s)
	if !summaryTypes[st] {
		return "", fmt.Errorf("invalid summary type %q", s)
	}
	return st, nil
}
