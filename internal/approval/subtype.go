package approval

import (
	"fmt"
	"strings"
)

// SampleSubtype classifies sample documents (photos, swatches). It overlaps
// with the v2 approval vocabulary by name but is a separate enumeration: the
// document taxonomy does not follow approval vocabulary upgrades.
type SampleSubtype string

const (
	SampleLabDip      SampleSubtype = "labDip"
	SampleStrikeOff   SampleSubtype = "strikeOff"
	SampleQualityTest SampleSubtype = "qualityTest"
	SampleBulkSwatch  SampleSubtype = "bulkSwatch"
	SamplePPSample    SampleSubtype = "ppSample"
)

// SampleSubtypes lists the subtypes in display order.
func SampleSubtypes() []SampleSubtype {
	return []SampleSubtype{SampleLabDip, SampleStrikeOff, SampleQualityTest, SampleBulkSwatch, SamplePPSample}
}

// IsValid reports whether s is a known subtype.
func (s SampleSubtype) IsValid() bool {
	for _, candidate := range SampleSubtypes() {
		if candidate == s {
			return true
		}
	}
	return false
}

// Label returns the display label shared with the matching approval type.
func (s SampleSubtype) Label() string {
	return Type(s).Label()
}

// ParseSampleSubtype resolves raw case-insensitively.
func ParseSampleSubtype(raw string) (SampleSubtype, error) {
	trimmed := strings.TrimSpace(raw)
	for _, s := range SampleSubtypes() {
		if strings.EqualFold(string(s), trimmed) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSampleSubtype, raw)
}

// ApprovalType maps the subtype to the approval type of the given vocabulary.
// The mapping only exists when the vocabulary has a type of the same name.
func (s SampleSubtype) ApprovalType(v Vocabulary) (Type, bool) {
	t := Type(s)
	if !v.Contains(t) {
		return "", false
	}
	return t, true
}
