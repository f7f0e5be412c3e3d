// Package approval defines the versioned approval-type vocabulary and the
// per-order and per-line approval status maps built on top of it.
package approval

import (
	"fmt"
	"strings"
)

// Type identifies an approval category such as a lab dip or a PP sample.
type Type string

const (
	TypeLabDip      Type = "labDip"
	TypeTrimsCard   Type = "trimsCard"
	TypeFabricTest  Type = "fabricTest"
	TypeFitSample   Type = "fitSample"
	TypePPSample    Type = "ppSample"
	TypeStrikeOff   Type = "strikeOff"
	TypeQualityTest Type = "qualityTest"
	TypeBulkSwatch  Type = "bulkSwatch"
)

var typeLabels = map[Type]string{
	TypeLabDip:      "Lab Dip",
	TypeTrimsCard:   "Trims Card",
	TypeFabricTest:  "Fabric Test",
	TypeFitSample:   "Fit Sample",
	TypePPSample:    "PP Sample",
	TypeStrikeOff:   "Strike-Off",
	TypeQualityTest: "Quality Test",
	TypeBulkSwatch:  "Bulk Swatch",
}

// Label returns the display label for the type.
func (t Type) Label() string {
	if label, ok := typeLabels[t]; ok {
		return label
	}
	return string(t)
}

// Version numbers of the approval vocabulary.
const (
	VersionLegacy  = 0 // unversioned rows written before schemaVersion existed
	Version1       = 1
	Version2       = 2
	CurrentVersion = Version2
)

// Vocabulary is an ordered, closed set of approval types. The order is the
// workflow order used when deriving stages.
type Vocabulary struct {
	Version int
	Types   []Type
}

var vocabularies = map[int]Vocabulary{
	Version1: {
		Version: Version1,
		Types:   []Type{TypeLabDip, TypeTrimsCard, TypeFabricTest, TypeFitSample, TypePPSample},
	},
	Version2: {
		Version: Version2,
		Types:   []Type{TypeLabDip, TypeStrikeOff, TypeQualityTest, TypeBulkSwatch, TypePPSample},
	},
}

// VocabularyFor returns the vocabulary registered for version.
func VocabularyFor(version int) (Vocabulary, error) {
	v, ok := vocabularies[version]
	if !ok {
		return Vocabulary{}, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
	return v, nil
}

// MustVocabulary is VocabularyFor for package-level initialisation.
func MustVocabulary(version int) Vocabulary {
	v, err := VocabularyFor(version)
	if err != nil {
		panic(err)
	}
	return v
}

// Current returns the vocabulary new code writes.
func Current() Vocabulary {
	return MustVocabulary(CurrentVersion)
}

// Versions lists the registered vocabulary versions in ascending order.
func Versions() []int {
	return []int{Version1, Version2}
}

// Contains reports whether t belongs to the vocabulary.
func (v Vocabulary) Contains(t Type) bool {
	return v.Index(t) >= 0
}

// Index returns the workflow position of t or -1.
func (v Vocabulary) Index(t Type) int {
	for i, candidate := range v.Types {
		if candidate == t {
			return i
		}
	}
	return -1
}

// ParseType resolves raw against the vocabulary. Matching is case-insensitive
// so that "LabDip" and "labdip" both resolve to labDip.
func (v Vocabulary) ParseType(raw string) (Type, error) {
	trimmed := strings.TrimSpace(raw)
	for _, t := range v.Types {
		if strings.EqualFold(string(t), trimmed) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q (vocabulary v%d)", ErrInvalidApprovalType, raw, v.Version)
}
