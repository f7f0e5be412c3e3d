// Package migration transforms persisted approval maps between vocabulary
// versions and runs those transforms over the stored orders and lines.
package migration

import (
	"errors"
	"fmt"
	"sort"

	"github.com/odyssey-erp/fabricflow/internal/approval"
)

var (
	// ErrNoPath is returned when no chain of steps connects two versions.
	ErrNoPath = errors.New("migration: no path between vocabulary versions")
	// ErrVersionMismatch is returned when a step is applied to a map of another version.
	ErrVersionMismatch = errors.New("migration: map version does not match step")
	// ErrPassInProgress is returned when another pass holds the migration lock.
	ErrPassInProgress = errors.New("migration: pass already in progress")
)

// Step upgrades maps from one vocabulary version to the next. Renames maps an
// old type to the new type that inherits its state; types with the same name
// in both vocabularies carry implicitly.
type Step struct {
	ID      string
	From    int
	To      int
	Renames map[approval.Type]approval.Type
}

// Steps is the registry of vocabulary upgrades in ascending order.
var Steps = []Step{
	{
		ID:   "202403_approval_vocabulary_v2",
		From: approval.Version1,
		To:   approval.Version2,
		Renames: map[approval.Type]approval.Type{
			approval.TypeFabricTest: approval.TypeQualityTest,
		},
	},
}

// predecessor returns the old type whose state t inherits on upgrade.
func (s Step) predecessor(t approval.Type, from approval.Vocabulary) (approval.Type, bool) {
	for oldType, newType := range s.Renames {
		if newType == t {
			return oldType, true
		}
	}
	if from.Contains(t) {
		return t, true
	}
	return "", false
}

// successor returns the new type whose state t inherits on downgrade.
func (s Step) successor(t approval.Type, to approval.Vocabulary) (approval.Type, bool) {
	if newType, ok := s.Renames[t]; ok {
		return newType, true
	}
	if to.Contains(t) {
		return t, true
	}
	return "", false
}

// Up transforms m from s.From to s.To.
//
// Unversioned rows take, for each target type, their own value under the
// target name when it is not pending and otherwise the predecessor's value.
// That covers rows written under either vocabulary and rows that mix both.
func (s Step) Up(m *approval.StatusMap) (*approval.StatusMap, error) {
	return s.apply(m, s.From, s.To, s.predecessor)
}

// Down transforms m from s.To back to s.From. Types only present in s.To are lost.
func (s Step) Down(m *approval.StatusMap) (*approval.StatusMap, error) {
	return s.apply(m, s.To, s.From, s.successor)
}

func (s Step) apply(
	m *approval.StatusMap,
	fromVersion, toVersion int,
	source func(approval.Type, approval.Vocabulary) (approval.Type, bool),
) (*approval.StatusMap, error) {
	fromVocab, err := approval.VocabularyFor(fromVersion)
	if err != nil {
		return nil, err
	}
	toVocab, err := approval.VocabularyFor(toVersion)
	if err != nil {
		return nil, err
	}
	if m.IsEmpty() {
		return approval.AllPending(toVocab), nil
	}

	legacy := false
	switch m.Version() {
	case toVersion:
		return m.Clone(), nil
	case fromVersion:
	case approval.VersionLegacy:
		legacy = true
	default:
		return nil, fmt.Errorf("%w: step %s expects v%d, map is v%d", ErrVersionMismatch, s.ID, fromVersion, m.Version())
	}

	states := make(map[approval.Type]approval.State, len(toVocab.Types))
	for _, t := range toVocab.Types {
		states[t] = approval.StatePending
		if legacy && m.Get(t) != approval.StatePending {
			states[t] = m.Get(t)
			continue
		}
		if src, ok := source(t, fromVocab); ok && m.Get(src) != approval.StatePending {
			states[t] = m.Get(src)
		}
	}
	return approval.WithVersion(toVersion, states, m)
}

// Plan returns the transforms that take a map at version from to version to.
// A legacy map is upgraded from the oldest registered step.
func Plan(from, to int) ([]func(*approval.StatusMap) (*approval.StatusMap, error), error) {
	if _, err := approval.VocabularyFor(to); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPath, err)
	}
	ordered := make([]Step, len(Steps))
	copy(ordered, Steps)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].From < ordered[j].From })
	if len(ordered) == 0 {
		return nil, ErrNoPath
	}

	if from == approval.VersionLegacy {
		if to == ordered[0].From {
			return []func(*approval.StatusMap) (*approval.StatusMap, error){ordered[0].Down}, nil
		}
		// The first upgrade handles the unversioned input itself.
		return Plan(ordered[0].From, to)
	}

	var chain []func(*approval.StatusMap) (*approval.StatusMap, error)
	current := from
	for current < to {
		step, ok := stepFrom(ordered, current)
		if !ok {
			return nil, fmt.Errorf("%w: v%d -> v%d", ErrNoPath, from, to)
		}
		chain = append(chain, step.Up)
		current = step.To
	}
	for current > to {
		step, ok := stepTo(ordered, current)
		if !ok {
			return nil, fmt.Errorf("%w: v%d -> v%d", ErrNoPath, from, to)
		}
		chain = append(chain, step.Down)
		current = step.From
	}
	return chain, nil
}

func stepFrom(steps []Step, version int) (Step, bool) {
	for _, s := range steps {
		if s.From == version {
			return s, true
		}
	}
	return Step{}, false
}

func stepTo(steps []Step, version int) (Step, bool) {
	for _, s := range steps {
		if s.To == version {
			return s, true
		}
	}
	return Step{}, false
}

// Migrate brings m to the target version. Nil or empty maps become AllPending
// for the target. Applying Migrate to its own output is a no-op.
func Migrate(m *approval.StatusMap, target int) (*approval.StatusMap, error) {
	vocab, err := approval.VocabularyFor(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPath, err)
	}
	if m.IsEmpty() {
		return approval.AllPending(vocab), nil
	}
	if m.Version() == target {
		return m.Clone(), nil
	}
	chain, err := Plan(m.Version(), target)
	if err != nil {
		return nil, err
	}
	out := m
	for _, transform := range chain {
		out, err = transform(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ToCurrent is Migrate to the vocabulary new code writes.
func ToCurrent(m *approval.StatusMap) (*approval.StatusMap, error) {
	return Migrate(m, approval.CurrentVersion)
}

// InferVersion guesses the vocabulary of an unversioned map from its keys. It
// returns the oldest version whose vocabulary contains every stored type, or
// VersionLegacy when the keys mix vocabularies. Versioned maps report their
// own version.
func InferVersion(m *approval.StatusMap) int {
	if m == nil || m.Version() != approval.VersionLegacy {
		return m.Version()
	}
	for _, version := range approval.Versions() {
		vocab := approval.MustVocabulary(version)
		all := true
		for _, t := range m.Types() {
			if !vocab.Contains(t) {
				all = false
				break
			}
		}
		if all {
			return version
		}
	}
	return approval.VersionLegacy
}
