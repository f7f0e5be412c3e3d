package approval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// State is the progress of a single approval type.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

// IsValid reports whether s is one of the three known states.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateApproved, StateRejected:
		return true
	default:
		return false
	}
}

// ParseState resolves raw case-insensitively.
func ParseState(raw string) (State, error) {
	s := State(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidApprovalState, raw)
	}
	return s, nil
}

// StatusMap maps approval types to states for exactly one order or order line.
// Keys outside the map's vocabulary that were read from storage are kept in an
// opaque bag and written back unchanged.
type StatusMap struct {
	version int
	states  map[Type]State
	unknown map[string]json.RawMessage
}

// NewStatusMap returns an empty map bound to the given vocabulary version.
func NewStatusMap(version int) (*StatusMap, error) {
	if _, err := VocabularyFor(version); err != nil {
		return nil, err
	}
	return &StatusMap{version: version, states: make(map[Type]State)}, nil
}

// AllPending builds a map with every type of v set to pending. New orders and
// lines start from it.
func AllPending(v Vocabulary) *StatusMap {
	m := &StatusMap{version: v.Version, states: make(map[Type]State, len(v.Types))}
	for _, t := range v.Types {
		m.states[t] = StatePending
	}
	return m
}

// Version returns the vocabulary version of the map, VersionLegacy when unknown.
func (m *StatusMap) Version() int {
	if m == nil {
		return VersionLegacy
	}
	return m.version
}

// IsEmpty reports whether the map holds no known and no unknown keys.
func (m *StatusMap) IsEmpty() bool {
	return m == nil || (len(m.states) == 0 && len(m.unknown) == 0)
}

// Get returns the stored state for t, or pending when the key is absent.
func (m *StatusMap) Get(t Type) State {
	if m == nil {
		return StatePending
	}
	if s, ok := m.states[t]; ok {
		return s
	}
	return StatePending
}

// Has reports whether t is explicitly stored.
func (m *StatusMap) Has(t Type) bool {
	if m == nil {
		return false
	}
	_, ok := m.states[t]
	return ok
}

// Set overwrites the state of t. The type must belong to the map's vocabulary.
func (m *StatusMap) Set(t Type, s State) error {
	vocab, err := VocabularyFor(m.version)
	if err != nil {
		return fmt.Errorf("set %s: %w", t, err)
	}
	if !vocab.Contains(t) {
		return fmt.Errorf("%w: %q (vocabulary v%d)", ErrInvalidApprovalType, t, m.version)
	}
	if !s.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidApprovalState, s)
	}
	if m.states == nil {
		m.states = make(map[Type]State)
	}
	m.states[t] = s
	return nil
}

// Completed reports whether t is approved.
func (m *StatusMap) Completed(t Type) bool {
	return m.Get(t) == StateApproved
}

// Types returns the explicitly stored types sorted by name.
func (m *StatusMap) Types() []Type {
	if m == nil {
		return nil
	}
	out := make([]Type, 0, len(m.states))
	for t := range m.states {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UnknownKeys returns the preserved keys that are not part of any vocabulary.
func (m *StatusMap) UnknownKeys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.unknown))
	for k := range m.unknown {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (m *StatusMap) Clone() *StatusMap {
	if m == nil {
		return nil
	}
	c := &StatusMap{version: m.version, states: make(map[Type]State, len(m.states))}
	for t, s := range m.states {
		c.states[t] = s
	}
	if len(m.unknown) > 0 {
		c.unknown = make(map[string]json.RawMessage, len(m.unknown))
		for k, v := range m.unknown {
			c.unknown[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

// Equal compares version, explicit states and preserved keys.
func (m *StatusMap) Equal(other *StatusMap) bool {
	if m.Version() != other.Version() {
		return false
	}
	var a, b map[Type]State
	var ua, ub map[string]json.RawMessage
	if m != nil {
		a, ua = m.states, m.unknown
	}
	if other != nil {
		b, ub = other.states, other.unknown
	}
	if len(a) != len(b) || len(ua) != len(ub) {
		return false
	}
	for t, s := range a {
		if b[t] != s {
			return false
		}
	}
	for k, v := range ua {
		if !bytes.Equal(ub[k], v) {
			return false
		}
	}
	return true
}

// Snapshot returns a plain copy of the explicit states.
func (m *StatusMap) Snapshot() map[Type]State {
	out := make(map[Type]State)
	if m == nil {
		return out
	}
	for t, s := range m.states {
		out[t] = s
	}
	return out
}

// WithVersion builds a map for version from explicit states. Types outside the
// vocabulary are rejected. Preserved unknown keys are copied from carry.
func WithVersion(version int, states map[Type]State, carry *StatusMap) (*StatusMap, error) {
	m, err := NewStatusMap(version)
	if err != nil {
		return nil, err
	}
	for t, s := range states {
		if err := m.Set(t, s); err != nil {
			return nil, err
		}
	}
	if carry != nil && len(carry.unknown) > 0 {
		m.unknown = carry.Clone().unknown
	}
	return m, nil
}

// FromLegacy builds an unversioned map from loosely typed input. It is used by
// the migration code for rows written before schemaVersion existed.
func FromLegacy(states map[Type]State) *StatusMap {
	m := &StatusMap{version: VersionLegacy, states: make(map[Type]State, len(states))}
	for t, s := range states {
		m.states[t] = s
	}
	return m
}
