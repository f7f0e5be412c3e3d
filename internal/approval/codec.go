package approval

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

const (
	fieldSchemaVersion = "schemaVersion"
	fieldStates        = "states"
)

type versionedDocument struct {
	SchemaVersion int                        `json:"schemaVersion"`
	States        map[string]json.RawMessage `json:"states"`
}

// MarshalJSON writes {"schemaVersion":N,"states":{...}}. Preserved unknown keys
// are merged back into states. Legacy maps keep their flat shape.
func (m *StatusMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	merged := make(map[string]json.RawMessage, len(m.states)+len(m.unknown))
	for k, v := range m.unknown {
		merged[k] = v
	}
	for t, s := range m.states {
		raw, err := json.Marshal(string(s))
		if err != nil {
			return nil, err
		}
		merged[string(t)] = raw
	}
	if m.version == VersionLegacy {
		return json.Marshal(merged)
	}
	return json.Marshal(versionedDocument{SchemaVersion: m.version, States: merged})
}

// UnmarshalJSON accepts both the versioned document and the legacy flat object.
func (m *StatusMap) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	if decoded == nil {
		*m = StatusMap{}
		return nil
	}
	*m = *decoded
	return nil
}

// Decode parses a stored approval map. NULL, empty input and {} yield nil.
func Decode(data []byte) (*StatusMap, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("approval: decode map: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	version := VersionLegacy
	entries := raw
	if rawVersion, ok := raw[fieldSchemaVersion]; ok {
		if _, ok := raw[fieldStates]; !ok {
			return nil, fmt.Errorf("approval: decode map: %s=%s without %s", fieldSchemaVersion, rawVersion, fieldStates)
		}
		var doc versionedDocument
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("approval: decode versioned map: %w", err)
		}
		version = doc.SchemaVersion
		entries = doc.States
	}

	known := knownTypes(version)
	m := &StatusMap{version: version, states: make(map[Type]State, len(entries))}
	for key, value := range entries {
		t := Type(key)
		if _, ok := known[t]; ok {
			var rawState string
			if err := json.Unmarshal(value, &rawState); err == nil {
				if s, err := ParseState(rawState); err == nil {
					m.states[t] = s
					continue
				}
			}
		}
		if m.unknown == nil {
			m.unknown = make(map[string]json.RawMessage)
		}
		m.unknown[key] = append(json.RawMessage(nil), value...)
	}
	return m, nil
}

// Encode is json.Marshal for maps that may be nil; nil encodes as SQL-friendly null.
func Encode(m *StatusMap) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// knownTypes is the vocabulary for registered versions and the union of all
// vocabularies for legacy or unregistered versions.
func knownTypes(version int) map[Type]struct{} {
	out := make(map[Type]struct{})
	if v, ok := vocabularies[version]; ok {
		for _, t := range v.Types {
			out[t] = struct{}{}
		}
		return out
	}
	for _, v := range vocabularies {
		for _, t := range v.Types {
			out[t] = struct{}{}
		}
	}
	return out
}

// Value implements driver.Valuer for jsonb columns.
func (m *StatusMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for jsonb columns. NULL scans to an empty map.
func (m *StatusMap) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("approval: cannot scan %T into StatusMap", src)
	}
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	if decoded == nil {
		*m = StatusMap{}
		return nil
	}
	*m = *decoded
	return nil
}
