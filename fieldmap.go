// SPDX-FileCopyrightText: 2026 Fluxline, Inc.
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"errors"
	"fmt"
	"strings"
)

// EmptyValueMarker is the replacement token that resolves to the empty
// string in a value conversion specification. A bare empty replacement
// cannot be expressed in the delimited form, so this marker stands in for it.
const EmptyValueMarker = "__EMPTY__"

// fieldDefault is one parsed entry of a field mapping specification.
type fieldDefault struct {
	key   string
	value string
}

// valueRule is one parsed entry of a value conversion specification.
// Rules are ordered; the first rule whose match equals the field value wins.
type valueRule struct {
	match       string
	replacement string
}

// fieldMapper applies field defaulting and value conversion to a record.
// A nil *fieldMapper is the identity pass; callers decide that once at
// configuration time rather than per record.
type fieldMapper struct {
	defaults []fieldDefault
	rules    []valueRule
}

// newFieldMapper parses the delimited mapping and conversion specifications.
// Both specs use comma-delimited `key:value` entries; a mapping entry without
// a colon gets an empty default. Returns nil (identity) when the mapping
// specification is empty. Malformed entries fail eagerly.
func newFieldMapper(mappingSpec, conversionSpec string) (*fieldMapper, error) {
	if mappingSpec == "" {
		return nil, nil
	}

	m := &fieldMapper{}

	seen := make(map[string]struct{})
	for _, entry := range strings.Split(mappingSpec, ",") {
		key, def, _ := strings.Cut(entry, ":")
		if key == "" {
			return nil, errors.Join(ErrValidation,
				fmt.Errorf("field mapping entry %q has an empty key", entry))
		}
		if _, dup := seen[key]; dup {
			return nil, errors.Join(ErrValidation,
				fmt.Errorf("field mapping key %q is duplicated", key))
		}
		seen[key] = struct{}{}
		m.defaults = append(m.defaults, fieldDefault{key: key, value: def})
	}

	if conversionSpec != "" {
		for _, entry := range strings.Split(conversionSpec, ",") {
			match, repl, ok := strings.Cut(entry, ":")
			if !ok || match == "" {
				return nil, errors.Join(ErrValidation,
					fmt.Errorf("value conversion entry %q is malformed: want match:replacement", entry))
			}
			if repl == EmptyValueMarker {
				repl = ""
			}
			m.rules = append(m.rules, valueRule{match: match, replacement: repl})
		}
	}

	return m, nil
}

// apply returns a new record holding the union of the input keys and the
// mapping keys. Every mapping key's value, whether taken from the input or
// from its configured default, is passed through value conversion, so
// applying the mapper twice yields the same record as applying it once.
// The input record is never modified.
func (m *fieldMapper) apply(record map[string]any) map[string]any {
	if m == nil {
		return record
	}

	out := make(map[string]any, len(record)+len(m.defaults))
	for k, v := range record {
		out[k] = v
	}

	for _, d := range m.defaults {
		v, ok := out[d.key]
		if !ok {
			v = d.value
		}
		out[d.key] = m.convert(v)
	}

	return out
}

// convert applies the first matching value rule. Only string values are
// eligible for conversion; everything else passes through unchanged.
func (m *fieldMapper) convert(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}

	for _, r := range m.rules {
		if r.match == s {
			return r.replacement
		}
	}
	return s
}
