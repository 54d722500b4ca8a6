// SPDX-FileCopyrightText: 2026 Fluxline, Inc.
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// encodeFunc converts one (tag, time, record) triple into a payload.
// The concrete function is selected once at Start(); there is no per-record
// format branching.
type encodeFunc func(tag string, time int64, record map[string]any) ([]byte, error)

// encoderConfig carries the configuration the encoder resolution needs.
type encoderConfig struct {
	format      Format
	attributes  []string
	separator   Separator
	includeTag  bool
	includeTime bool
	formatters  map[string]Formatter
}

// newEncoder resolves the configured format into a single encodeFunc.
// When either include flag is set, the returned function augments a copy of
// the record with `tag` / `time` keys before encoding, so structured formats
// and delegated formatters see them as ordinary fields. The caller's record
// is never mutated.
func newEncoder(cfg encoderConfig) (encodeFunc, error) {
	var base encodeFunc

	switch cfg.format {
	case FormatJSON, "":
		base = encodeJSON
	case FormatLTSV:
		base = encodeLTSV
	case FormatMsgpack:
		base = encodeMsgpack
	case FormatAttr:
		names := cfg.attributes
		if cfg.includeTime {
			names = append([]string{"time"}, names...)
		}
		if cfg.includeTag {
			names = append([]string{"tag"}, names...)
		}
		base = attrEncoder(names, separatorString(cfg.separator))
	default:
		f, ok := cfg.formatters[string(cfg.format)]
		if !ok {
			return nil, errors.Join(ErrValidation,
				fmt.Errorf("no formatter registered for format '%s'", cfg.format))
		}
		base = f.Format
	}

	if !cfg.includeTag && !cfg.includeTime {
		return base, nil
	}

	return func(tag string, time int64, record map[string]any) ([]byte, error) {
		augmented := make(map[string]any, len(record)+2)
		for k, v := range record {
			augmented[k] = v
		}
		if cfg.includeTag {
			augmented["tag"] = tag
		}
		if cfg.includeTime {
			augmented["time"] = time
		}
		return base(tag, time, augmented)
	}, nil
}

func encodeJSON(_ string, _ int64, record map[string]any) ([]byte, error) {
	out, err := json.Marshal(record)
	if err != nil {
		return nil, errors.Join(ErrEncoding, fmt.Errorf("json encoding failed"), err)
	}
	return out, nil
}

// encodeLTSV renders `key:value` pairs joined by tabs. Keys are emitted in
// sorted order so the output is deterministic.
func encodeLTSV(_ string, _ int64, record map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\t')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(stringify(record[k]))
	}
	return []byte(b.String()), nil
}

func encodeMsgpack(_ string, _ int64, record map[string]any) ([]byte, error) {
	out, err := msgpack.Marshal(record)
	if err != nil {
		return nil, errors.Join(ErrEncoding, fmt.Errorf("msgpack encoding failed"), err)
	}
	return out, nil
}

// attrEncoder joins the string form of each named attribute, empty string
// when absent, using the configured separator.
func attrEncoder(names []string, sep string) encodeFunc {
	return func(_ string, _ int64, record map[string]any) ([]byte, error) {
		parts := make([]string, len(names))
		for i, name := range names {
			if v, ok := record[name]; ok {
				parts[i] = stringify(v)
			}
		}
		return []byte(strings.Join(parts, sep)), nil
	}
}

// stringify renders a record value for the textual formats. Nil renders as
// the empty string rather than "<nil>".
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", v)
	}
}
