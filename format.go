// SPDX-FileCopyrightText: 2026 Fluxline, Inc.
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"errors"
	"fmt"
	"strings"
)

// Format selects the payload encoding.
//
// The built-in formats are listed below. Any other non-empty value is
// treated as the name of a delegated Formatter that must be present in
// Engine.Formatters.
type Format string

const (
	// FormatJSON serializes the record as a JSON object (default).
	FormatJSON Format = "json"

	// FormatLTSV serializes the record as tab-joined `key:value` pairs.
	FormatLTSV Format = "ltsv"

	// FormatMsgpack serializes the record in the MessagePack binary format.
	FormatMsgpack Format = "msgpack"

	// FormatAttr joins a configured list of attributes with a separator.
	// See Engine.Attributes and Engine.Separator.
	FormatAttr Format = "attr"
)

var builtinFormats map[Format]struct{}
var formatList []string

func init() {
	list := []Format{
		FormatJSON,
		FormatLTSV,
		FormatMsgpack,
		FormatAttr,
	}

	builtinFormats = make(map[Format]struct{})
	for _, f := range list {
		builtinFormats[f] = struct{}{}
		formatList = append(formatList, string(f))
	}
}

// Formatter is a pluggable payload encoder, resolved by name when the
// configured Format is not one of the built-ins. The engine only invokes
// it; it does not define its behavior.
type Formatter interface {
	Format(tag string, time int64, record map[string]any) ([]byte, error)
}

// validateFormat validates the Format value against the built-ins and the
// delegated formatter registry.
func validateFormat(format Format, formatters map[string]Formatter) error {
	if format == "" {
		return nil
	}

	if _, ok := builtinFormats[format]; ok {
		return nil
	}

	if _, ok := formatters[string(format)]; ok {
		return nil
	}

	list := strings.Join(formatList, "', '")
	list = "'" + list + "'"
	return errors.Join(ErrValidation,
		fmt.Errorf("format '%s' is invalid: must be %s, empty, or a registered formatter name", format, list))
}
