// SPDX-FileCopyrightText: 2026 Fluxline, Inc.
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"errors"
	"fmt"
	"strings"
)

// Separator specifies the field separator used by the attribute list format.
type Separator string

const (
	// SeparatorTab joins attributes with a tab character (default).
	SeparatorTab Separator = "tab"

	// SeparatorSpace joins attributes with a space.
	SeparatorSpace Separator = "space"

	// SeparatorComma joins attributes with a comma.
	SeparatorComma Separator = "comma"

	// SeparatorSOH joins attributes with the SOH control character (0x01),
	// common in FIX-style feeds.
	SeparatorSOH Separator = "soh"
)

var separatorRunes map[Separator]string
var separatorList []string

func init() {
	separatorRunes = map[Separator]string{
		SeparatorTab:   "\t",
		SeparatorSpace: " ",
		SeparatorComma: ",",
		SeparatorSOH:   "\x01",
	}

	for _, s := range []Separator{SeparatorTab, SeparatorSpace, SeparatorComma, SeparatorSOH} {
		separatorList = append(separatorList, string(s))
	}
}

// validateSeparator validates the Separator enum value.
func validateSeparator(sep Separator) error {
	if sep == "" {
		return nil
	}

	_, ok := separatorRunes[sep]
	if ok {
		return nil
	}

	list := strings.Join(separatorList, "', '")
	list = "'" + list + "'"
	return errors.Join(ErrValidation,
		fmt.Errorf("separator '%s' is invalid: must be %s or empty", sep, list))
}

// separatorString returns the join string for the Separator enum.
// An empty value means tab.
func separatorString(sep Separator) string {
	if s, ok := separatorRunes[sep]; ok {
		return s
	}
	return "\t"
}
