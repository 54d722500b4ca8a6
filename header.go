// SPDX-FileCopyrightText: 2026 Fluxline, Inc.
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// recordFieldPrefix marks a header value as a reference to a record field
// rather than a literal. "record.user" resolves to record["user"].
const recordFieldPrefix = "record."

// buildHeaders builds the Kafka record headers for one encoded message.
// Header values can be literals or record.* references resolved against the
// record the message was encoded from. References to absent or empty fields
// produce no header. Multiple values per key are supported.
// Returns a nil-safe slice of kgo.RecordHeader.
func buildHeaders(headers map[string][]string, record map[string]any) []kgo.RecordHeader {
	if len(headers) == 0 {
		return nil
	}

	out := make([]kgo.RecordHeader, 0, len(headers))
	for key, values := range headers {
		for _, value := range values {
			if field, ok := strings.CutPrefix(value, recordFieldPrefix); ok {
				v, present := record[field]
				if !present {
					continue
				}
				s := stringify(v)
				if s == "" {
					continue
				}
				out = append(out, kgo.RecordHeader{
					Key:   key,
					Value: []byte(s),
				})
				continue
			}

			out = append(out, kgo.RecordHeader{
				Key:   key,
				Value: []byte(value),
			})
		}
	}

	return out
}

// validateHeaders validates the static header configuration.
func validateHeaders(headers map[string][]string) error {
	for key, values := range headers {
		if key == "" {
			return errors.Join(ErrValidation, fmt.Errorf("header key must not be empty"))
		}
		if len(values) == 0 {
			return errors.Join(ErrValidation, fmt.Errorf("header %q must have at least one value", key))
		}
		for _, value := range values {
			if value == recordFieldPrefix {
				return errors.Join(ErrValidation,
					fmt.Errorf("header %q has an empty record field reference", key))
			}
		}
	}
	return nil
}
