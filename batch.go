// SPDX-FileCopyrightText: 2026 Fluxline, Inc.
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import "github.com/twmb/franz-go/pkg/kgo"

// DefaultMaxBatchBytes is the batch byte budget used when Engine.MaxBatchBytes
// is zero.
const DefaultMaxBatchBytes = 4096

// EncodedMessage is one encoded record ready for delivery. Immutable once
// created: produced by the encoder, consumed by the assembler and the
// delivery client.
type EncodedMessage struct {
	// Topic is the destination topic.
	Topic string

	// Value is the serialized payload.
	Value []byte

	// Key is the partition key, empty for none.
	Key string

	// Headers are the Kafka record headers attached at encode time.
	Headers []kgo.RecordHeader
}

// batchAssembler accumulates encoded messages into a byte-bounded batch.
// The budget is advisory: it triggers a flush before a batch would grow past
// maxBytes, it never truncates or splits a message. A single message larger
// than the budget still ships, alone.
type batchAssembler struct {
	maxBytes int
	messages []EncodedMessage
	total    int
}

func newBatchAssembler(maxBytes int) *batchAssembler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBatchBytes
	}
	return &batchAssembler{maxBytes: maxBytes}
}

// append adds a message to the batch. When the batch is non-empty and the
// message would push the running byte total past the budget, the current
// batch is returned for delivery and a fresh one is started before the
// message is appended. Returns nil when no flush is due.
func (b *batchAssembler) append(msg EncodedMessage) []EncodedMessage {
	var flushed []EncodedMessage

	size := len(msg.Value)
	if len(b.messages) > 0 && b.total+size > b.maxBytes {
		flushed = b.messages
		b.messages = nil
		b.total = 0
	}

	b.messages = append(b.messages, msg)
	b.total += size

	return flushed
}

// drain returns the remaining batch at end of input, nil when empty.
func (b *batchAssembler) drain() []EncodedMessage {
	flushed := b.messages
	b.messages = nil
	b.total = 0
	return flushed
}
