// SPDX-FileCopyrightText: 2026 Fluxline, Inc.
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/xmidt-org/eventor"
)

// Record field names that override the configured routing defaults.
const (
	topicField        = "topic"
	partitionKeyField = "partition_key"
)

// Entry is one tagged, timestamped record handed to the engine.
type Entry struct {
	// Tag is the routing tag supplied by the upstream pipeline.
	Tag string

	// Time is the record timestamp in Unix seconds (or finer, as supplied).
	Time int64

	// Record is the structured payload. The engine never mutates it.
	Record map[string]any
}

// DispatchEvent represents an event when a batch has been delivered or failed
// to deliver.
type DispatchEvent struct {
	// Tag is the tag of the entry that triggered the flush.
	Tag string

	// Topic is the destination topic of the first message in the batch
	// (a batch may span multiple topics).
	Topic string

	// Messages is the number of messages in the batch.
	Messages int

	// Bytes is the cumulative payload size of the batch.
	Bytes int

	// Error is the error that occurred during delivery (nil for successful sends).
	Error error

	// ErrorType is the error classification (empty for successful sends).
	// Values: "delivery_error", "encoding_error", etc.
	ErrorType string

	// Duration is the time taken by the delivery call.
	Duration time.Duration
}

// Engine transforms, encodes, batches, and delivers tagged records to Kafka.
//
// Configure it by setting fields directly, then call Start() before the first
// dispatch. Lifecycle methods (Start, Stop) are safe for concurrent use, but
// dispatch is single-writer: callers must serialize DispatchGroup and
// DispatchEntry invocations per engine instance, because the delivery client
// is rebuilt in place during failure recovery. Independent engine instances
// share no state.
type Engine struct {
	// --- STATIC CONFIGURATION (set before Start, immutable after) ---

	// Resolver produces the broker list at startup and on every recovery
	// refresh. Required. Use StaticResolver for a fixed list or
	// RegistryResolver for coordination-registry discovery.
	Resolver BrokerResolver

	// DefaultTopic is the destination topic for records that carry no
	// "topic" field. When empty, the entry tag is used.
	DefaultTopic string

	// DefaultPartitionKey is the partition key for records that carry no
	// "partition_key" field. Optional; empty means no key.
	DefaultPartitionKey string

	// ClientID identifies this producer to the brokers.
	// Optional.
	ClientID string

	// Format selects the payload encoding. Empty means FormatJSON.
	// Any non-builtin value must name an entry in Formatters.
	Format Format

	// Attributes is the ordered attribute list for FormatAttr.
	Attributes []string

	// Separator joins attributes for FormatAttr. Empty means tab.
	Separator Separator

	// IncludeTag writes the entry tag into the record under "tag" before
	// encoding, and prepends it to the FormatAttr attribute list.
	IncludeTag bool

	// IncludeTime writes the entry time into the record under "time" before
	// encoding, and prepends it to the FormatAttr attribute list.
	IncludeTime bool

	// Formatters registers delegated formatters by name.
	// Optional.
	Formatters map[string]Formatter

	// FieldMappingSpec configures field defaulting as comma-delimited
	// `key:default` entries. Empty disables field mapping entirely.
	FieldMappingSpec string

	// ValueConversionSpec configures value substitution as comma-delimited
	// `match:replacement` entries, applied to every FieldMappingSpec key.
	// First match wins. A replacement equal to EmptyValueMarker resolves to
	// the empty string.
	ValueConversionSpec string

	// Headers defines Kafka record headers. Values starting with "record."
	// reference record fields; everything else is a literal.
	// Optional. Multiple values per key are supported.
	Headers map[string][]string

	// ExcludeTopicField drops the "topic" routing field from the encoded
	// payload.
	ExcludeTopicField bool

	// ExcludePartitionKeyField drops the "partition_key" routing field from
	// the encoded payload.
	ExcludePartitionKeyField bool

	// MaxBatchBytes bounds the cumulative payload size of one batch.
	// Zero or negative values mean DefaultMaxBatchBytes.
	MaxBatchBytes int

	// MaxRetries controls per-call retry behavior inside the delivery client.
	// <=0: no retries, fail immediately.
	MaxRetries int

	// Acks controls broker acknowledgments.
	// Valid: "all", "leader", "none". Empty means "all".
	Acks Acks

	// AckTimeout bounds how long the client waits for broker acknowledgment.
	// Zero or negative values mean the client default.
	AckTimeout time.Duration

	// Compression specifies the compression codec.
	// Valid: "snappy", "gzip", "lz4", "zstd", "none". Empty means none.
	Compression Compression

	// AllowAutoTopicCreation enables automatic topic creation when publishing
	// to non-existent topics.
	// Default: false (safer for production - prevents typos from creating topics).
	AllowAutoTopicCreation bool

	// SASL configures SASL authentication.
	// Optional. If nil, no authentication is used.
	SASL sasl.Mechanism

	// TLS configures TLS encryption.
	// Optional. If nil, plaintext connections are used.
	TLS *tls.Config

	// CleanupTimeout sets the maximum time to wait for buffered messages
	// to flush on shutdown. Zero or negative values mean no timeout.
	CleanupTimeout time.Duration

	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	// InitialDispatchEventListeners are event listeners registered when
	// Start() is called. For dynamic listener management after Start(), use
	// AddDispatchEventListener().
	// Optional.
	InitialDispatchEventListeners []func(*DispatchEvent)

	// --- INTERNAL FIELDS (not for user configuration) ---

	// logger is for internal use only.
	// The actively used logger instance (never nil after Start).
	logger kgo.Logger

	// clientFactory is for internal use only (testing hook).
	clientFactory clientFactory

	// lifecycleMu is for internal use only.
	// Protects started and client during Start/Stop.
	lifecycleMu sync.Mutex

	// started is for internal use only.
	started bool

	// client is for internal use only.
	// The current delivery client. Nil when the last broker resolution or
	// client build failed; rebuilt on the next recovery refresh. Owned
	// exclusively by this engine instance.
	client kafkaClient

	// mapper is for internal use only. Nil when field mapping is disabled.
	mapper *fieldMapper

	// encode is for internal use only.
	// The encoding strategy resolved once at Start.
	encode encodeFunc

	// dispatchEventListeners is for internal use only.
	// Event broadcaster for DispatchEvent notifications.
	dispatchEventListeners eventor.Eventor[func(*DispatchEvent)]

	// registerInitialListenersOnce is for internal use only.
	registerInitialListenersOnce sync.Once
}

// AddDispatchEventListener adds a listener for when a batch has been either
// delivered or failed to be delivered. The returned function removes the
// listener. Listeners must be thread-safe.
func (e *Engine) AddDispatchEventListener(fn func(*DispatchEvent)) func() {
	return e.dispatchEventListeners.Add(fn)
}

// Start validates the configuration, resolves the encoding strategy and
// field mapper, performs the initial broker resolution, and builds the
// delivery client. Must be called before dispatching.
//
// A failed broker resolution or client build is logged and leaves the engine
// without a usable delivery client until the next recovery refresh; it is not
// a Start error. Configuration problems are.
func (e *Engine) Start() error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}

	if e.clientFactory == nil {
		e.clientFactory = defaultClientFactory
	}

	logger := e.Logger
	if logger == nil {
		logger = &nopLogger{}
	}
	e.logger = logger

	e.registerInitialListenersOnce.Do(func() {
		for _, listener := range e.InitialDispatchEventListeners {
			e.dispatchEventListeners.Add(listener)
		}
	})

	if err := e.validate(); err != nil {
		return err
	}

	mapper, err := newFieldMapper(e.FieldMappingSpec, e.ValueConversionSpec)
	if err != nil {
		return err
	}
	e.mapper = mapper

	encode, err := newEncoder(encoderConfig{
		format:      e.Format,
		attributes:  e.Attributes,
		separator:   e.Separator,
		includeTag:  e.IncludeTag,
		includeTime: e.IncludeTime,
		formatters:  e.Formatters,
	})
	if err != nil {
		return err
	}
	e.encode = encode

	e.refreshClient(context.Background())
	e.started = true

	e.logger.Log(kgo.LogLevelInfo, "dispatch engine started")
	return nil
}

// Stop gracefully shuts down and flushes buffered messages.
// Blocks until messages are sent or timeout occurs.
// Safe to call multiple times (idempotent).
func (e *Engine) Stop(ctx context.Context) {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if !e.started {
		return
	}
	e.started = false

	if e.client == nil {
		return
	}

	e.logger.Log(kgo.LogLevelInfo, "stopping dispatch engine, flushing buffered messages")

	// Apply CleanupTimeout only if the context doesn't already have a deadline.
	// This respects caller-provided timeouts while providing a sensible default.
	if e.CleanupTimeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.CleanupTimeout)
			defer cancel()
		}
	}

	if err := e.client.Flush(ctx); err != nil {
		e.logger.Log(kgo.LogLevelWarn, "flush incomplete during shutdown", "error", err.Error())
	}

	e.client.Close()
	e.client = nil
}

// DispatchGroup consumes one finite record group in order: each entry is
// field-mapped, encoded, and appended to the byte-bounded batch; full batches
// are delivered as they flush and the remainder is delivered at end of input.
//
// On a delivery failure the engine refreshes the broker list, rebuilds the
// delivery client for the NEXT attempt, and returns the original error; it
// never re-sends any part of the current group itself. Callers own redelivery
// of the whole group, which is what makes delivery at-least-once. Encoding
// and field-mapping failures abort the group the same way, without a refresh.
func (e *Engine) DispatchGroup(ctx context.Context, group iter.Seq[Entry]) error {
	if !e.started {
		return ErrNotStarted
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	asm := newBatchAssembler(e.MaxBatchBytes)

	var lastTag string
	for entry := range group {
		lastTag = entry.Tag

		msg, err := e.buildMessage(entry)
		if err != nil {
			return err
		}

		if flushed := asm.append(msg); flushed != nil {
			if err := e.send(ctx, entry.Tag, flushed); err != nil {
				e.refreshClient(ctx)
				return err
			}
		}
	}

	if rest := asm.drain(); len(rest) > 0 {
		if err := e.send(ctx, lastTag, rest); err != nil {
			e.refreshClient(ctx)
			return err
		}
	}

	return nil
}

// DispatchEntry delivers a single entry immediately (non-batched mode).
// The ack continuation, when non-nil, is invoked before processing starts,
// so the upstream can mark the entry as handed off; a later failure is
// surfaced through the returned error and redelivered by the upstream.
func (e *Engine) DispatchEntry(ctx context.Context, entry Entry, ack func()) error {
	if !e.started {
		return ErrNotStarted
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if ack != nil {
		ack()
	}

	msg, err := e.buildMessage(entry)
	if err != nil {
		return err
	}

	if err := e.send(ctx, entry.Tag, []EncodedMessage{msg}); err != nil {
		e.refreshClient(ctx)
		return err
	}

	return nil
}

// buildMessage runs one entry through the field mapper and encoder and
// resolves its routing: a "topic" record field beats the configured default,
// which beats the tag; a "partition_key" record field beats the configured
// default key.
func (e *Engine) buildMessage(entry Entry) (EncodedMessage, error) {
	record := e.mapper.apply(entry.Record)

	topic := e.DefaultTopic
	if topic == "" {
		topic = entry.Tag
	}
	if v, ok := record[topicField]; ok {
		if s := stringify(v); s != "" {
			topic = s
		}
	}

	key := e.DefaultPartitionKey
	if v, ok := record[partitionKeyField]; ok {
		if s := stringify(v); s != "" {
			key = s
		}
	}

	headers := buildHeaders(e.Headers, record)

	encodable := e.stripRoutingFields(record)
	payload, err := e.encode(entry.Tag, entry.Time, encodable)
	if err != nil {
		return EncodedMessage{}, err
	}

	return EncodedMessage{
		Topic:   topic,
		Value:   payload,
		Key:     key,
		Headers: headers,
	}, nil
}

// stripRoutingFields removes the routing override fields from the encoded
// payload when configured to. Works on a copy; the input is never modified.
func (e *Engine) stripRoutingFields(record map[string]any) map[string]any {
	if !e.ExcludeTopicField && !e.ExcludePartitionKeyField {
		return record
	}

	_, hasTopic := record[topicField]
	_, hasKey := record[partitionKeyField]
	if !(e.ExcludeTopicField && hasTopic) && !(e.ExcludePartitionKeyField && hasKey) {
		return record
	}

	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	if e.ExcludeTopicField {
		delete(out, topicField)
	}
	if e.ExcludePartitionKeyField {
		delete(out, partitionKeyField)
	}
	return out
}

// send delivers one flushed batch through the current client, preserving
// message order. An absent client (failed resolution or build) counts as a
// delivery failure so the caller still gets its at-least-once signal.
func (e *Engine) send(ctx context.Context, tag string, batch []EncodedMessage) error {
	startTime := time.Now()

	event := DispatchEvent{
		Tag:      tag,
		Topic:    batch[0].Topic,
		Messages: len(batch),
	}
	for _, msg := range batch {
		event.Bytes += len(msg.Value)
	}

	if e.client == nil {
		err := errors.Join(ErrDelivery, fmt.Errorf("no delivery client available"))
		e.dispatchEvent(&event, startTime, err)
		return err
	}

	records := make([]*kgo.Record, 0, len(batch))
	for _, msg := range batch {
		record := &kgo.Record{
			Topic:   msg.Topic,
			Value:   msg.Value,
			Headers: msg.Headers,
		}
		if msg.Key != "" {
			record.Key = []byte(msg.Key)
		}
		records = append(records, record)
	}

	results := e.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		err = errors.Join(ErrDelivery, fmt.Errorf("broker rejected batch"), err)
		e.dispatchEvent(&event, startTime, err)
		return err
	}

	e.dispatchEvent(&event, startTime, nil)
	return nil
}

// refreshClient re-resolves the broker set and rebuilds the delivery client
// in place. Called once at Start and once after every delivery failure.
// Failures here only log: they leave the engine without a client, and the
// next refresh gets another chance.
func (e *Engine) refreshClient(ctx context.Context) {
	if e.client != nil {
		e.client.Close()
		e.client = nil
	}

	brokers, err := e.Resolver.Resolve(ctx)
	if err != nil {
		e.logger.Log(kgo.LogLevelWarn, "broker resolution failed",
			"error", errors.Join(ErrResolution, err).Error())
		brokers = nil
	}

	if len(brokers) == 0 {
		e.logger.Log(kgo.LogLevelWarn, "no brokers available, delivery disabled until next refresh")
		return
	}

	client, err := e.clientFactory(e.toKgoOpts(brokers)...)
	if err != nil {
		e.logger.Log(kgo.LogLevelWarn, "building delivery client failed",
			"error", errors.Join(ErrClientBuild, err).Error())
		return
	}

	e.client = client
	e.logger.Log(kgo.LogLevelInfo, "delivery client ready", "brokers", len(brokers))
}

// dispatchEvent dispatches a DispatchEvent to all registered listeners.
func (e *Engine) dispatchEvent(event *DispatchEvent, since time.Time, err error) {
	if err != nil {
		event.Error = err
		event.ErrorType = errorType(err)
	}
	event.Duration = time.Since(since)

	e.dispatchEventListeners.Visit(func(listener func(*DispatchEvent)) {
		listener(event)
	})
}

// validate validates the Engine's configuration.
// Called during Start() to ensure fail-fast behavior.
func (e *Engine) validate() error {
	if e.Resolver == nil {
		return errors.Join(ErrValidation, fmt.Errorf("a broker resolver is required"))
	}

	if err := validateFormat(e.Format, e.Formatters); err != nil {
		return err
	}

	if err := validateSeparator(e.Separator); err != nil {
		return err
	}

	if err := validateAcks(e.Acks); err != nil {
		return err
	}

	if err := validateCompression(e.Compression); err != nil {
		return err
	}

	if err := validateHeaders(e.Headers); err != nil {
		return err
	}

	return nil
}

// toKgoOpts converts the Engine's configuration to franz-go client options.
func (e *Engine) toKgoOpts(brokers []string) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.WithLogger(e.logger),
		kgo.ProducerBatchCompression(toKgoCompression(e.Compression)),
		kgo.RequiredAcks(toKgoAcks(e.Acks)),
	}

	// Idempotent production requires acks from all ISR replicas.
	if e.Acks == AcksLeader || e.Acks == AcksNone {
		opts = append(opts, kgo.DisableIdempotentWrite())
	}

	if e.ClientID != "" {
		opts = append(opts, kgo.ClientID(e.ClientID))
	}

	if e.AllowAutoTopicCreation {
		opts = append(opts, kgo.AllowAutoTopicCreation())
	}

	if e.SASL != nil {
		opts = append(opts, kgo.SASL(e.SASL))
	}

	if e.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(e.TLS))
	}

	if e.AckTimeout > 0 {
		opts = append(opts, kgo.ProduceRequestTimeout(e.AckTimeout))
	}

	// <=0 = client default, N = at most N tries per record
	if e.MaxRetries > 0 {
		opts = append(opts, kgo.RecordRetries(e.MaxRetries))
	}

	return opts
}
