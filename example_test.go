// SPDX-FileCopyrightText: 2026 Fluxline, Inc.
// SPDX-License-Identifier: Apache-2.0

package kafkasink_test

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/fluxline/kafkasink"
)

// Example demonstrates basic usage of the dispatch engine.
func Example() {
	// Create an engine with static brokers and JSON encoding
	engine := &kafkasink.Engine{
		Resolver:     &kafkasink.StaticResolver{Brokers: []string{"localhost:9092"}},
		DefaultTopic: "events",
		IncludeTag:   true,
		IncludeTime:  true,
	}

	// Start the engine (resolves brokers, builds the delivery client)
	if err := engine.Start(); err != nil {
		log.Fatal(err)
	}
	defer engine.Stop(context.Background())

	// Dispatch one record group; the group is consumed lazily in order
	err := engine.DispatchGroup(context.Background(), func(yield func(kafkasink.Entry) bool) {
		yield(kafkasink.Entry{
			Tag:    "app.log",
			Time:   time.Now().Unix(),
			Record: map[string]any{"level": "info", "msg": "hello"},
		})
	})
	if err != nil {
		// The upstream buffer redelivers the same group later (at-least-once)
		log.Printf("dispatch failed: %v", err)
	}
}

// ExampleEngine demonstrates the full configuration surface.
func ExampleEngine() {
	engine := &kafkasink.Engine{
		// Broker discovery via an etcd coordination registry, re-queried on
		// every recovery refresh
		Resolver: &kafkasink.RegistryResolver{
			Endpoints: []string{"etcd-1:2379", "etcd-2:2379"},
			Prefix:    "/brokers/ids",
		},

		// Routing defaults; a record's own "topic" / "partition_key" fields
		// take precedence
		DefaultTopic:        "logs",
		DefaultPartitionKey: "host-1",

		// Payload encoding
		Format:      kafkasink.FormatAttr,
		Attributes:  []string{"level", "msg"},
		Separator:   kafkasink.SeparatorComma,
		IncludeTag:  true,
		IncludeTime: true,

		// Field defaulting and value substitution
		FieldMappingSpec:    "level:info,host:",
		ValueConversionSpec: "warn:warning,nil:" + kafkasink.EmptyValueMarker,

		// Batching and delivery
		MaxBatchBytes: 16 * 1024,
		ClientID:      "kafkasink-logs",
		Acks:          kafkasink.AcksAll,
		AckTimeout:    5 * time.Second,
		MaxRetries:    3,
		Compression:   kafkasink.CompressionSnappy,

		// Static record headers; record.* values resolve against the record
		Headers: map[string][]string{
			"origin": {"pipeline-7"},
			"user":   {"record.user"},
		},
	}

	if err := engine.Start(); err != nil {
		log.Fatal(err)
	}
	defer engine.Stop(context.Background())
}

// ExampleEngine_DispatchEntry demonstrates non-batched dispatch with an
// upstream acknowledgment continuation.
func ExampleEngine_DispatchEntry() {
	engine := &kafkasink.Engine{
		Resolver:     &kafkasink.StaticResolver{Brokers: []string{"localhost:9092"}},
		DefaultTopic: "events",
	}

	if err := engine.Start(); err != nil {
		log.Fatal(err)
	}
	defer engine.Stop(context.Background())

	entry := kafkasink.Entry{
		Tag:    "app.event",
		Time:   time.Now().Unix(),
		Record: map[string]any{"v": 1},
	}

	// The continuation runs before processing; a later delivery failure is
	// surfaced through the returned error for upstream redelivery.
	err := engine.DispatchEntry(context.Background(), entry, func() {
		// mark the entry as handed off in the upstream buffer
	})
	if errors.Is(err, kafkasink.ErrDelivery) {
		log.Printf("delivery failed, will be retried: %v", err)
	}
}

// ExampleEngine_AddDispatchEventListener demonstrates delivery observability.
func ExampleEngine_AddDispatchEventListener() {
	engine := &kafkasink.Engine{
		Resolver:     &kafkasink.StaticResolver{Brokers: []string{"localhost:9092"}},
		DefaultTopic: "events",
	}

	cancel := engine.AddDispatchEventListener(func(ev *kafkasink.DispatchEvent) {
		if ev.Error != nil {
			log.Printf("batch to %s failed (%s): %v", ev.Topic, ev.ErrorType, ev.Error)
			return
		}
		log.Printf("delivered %d messages (%d bytes) to %s in %s",
			ev.Messages, ev.Bytes, ev.Topic, ev.Duration)
	})
	defer cancel()

	if err := engine.Start(); err != nil {
		log.Fatal(err)
	}
	defer engine.Stop(context.Background())
}
