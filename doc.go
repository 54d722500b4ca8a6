// SPDX-FileCopyrightText: 2026 Fluxline, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package kafkasink dispatches tagged, timestamped structured records to a
// Kafka cluster, grouping them into byte-bounded batches per destination
// topic and recovering automatically from transient delivery failures.
//
// # Overview
//
// The kafkasink library is the output stage of a log/event pipeline: an
// upstream buffering subsystem decides what to send and when a group of
// records is ready, and hands it to an Engine. The Engine applies static
// field renaming/defaulting and value substitution, encodes each record with
// a format selected once at startup, assembles byte-bounded batches, and
// delivers them synchronously. Delivery failures trigger a broker refresh and
// client rebuild for the next attempt, then surface to the caller so the
// upstream can redeliver the group (at-least-once).
//
// # Quick Start
//
// Create an Engine by setting fields directly:
//
//	engine := &kafkasink.Engine{
//	    Resolver:     &kafkasink.StaticResolver{Brokers: []string{"localhost:9092"}},
//	    DefaultTopic: "events",
//	    Format:       kafkasink.FormatJSON,
//	    IncludeTag:   true,
//	    IncludeTime:  true,
//	}
//
//	if err := engine.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop(context.Background())
//
//	err := engine.DispatchGroup(ctx, func(yield func(kafkasink.Entry) bool) {
//	    yield(kafkasink.Entry{Tag: "app.log", Time: 1700000000, Record: map[string]any{"v": 1}})
//	})
//
// # Routing
//
// Each message's destination topic is, in order of precedence: the record's
// own "topic" field, the configured DefaultTopic, the entry tag. The
// partition key is the record's "partition_key" field, falling back to
// DefaultPartitionKey, falling back to none.
//
// # Broker Resolution
//
// The broker list comes from a BrokerResolver: either a StaticResolver with
// a fixed list, or a RegistryResolver that re-queries an etcd coordination
// registry on every refresh so broker membership changes are picked up. A
// failed resolution is logged and leaves the engine without a delivery
// client until the next refresh succeeds; it never kills the process.
//
// # Delivery Semantics
//
// Delivery is at-least-once. A group is either fully delivered (Dispatch
// returns nil) or the original failure is returned after a single
// refresh-and-rebuild of the delivery client; the engine never retries the
// current group internally, and never claims success for a group it did not
// fully deliver.
//
// # Thread Safety
//
// Start and Stop are safe for concurrent use. Dispatch calls are
// single-writer: serialize them per Engine instance. Independent instances
// share no state.
package kafkasink
