// SPDX-FileCopyrightText: 2026 Fluxline, Inc.
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// BrokerResolver produces the current list of broker endpoints. Implementations
// are fixed at configuration time; the engine calls Resolve once at Start and
// again on every recovery refresh.
type BrokerResolver interface {
	Resolve(ctx context.Context) ([]string, error)
}

// ParseBrokerList splits a comma-delimited `host:port,host:port` endpoint
// string into a broker list.
func ParseBrokerList(spec string) ([]string, error) {
	var brokers []string
	for _, b := range strings.Split(spec, ",") {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		brokers = append(brokers, b)
	}

	if len(brokers) == 0 {
		return nil, errors.Join(ErrValidation,
			fmt.Errorf("broker list %q contains no endpoints", spec))
	}
	return brokers, nil
}

// StaticResolver returns a fixed broker list on every refresh.
type StaticResolver struct {
	// Brokers is the list of broker addresses in "host:port" format.
	Brokers []string
}

// Resolve returns a copy of the configured broker list.
func (r *StaticResolver) Resolve(context.Context) ([]string, error) {
	if len(r.Brokers) == 0 {
		return nil, errors.Join(ErrResolution,
			fmt.Errorf("static resolver has no brokers configured"))
	}

	out := make([]string, len(r.Brokers))
	copy(out, r.Brokers)
	return out, nil
}

// registryKV is the subset of the etcd client used by RegistryResolver.
// This allows us to mock the registry for testing while using the real
// clientv3.Client in production.
type registryKV interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
}

// Verify that *clientv3.Client implements registryKV at compile time.
var _ registryKV = (*clientv3.Client)(nil)

// brokerMeta is the per-broker metadata document stored in the registry.
type brokerMeta struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// RegistryResolver assembles the broker list from an etcd coordination
// registry. Broker identifiers are the keys under Prefix; each value is a
// JSON document carrying the broker's host and port. The registry is queried
// fresh on every Resolve call so membership changes are picked up on the
// engine's next refresh.
type RegistryResolver struct {
	// Endpoints is the list of etcd endpoints.
	// Required.
	Endpoints []string

	// Prefix is the registration path the brokers announce under.
	// Default: "/brokers/ids".
	Prefix string

	// DialTimeout bounds the initial registry connection.
	// Default: 5s.
	DialTimeout time.Duration

	// mu protects the lazily created registry connection.
	mu sync.Mutex

	// kv is for internal use only (testing hook).
	kv registryKV

	// client is the owned etcd connection, closed by Close.
	client *clientv3.Client
}

// Resolve queries the registry and assembles a fresh broker list.
func (r *RegistryResolver) Resolve(ctx context.Context) ([]string, error) {
	kv, err := r.connect()
	if err != nil {
		return nil, errors.Join(ErrResolution,
			fmt.Errorf("connecting to broker registry"), err)
	}

	prefix := r.Prefix
	if prefix == "" {
		prefix = "/brokers/ids"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	resp, err := kv.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Join(ErrResolution,
			fmt.Errorf("listing brokers under %q", prefix), err)
	}

	brokers := make([]string, 0, len(resp.Kvs))
	for _, kvp := range resp.Kvs {
		var meta brokerMeta
		if err := json.Unmarshal(kvp.Value, &meta); err != nil {
			return nil, errors.Join(ErrResolution,
				fmt.Errorf("malformed broker metadata at %q", string(kvp.Key)), err)
		}
		if meta.Host == "" || meta.Port == 0 {
			return nil, errors.Join(ErrResolution,
				fmt.Errorf("incomplete broker metadata at %q", string(kvp.Key)))
		}
		brokers = append(brokers, net.JoinHostPort(meta.Host, strconv.Itoa(meta.Port)))
	}

	return brokers, nil
}

// connect lazily establishes the registry connection. The connection is
// reused across refreshes; only the broker listing is repeated.
func (r *RegistryResolver) connect() (registryKV, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.kv != nil {
		return r.kv, nil
	}

	dialTimeout := r.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   r.Endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}

	r.client = client
	r.kv = client
	return r.kv, nil
}

// Close releases the registry connection. Safe to call multiple times.
func (r *RegistryResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	r.kv = nil
	return err
}
