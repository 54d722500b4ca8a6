// SPDX-FileCopyrightText: 2026 Fluxline, Inc.
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/twmb/franz-go/pkg/kgo"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// mockKafkaClient is a mock implementation of kafkaClient for testing.
type mockKafkaClient struct {
	mock.Mock
}

func (m *mockKafkaClient) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	args := m.Called(ctx, rs)
	return args.Get(0).(kgo.ProduceResults)
}

func (m *mockKafkaClient) Flush(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockKafkaClient) Close() {
	m.Called()
}

// mockResolver is a mock implementation of BrokerResolver for testing.
type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if got := args.Get(0); got != nil {
		return got.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockRegistryKV is a mock implementation of registryKV for testing.
type mockRegistryKV struct {
	mock.Mock
}

func (m *mockRegistryKV) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	args := m.Called(ctx, key)
	if got := args.Get(0); got != nil {
		return got.(*clientv3.GetResponse), args.Error(1)
	}
	return nil, args.Error(1)
}
