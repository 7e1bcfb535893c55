// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package etcd

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/dataio/jobstore/pkg/leakutil"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

type mockClient struct {
	clientv3.KV
}

func (m *mockClient) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (resp *clientv3.GetResponse, err error) {
	return &clientv3.GetResponse{}, nil
}

func (m *mockClient) Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (resp *clientv3.PutResponse, err error) {
	return nil, errors.New("mock error")
}

func (m *mockClient) Txn(ctx context.Context) clientv3.Txn {
	return &mockTxn{ctx: ctx}
}

type mockWatcher struct {
	clientv3.Watcher
	watchCh      chan clientv3.WatchResponse
	resetCount   *int
	requestCount *int
	rev          *int64
}

func (m mockWatcher) Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan {
	*m.resetCount++
	op := &clientv3.Op{}
	for _, opt := range opts {
		opt(op)
	}
	*m.rev = op.Rev()
	return m.watchCh
}

func (m mockWatcher) RequestProgress(ctx context.Context) error {
	*m.requestCount++
	return nil
}

func TestRetry(t *testing.T) {
	originValue := maxTries
	// to speedup the test
	maxTries = 2
	defer func() { maxTries = originValue }()

	cli := clientv3.NewCtxClient(context.TODO())
	cli.KV = &mockClient{}
	retrycli := Wrap(cli, nil)
	get, err := retrycli.Get(context.TODO(), "")
	require.NoError(t, err)
	require.NotNil(t, get)

	_, err = retrycli.Put(context.TODO(), "", "")
	require.NotNil(t, err)
	require.Containsf(t, errors.Cause(err).Error(), "mock error", "err:%v", err.Error())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Test Txn case
	// case 0: normal
	rsp, err := retrycli.Txn(ctx, nil, nil, nil)
	require.NoError(t, err)
	require.False(t, rsp.Succeeded)

	// case 1: errors.ErrReachMaxTry
	_, err = retrycli.Txn(ctx, []clientv3.Cmp{}, nil, nil)
	require.Regexp(t, ".*DataIO:ErrReachMaxTry.*", err)

	// case 2: errors.ErrReachMaxTry
	_, err = retrycli.Txn(ctx, nil, []clientv3.Op{}, nil)
	require.Regexp(t, ".*DataIO:ErrReachMaxTry.*", err)

	// case 3: context.DeadlineExceeded
	_, err = retrycli.Txn(ctx, []clientv3.Cmp{}, []clientv3.Op{}, nil)
	require.Equal(t, context.DeadlineExceeded, errors.Cause(err))

	// other case: mock error
	_, err = retrycli.Txn(ctx, []clientv3.Cmp{}, []clientv3.Op{}, []clientv3.Op{})
	require.Containsf(t, errors.Cause(err).Error(), "mock error", "err:%v", err.Error())
}

func TestDelegateLease(t *testing.T) {
	s := NewTester(t)
	ctx := context.Background()
	cli := s.Client

	ttl := int64(10)
	lease, err := cli.Grant(ctx, ttl)
	require.NoError(t, err)

	ttlResp, err := cli.Unwrap().TimeToLive(ctx, lease.ID)
	require.NoError(t, err)
	require.Equal(t, ttl, ttlResp.GrantedTTL)
	require.Less(t, ttlResp.TTL, ttl)
	require.Greater(t, ttlResp.TTL, int64(0))

	_, err = cli.Revoke(ctx, lease.ID)
	require.NoError(t, err)
	ttlResp, err = cli.Unwrap().TimeToLive(ctx, lease.ID)
	require.NoError(t, err)
	require.Equal(t, int64(-1), ttlResp.TTL)

	// Revoking twice is not retried.
	_, err = cli.Revoke(ctx, lease.ID)
	require.Error(t, err)
}

func TestPutGetDelete(t *testing.T) {
	s := NewTester(t)
	ctx := context.Background()
	cli := s.Client

	_, err := cli.Put(ctx, "/a", "1")
	require.NoError(t, err)
	resp, err := cli.Get(ctx, "/a")
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 1)
	require.Equal(t, "1", string(resp.Kvs[0].Value))

	txnResp, err := cli.Txn(ctx,
		[]clientv3.Cmp{clientv3.Compare(clientv3.ModRevision("/a"), "=", resp.Kvs[0].ModRevision)},
		[]clientv3.Op{clientv3.OpPut("/a", "2")}, nil)
	require.NoError(t, err)
	require.True(t, txnResp.Succeeded)

	txnResp, err = cli.Txn(ctx,
		[]clientv3.Cmp{clientv3.Compare(clientv3.ModRevision("/a"), "=", resp.Kvs[0].ModRevision)},
		[]clientv3.Op{clientv3.OpPut("/a", "3")}, nil)
	require.NoError(t, err)
	require.False(t, txnResp.Succeeded)

	_, err = cli.Delete(ctx, "/a")
	require.NoError(t, err)
	resp, err = cli.Get(ctx, "/a")
	require.NoError(t, err)
	require.Empty(t, resp.Kvs)
}

type mockTxn struct {
	ctx  context.Context
	mode int
}

func (txn *mockTxn) If(cs ...clientv3.Cmp) clientv3.Txn {
	if cs != nil {
		txn.mode += 1
	}
	return txn
}

func (txn *mockTxn) Then(ops ...clientv3.Op) clientv3.Txn {
	if ops != nil {
		txn.mode += 1 << 1
	}
	return txn
}

func (txn *mockTxn) Else(ops ...clientv3.Op) clientv3.Txn {
	if ops != nil {
		txn.mode += 1 << 2
	}
	return txn
}

func (txn *mockTxn) Commit() (*clientv3.TxnResponse, error) {
	switch txn.mode {
	case 0:
		return &clientv3.TxnResponse{}, nil
	case 1:
		return nil, rpctypes.ErrNoSpace
	case 2:
		return nil, rpctypes.ErrTimeoutDueToLeaderFail
	case 3:
		return nil, context.DeadlineExceeded
	default:
		return nil, errors.New("mock error")
	}
}

func TestWatchChBlocked(t *testing.T) {
	cli := clientv3.NewCtxClient(context.TODO())
	resetCount := 0
	requestCount := 0
	rev := int64(0)
	watchCh := make(chan clientv3.WatchResponse, 1)
	watcher := mockWatcher{watchCh: watchCh, resetCount: &resetCount, requestCount: &requestCount, rev: &rev}
	cli.Watcher = watcher

	sentRes := []clientv3.WatchResponse{
		{CompactRevision: 1},
		{CompactRevision: 2},
		{CompactRevision: 3},
	}

	go func() {
		for _, r := range sentRes {
			watchCh <- r
		}
	}()

	mockClock := clock.NewMock()
	watchCli := Wrap(cli, nil)
	watchCli.clock = mockClock

	key := "testWatchChBlocked"
	outCh := make(chan clientv3.WatchResponse, 6)
	revision := int64(1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
	defer cancel()

	go func() {
		watchCli.WatchWithChan(ctx, outCh, key, "", clientv3.WithPrefix(), clientv3.WithRev(revision))
	}()
	receivedRes := make([]clientv3.WatchResponse, 0)
	// wait for WatchWithChan to set up
	r := <-outCh
	receivedRes = append(receivedRes, r)
	// move time forward
	mockClock.Add(time.Second * 30)

	for r := range outCh {
		receivedRes = append(receivedRes, r)
		if len(receivedRes) == len(sentRes) {
			cancel()
		}
	}

	require.Equal(t, sentRes, receivedRes)
	// make sure watchCh has been reset since timeout
	require.True(t, resetCount > 1)
	// make sure RequestProgress has been call since timeout
	require.True(t, requestCount > 1)
	// make sure lastRevision is passed to the reset watch
	require.Equal(t, revision, rev)
}
