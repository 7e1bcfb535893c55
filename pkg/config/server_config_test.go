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
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dataio/jobstore/jobstore/model"
)

func TestServerConfigMarshal(t *testing.T) {
	t.Parallel()

	conf := GetDefaultServerConfig()
	conf.Addr = "192.155.22.33:8887"
	conf.Scheduler.PromoteInterval = TomlDuration(3 * time.Second)

	b, err := conf.Marshal()
	require.Nil(t, err)
	require.Contains(t, b, `"addr":"192.155.22.33:8887"`)
	require.Contains(t, b, `"promote-interval":3000000000`)

	conf2 := new(ServerConfig)
	require.Nil(t, conf2.Unmarshal([]byte(b)))
	require.Equal(t, conf, conf2)
	require.Equal(t, b, conf2.String())
}

func TestServerConfigClone(t *testing.T) {
	t.Parallel()

	conf := GetDefaultServerConfig()
	conf2 := conf.Clone()
	require.Equal(t, conf, conf2)
	conf.Scheduler.MaxQueuedForDelivery = 1
	conf.EtcdEndpoints[0] = "http://10.0.0.1:2379"
	require.Equal(t, 1000, conf2.Scheduler.MaxQueuedForDelivery)
	require.Equal(t, "http://127.0.0.1:2379", conf2.EtcdEndpoints[0])
}

func TestServerConfigValidateAndAdjust(t *testing.T) {
	t.Parallel()

	conf := new(ServerConfig)
	require.Regexp(t, ".*empty address", conf.ValidateAndAdjust())
	conf.Addr = "localhost"
	require.Regexp(t, ".*invalid address localhost", conf.ValidateAndAdjust())

	conf.Addr = "127.0.0.1:8400"
	require.Nil(t, conf.ValidateAndAdjust())
	require.Equal(t, "default", conf.ClusterID)
	require.Equal(t, StoreMemory, conf.Store)
	require.Equal(t, TomlDuration(5*time.Second), conf.EtcdDialTimeout)
	require.Equal(t, "info", conf.Log.Level)
	require.Equal(t, GetDefaultServerConfig().Scheduler, conf.Scheduler)

	conf.ClusterID = "a/b"
	require.Regexp(t, ".*cluster-id must not contain.*", conf.ValidateAndAdjust())
	conf.ClusterID = "prod"

	conf.Store = "ETCD"
	require.Nil(t, conf.ValidateAndAdjust())
	require.Equal(t, StoreEtcd, conf.Store)
	conf.EtcdEndpoints = nil
	require.Regexp(t, ".*empty etcd endpoints", conf.ValidateAndAdjust())

	conf.Store = "redis"
	require.Regexp(t, ".*unknown store redis", conf.ValidateAndAdjust())

	conf.Store = StoreMemory
	conf.Scheduler.PromoteBatchSize = 0
	require.Regexp(t, ".*promote-batch-size must be larger than 0", conf.ValidateAndAdjust())
}

func TestSchedulerConfigValidateAndAdjust(t *testing.T) {
	t.Parallel()

	cases := []struct {
		modify func(c *SchedulerConfig)
		errMsg string
	}{
		{func(c *SchedulerConfig) {}, ""},
		{func(c *SchedulerConfig) { c.MaxQueuedForProcessing = 0 }, "max-queued-for-processing"},
		{func(c *SchedulerConfig) { c.MaxQueuedForDelivery = -1 }, "max-queued-for-delivery"},
		{func(c *SchedulerConfig) { c.TransitionToDirectMark = -1 }, "transition-to-direct-mark"},
		{func(c *SchedulerConfig) { c.TransitionToDirectMark = 0 }, ""},
		{func(c *SchedulerConfig) { c.PromoteInterval = 0 }, "promote-interval"},
		{func(c *SchedulerConfig) { c.EventTTL = 0 }, "event-ttl"},
	}
	for _, cs := range cases {
		c := GetDefaultServerConfig().Scheduler
		cs.modify(c)
		err := c.ValidateAndAdjust()
		if cs.errMsg == "" {
			require.Nil(t, err)
			continue
		}
		require.Regexp(t, ".*ErrInvalidServerOption.*"+cs.errMsg+".*", err)
	}
}

func TestSchedulerConfigLimits(t *testing.T) {
	t.Parallel()

	c := GetDefaultServerConfig().Scheduler
	c.MaxQueuedForProcessing = 8
	c.MaxQueuedForDelivery = 4
	c.TransitionToDirectMark = 2
	limits := c.Limits()

	max, ok := limits.MaxFor(model.QueuedForProcessing)
	require.True(t, ok)
	require.Equal(t, int64(8), max)
	max, ok = limits.MaxFor(model.QueuedForDelivery)
	require.True(t, ok)
	require.Equal(t, int64(4), max)
	require.True(t, limits.AllowsDirect(1))
	require.False(t, limits.AllowsDirect(2))
}

func TestTomlDuration(t *testing.T) {
	t.Parallel()

	var d TomlDuration
	require.Nil(t, d.UnmarshalText([]byte("1m30s")))
	require.Equal(t, TomlDuration(90*time.Second), d)
	require.Error(t, d.UnmarshalText([]byte("soon")))

	require.Nil(t, d.UnmarshalJSON([]byte("1000")))
	require.Equal(t, TomlDuration(time.Microsecond), d)
}
