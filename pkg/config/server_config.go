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
	"encoding/json"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	cerror "github.com/dataio/jobstore/pkg/errors"
	"github.com/dataio/jobstore/pkg/etcd"
	"github.com/dataio/jobstore/pkg/logutil"
)

const (
	// StoreMemory keeps every map in process memory.
	StoreMemory = "memory"
	// StoreEtcd keeps every map in etcd and shares it between servers.
	StoreEtcd = "etcd"
)

var defaultServerConfig = &ServerConfig{
	Addr:            "127.0.0.1:8400",
	ClusterID:       etcd.DefaultClusterID,
	Store:           StoreMemory,
	EtcdEndpoints:   []string{"http://127.0.0.1:2379"},
	EtcdDialTimeout: TomlDuration(5 * time.Second),
	Log: &logutil.Config{
		Level:       "info",
		FileMaxSize: 300,
	},
	Scheduler: &SchedulerConfig{
		MaxQueuedForProcessing: 1000,
		MaxQueuedForDelivery:   1000,
		TransitionToDirectMark: 100,
		PromoteInterval:        TomlDuration(time.Second),
		PromoteBatchSize:       256,
		EventTTL:               60,
	},
}

var globalServerConfig atomic.Value

func init() {
	StoreGlobalServerConfig(GetDefaultServerConfig())
}

// ServerConfig represents a config for the job store server.
type ServerConfig struct {
	Addr      string `toml:"addr" json:"addr"`
	ClusterID string `toml:"cluster-id" json:"cluster-id"`
	// Store selects the backend of the tracking and counter maps.
	Store           string       `toml:"store" json:"store"`
	EtcdEndpoints   []string     `toml:"etcd-endpoints" json:"etcd-endpoints"`
	EtcdDialTimeout TomlDuration `toml:"etcd-dial-timeout" json:"etcd-dial-timeout"`

	Log       *logutil.Config  `toml:"log" json:"log"`
	Scheduler *SchedulerConfig `toml:"scheduler" json:"scheduler"`
}

// Marshal returns the json marshal format of a ServerConfig.
func (c *ServerConfig) Marshal() (string, error) {
	cfg, err := json.Marshal(c)
	if err != nil {
		return "", cerror.WrapError(cerror.ErrEncodeFailed, errors.Annotatef(err, "Unmarshal data: %v", c))
	}
	return string(cfg), nil
}

// Unmarshal unmarshals into *ServerConfig from json marshal byte slice.
func (c *ServerConfig) Unmarshal(data []byte) error {
	err := json.Unmarshal(data, c)
	if err != nil {
		return cerror.WrapError(cerror.ErrDecodeFailed, err)
	}
	return nil
}

// String implements the Stringer interface.
func (c *ServerConfig) String() string {
	s, _ := c.Marshal()
	return s
}

// Clone clones a server config.
func (c *ServerConfig) Clone() *ServerConfig {
	str, err := c.Marshal()
	if err != nil {
		log.Panic("failed to marshal server config",
			zap.Error(cerror.WrapError(cerror.ErrDecodeFailed, err)))
	}
	clone := new(ServerConfig)
	err = clone.Unmarshal([]byte(str))
	if err != nil {
		log.Panic("failed to unmarshal server config",
			zap.Error(cerror.WrapError(cerror.ErrDecodeFailed, err)))
	}
	return clone
}

// ValidateAndAdjust validates and adjusts the server configuration.
func (c *ServerConfig) ValidateAndAdjust() error {
	if c.Addr == "" {
		return cerror.ErrInvalidServerOption.GenWithStackByArgs("empty address")
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return cerror.ErrInvalidServerOption.GenWithStackByArgs("invalid address " + c.Addr)
	}
	if c.ClusterID == "" {
		c.ClusterID = etcd.DefaultClusterID
	}
	if strings.Contains(c.ClusterID, "/") {
		return cerror.ErrInvalidServerOption.GenWithStackByArgs("cluster-id must not contain '/'")
	}

	defaultCfg := GetDefaultServerConfig()
	c.Store = strings.ToLower(c.Store)
	switch c.Store {
	case "":
		c.Store = defaultCfg.Store
	case StoreMemory:
	case StoreEtcd:
		if len(c.EtcdEndpoints) == 0 {
			return cerror.ErrInvalidServerOption.GenWithStackByArgs("empty etcd endpoints")
		}
	default:
		return cerror.ErrInvalidServerOption.GenWithStackByArgs("unknown store " + c.Store)
	}
	if c.EtcdDialTimeout <= 0 {
		c.EtcdDialTimeout = defaultCfg.EtcdDialTimeout
	}

	if c.Log == nil {
		c.Log = defaultCfg.Log
	}
	c.Log.Adjust()

	if c.Scheduler == nil {
		c.Scheduler = defaultCfg.Scheduler
	}
	if err := c.Scheduler.ValidateAndAdjust(); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// GetDefaultServerConfig returns the default server config.
func GetDefaultServerConfig() *ServerConfig {
	return defaultServerConfig.Clone()
}

// GetGlobalServerConfig returns the global configuration for this server.
// It should store configuration from command line and configuration file.
// Other parts of the system can only read it.
func GetGlobalServerConfig() *ServerConfig {
	return globalServerConfig.Load().(*ServerConfig)
}

// StoreGlobalServerConfig stores a new config to the globalServerConfig.
// It mostly uses in the test to avoid some data races.
func StoreGlobalServerConfig(config *ServerConfig) {
	globalServerConfig.Store(config)
}

// TomlDuration is a duration with a custom json decoder and toml decoder.
type TomlDuration time.Duration

// UnmarshalText is the toml decoder.
func (d *TomlDuration) UnmarshalText(text []byte) error {
	stdDuration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TomlDuration(stdDuration)
	return nil
}

// UnmarshalJSON is the json decoder.
func (d *TomlDuration) UnmarshalJSON(b []byte) error {
	var stdDuration time.Duration
	if err := json.Unmarshal(b, &stdDuration); err != nil {
		return err
	}
	*d = TomlDuration(stdDuration)
	return nil
}
