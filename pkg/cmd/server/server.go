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
package server

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	jobserver "github.com/dataio/jobstore/jobstore/server"
	"github.com/dataio/jobstore/pkg/cmd/util"
	"github.com/dataio/jobstore/pkg/config"
	cerror "github.com/dataio/jobstore/pkg/errors"
	"github.com/dataio/jobstore/pkg/version"
)

// options defines flags for the `server` command.
type options struct {
	etcdEndpoints        string
	serverConfigFilePath string

	serverConfig *config.ServerConfig
}

// newOptions creates new options for the `server` command.
func newOptions() *options {
	return &options{
		serverConfig: config.GetDefaultServerConfig(),
	}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to template printing to it.
func (o *options) addFlags(cmd *cobra.Command) {
	defaultServerConfig := config.GetDefaultServerConfig()
	cmd.Flags().StringVar(&o.serverConfig.Addr, "addr", defaultServerConfig.Addr, "Set the listening address of the metrics endpoint")
	cmd.Flags().StringVar(&o.serverConfig.ClusterID, "cluster-id", defaultServerConfig.ClusterID, "Set the cluster id, servers sharing an etcd store and a cluster id share their state")
	cmd.Flags().StringVar(&o.serverConfig.Store, "store", defaultServerConfig.Store, "Set the store backend (memory|etcd)")
	cmd.Flags().StringVar(&o.etcdEndpoints, "etcd", strings.Join(defaultServerConfig.EtcdEndpoints, ","), "Set the etcd endpoints to use. Use ',' to separate multiple endpoints")
	cmd.Flags().DurationVar((*time.Duration)(&o.serverConfig.EtcdDialTimeout), "etcd-dial-timeout", time.Duration(defaultServerConfig.EtcdDialTimeout), "etcd dial timeout")
	cmd.Flags().StringVar(&o.serverConfig.Log.File, "log-file", defaultServerConfig.Log.File, "log file path")
	cmd.Flags().StringVar(&o.serverConfig.Log.Level, "log-level", defaultServerConfig.Log.Level, "log level (etc: debug|info|warn|error)")

	cmd.Flags().IntVar(&o.serverConfig.Scheduler.MaxQueuedForProcessing, "max-queued-for-processing", defaultServerConfig.Scheduler.MaxQueuedForProcessing, "maximum chunks of a sink queued for processing")
	cmd.Flags().IntVar(&o.serverConfig.Scheduler.MaxQueuedForDelivery, "max-queued-for-delivery", defaultServerConfig.Scheduler.MaxQueuedForDelivery, "maximum chunks of a sink queued for delivery")
	cmd.Flags().IntVar(&o.serverConfig.Scheduler.TransitionToDirectMark, "transition-to-direct-mark", defaultServerConfig.Scheduler.TransitionToDirectMark, "ready chunks of a sink below which a new ready chunk is admitted at once")
	cmd.Flags().DurationVar((*time.Duration)(&o.serverConfig.Scheduler.PromoteInterval), "promote-interval", time.Duration(defaultServerConfig.Scheduler.PromoteInterval), "interval between promotion passes")
	cmd.Flags().IntVar(&o.serverConfig.Scheduler.PromoteBatchSize, "promote-batch-size", defaultServerConfig.Scheduler.PromoteBatchSize, "maximum chunks admitted per sink and stage in one promotion pass")

	cmd.Flags().StringVar(&o.serverConfigFilePath, "config", "", "Path of the configuration file")
}

// complete adapts from the command line args and config file to the data required.
func (o *options) complete(cmd *cobra.Command) error {
	conf := config.GetDefaultServerConfig()
	if len(o.serverConfigFilePath) > 0 {
		if err := util.StrictDecodeFile(o.serverConfigFilePath, conf); err != nil {
			return err
		}
	}

	cmd.Flags().Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "addr":
			conf.Addr = o.serverConfig.Addr
		case "cluster-id":
			conf.ClusterID = o.serverConfig.ClusterID
		case "store":
			conf.Store = o.serverConfig.Store
		case "etcd":
			conf.EtcdEndpoints = splitEndpoints(o.etcdEndpoints)
		case "etcd-dial-timeout":
			conf.EtcdDialTimeout = o.serverConfig.EtcdDialTimeout
		case "log-file":
			conf.Log.File = o.serverConfig.Log.File
		case "log-level":
			conf.Log.Level = o.serverConfig.Log.Level
		case "max-queued-for-processing":
			conf.Scheduler.MaxQueuedForProcessing = o.serverConfig.Scheduler.MaxQueuedForProcessing
		case "max-queued-for-delivery":
			conf.Scheduler.MaxQueuedForDelivery = o.serverConfig.Scheduler.MaxQueuedForDelivery
		case "transition-to-direct-mark":
			conf.Scheduler.TransitionToDirectMark = o.serverConfig.Scheduler.TransitionToDirectMark
		case "promote-interval":
			conf.Scheduler.PromoteInterval = o.serverConfig.Scheduler.PromoteInterval
		case "promote-batch-size":
			conf.Scheduler.PromoteBatchSize = o.serverConfig.Scheduler.PromoteBatchSize
		case "config":
			// do nothing
		default:
			log.Panic("unknown flag, please report a bug", zap.String("flagName", flag.Name))
		}
	})

	if err := conf.ValidateAndAdjust(); err != nil {
		return errors.Trace(err)
	}
	o.serverConfig = conf
	return nil
}

// validate checks that the provided server options are valid.
func (o *options) validate() error {
	if o.serverConfig.Store != config.StoreEtcd {
		return nil
	}
	for _, ep := range o.serverConfig.EtcdEndpoints {
		if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
			return cerror.ErrInvalidServerOption.GenWithStackByArgs(
				"etcd endpoint should be a valid http or https URL: " + ep)
		}
	}
	return nil
}

func splitEndpoints(s string) []string {
	var endpoints []string
	for _, ep := range strings.Split(s, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints
}

func (o *options) run(cmd *cobra.Command) error {
	conf := o.serverConfig
	ctx, cancel, err := util.InitCmd(conf.Log)
	if err != nil {
		return errors.Trace(err)
	}
	defer cancel()

	config.StoreGlobalServerConfig(conf)
	version.LogVersionInfo()
	if conf.Store == config.StoreMemory {
		cmd.Printf(color.HiYellowString("[WARN] job store server uses the memory store, " +
			"its state is lost on exit and not shared with other servers.\n"))
	}

	server, err := jobserver.New(ctx, conf, jobserver.LogDispatcher{})
	if err != nil {
		return errors.Annotate(err, "new server")
	}
	defer util.CancelOnSignal(cancel, os.Exit)()

	err = server.Run(ctx)
	if err != nil && errors.Cause(err) != context.Canceled {
		log.Error("run server", zap.String("error", errors.ErrorStack(err)))
		return errors.Annotate(err, "run server")
	}
	if err := server.Close(); err != nil {
		log.Warn("close server", zap.Error(err))
	}
	log.Info("job store server exits successfully")

	return nil
}

// NewCmdServer creates the `server` command.
func NewCmdServer() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "server",
		Short: "Start a job store server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.complete(cmd); err != nil {
				return err
			}
			if err := o.validate(); err != nil {
				return err
			}
			return o.run(cmd)
		},
	}

	o.addFlags(command)

	return command
}
