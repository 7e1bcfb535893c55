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
	"net"
	"net/http"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/dataio/jobstore/jobstore/codec"
	"github.com/dataio/jobstore/jobstore/model"
	"github.com/dataio/jobstore/jobstore/scheduler"
	"github.com/dataio/jobstore/jobstore/store/etcdstore"
	"github.com/dataio/jobstore/jobstore/store/memstore"
	"github.com/dataio/jobstore/pkg/config"
	cerror "github.com/dataio/jobstore/pkg/errors"
	"github.com/dataio/jobstore/pkg/etcd"
)

const (
	// maxHTTPConnection is used to limit the max concurrent connections of http server.
	maxHTTPConnection = 1000
	// httpConnectionTimeout is used to limit a connection max alive time of http server.
	httpConnectionTimeout = 10 * time.Minute
)

// Server hosts a chunk scheduler together with its store, the cluster event
// log and the metrics endpoint.
type Server struct {
	conf      *config.ServerConfig
	registry  *prometheus.Registry
	etcdCli   *etcd.Client
	eventLog  *etcdstore.EventLog
	scheduler *scheduler.Scheduler

	listener     net.Listener
	statusServer *http.Server
}

// New creates a server. Admitted chunks are handed to dispatcher.
func New(ctx context.Context, conf *config.ServerConfig, dispatcher scheduler.Dispatcher) (*Server, error) {
	s := &Server{
		conf:     conf,
		registry: newRegistry(),
	}

	var (
		tracking scheduler.TrackingMap
		counters scheduler.CountersMap
	)
	opts := []scheduler.Option{
		scheduler.WithLimits(conf.Scheduler.Limits()),
		scheduler.WithPromoteInterval(time.Duration(conf.Scheduler.PromoteInterval)),
		scheduler.WithPromoteBatchSize(conf.Scheduler.PromoteBatchSize),
	}
	switch conf.Store {
	case config.StoreEtcd:
		cli, err := etcd.NewClient(ctx, conf.EtcdEndpoints, time.Duration(conf.EtcdDialTimeout))
		if err != nil {
			return nil, errors.Trace(err)
		}
		factory := codec.NewDataIOFactory()
		s.etcdCli = cli
		s.eventLog = etcdstore.NewEventLog(cli, conf.ClusterID, conf.Scheduler.EventTTL, factory)
		tracking = etcdstore.NewTrackingMap(cli, conf.ClusterID, factory)
		counters = etcdstore.NewCountersMap(cli, conf.ClusterID, factory)
		opts = append(opts, scheduler.WithEventPublisher(s.eventLog))
	default:
		tracking = memstore.New(model.TrackingKey.Less, (*model.DependencyTracking).Clone)
		counters = memstore.New(
			func(a, b model.SinkID) bool { return a < b }, model.StatusCounters.Clone)
	}
	s.scheduler = scheduler.New(tracking, counters, dispatcher, opts...)

	log.Info("job store server created",
		zap.String("store", conf.Store), zap.Stringer("config", conf))
	return s, nil
}

func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	etcd.InitMetrics(registry)
	etcdstore.InitMetrics(registry)
	scheduler.InitMetrics(registry)
	return registry
}

// Scheduler returns the hosted scheduler.
func (s *Server) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Run runs the server until ctx is done or a component fails.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.conf.Addr)
	if err != nil {
		return cerror.WrapError(cerror.ErrServeHTTP, err)
	}
	s.listener = netutil.LimitListener(lis, maxHTTPConnection)
	return s.run(ctx)
}

func (s *Server) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg, cctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return s.scheduler.Run(cctx)
	})

	if s.eventLog != nil {
		events, err := s.eventLog.Watch(cctx)
		if err != nil {
			return errors.Trace(err)
		}
		wg.Go(func() error {
			return s.followEvents(cctx, events)
		})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.statusServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  httpConnectionTimeout,
		WriteTimeout: httpConnectionTimeout,
	}
	wg.Go(func() error {
		log.Info("http server is running", zap.String("addr", s.conf.Addr))
		err := s.statusServer.Serve(s.listener)
		if err != nil && err != http.ErrServerClosed {
			return cerror.WrapError(cerror.ErrServeHTTP, err)
		}
		return nil
	})
	wg.Go(func() error {
		<-cctx.Done()
		return errors.Trace(s.statusServer.Close())
	})

	return wg.Wait()
}

// followEvents runs a promotion pass for every sink where another member
// released queued capacity.
func (s *Server) followEvents(ctx context.Context, events <-chan etcdstore.PublishedEvent) error {
	for {
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return errors.Trace(ctx.Err())
			}
			if ev.Source == s.eventLog.Source() || !ev.Event.OldStatus.IsQueued() {
				continue
			}
			if _, err := s.scheduler.PromoteSink(ctx, ev.Event.SinkID); err != nil {
				if errors.Cause(err) == context.Canceled {
					return errors.Trace(err)
				}
				log.Warn("promotion after remote event failed",
					zap.Stringer("event", ev.Event), zap.Error(err))
			}
		}
	}
}

// Close closes the server.
func (s *Server) Close() error {
	s.scheduler.Close()
	var err error
	if s.statusServer != nil {
		err = multierr.Append(err, s.statusServer.Close())
		s.statusServer = nil
	}
	if s.eventLog != nil {
		err = multierr.Append(err, s.eventLog.Close(context.Background()))
	}
	if s.etcdCli != nil {
		err = multierr.Append(err, s.etcdCli.Close())
		s.etcdCli = nil
	}
	return err
}
