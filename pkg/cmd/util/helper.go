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

// Package util holds the process plumbing shared by the commands.
package util

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	cerror "github.com/dataio/jobstore/pkg/errors"
	"github.com/dataio/jobstore/pkg/logutil"
)

var shutdownSignals = []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}

// InitCmd initializes the global logger and returns the context of the
// command.
func InitCmd(logCfg *logutil.Config) (context.Context, context.CancelFunc, error) {
	if err := logutil.InitLogger(logCfg); err != nil {
		return nil, nil, errors.Annotate(err, "init logger")
	}
	log.Info("init log", zap.String("file", logCfg.File), zap.String("level", logCfg.Level))
	ctx, cancel := context.WithCancel(context.Background())
	return ctx, cancel, nil
}

// CancelOnSignal calls cancel on the first shutdown signal, and exit on the
// second one. The returned function stops the handling.
func CancelOnSignal(cancel context.CancelFunc, exit func(code int)) (stop func()) {
	// systemd and k8s send signals twice, the second one asks for a forced
	// shutdown.
	sc := make(chan os.Signal, 2)
	signal.Notify(sc, shutdownSignals...)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sc:
			log.Info("got signal, stop the job store server", zap.Stringer("signal", sig))
			cancel()
		case <-done:
			return
		}
		select {
		case sig := <-sc:
			log.Warn("got signal again, exit now", zap.Stringer("signal", sig))
			exit(1)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sc)
		close(done)
	}
}

// StrictDecodeFile decodes a toml file into cfg. Keys that cfg has no field
// for are an error, so that typos do not go unnoticed.
func StrictDecodeFile(path string, cfg interface{}) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return cerror.WrapError(cerror.ErrDecodeFailed, err, path)
	}
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}
	return cerror.ErrInvalidServerOption.GenWithStackByArgs(
		"config file " + path + " contained unknown configuration options: " + strings.Join(keys, ", "))
}
