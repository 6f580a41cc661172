//
//  Copyright 2023 PayPal Inc.
//
//  Licensed to the Apache Software Foundation (ASF) under one or more
//  contributor license agreements.  See the NOTICE file distributed with
//  this work for additional information regarding copyright ownership.
//  The ASF licenses this file to You under the Apache License, Version 2.0
//  (the "License"); you may not use this file except in compliance with
//  the License.  You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.
//

// Package app assembles the daemon: store, datagram notifier, posting
// service, and their shared lifecycle.
package app

import (
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"

	"dartnotify/cmd/notifyserv/config"
	"dartnotify/cmd/notifyserv/handler"
	"dartnotify/cmd/notifyserv/notifier"
	"dartnotify/cmd/notifyserv/storage/db"
	"dartnotify/pkg/dnd"
	"dartnotify/pkg/service"
	"dartnotify/pkg/stats"
)

type App struct {
	store *db.DB
	ntf   *notifier.Server
	svc   *service.Service
	st    *stats.ServerStats

	stopOnce sync.Once
	chStats  chan struct{}
}

var theApp App

// Initialize builds every component from config.ServerConfig. Registered
// with initmgr after the config loader.
func Initialize(args ...interface{}) (err error) {
	cfg := &config.ServerConfig
	applyLogLevel(cfg.LogLevel)

	theApp.st = stats.NewServerStats()
	theApp.chStats = make(chan struct{})

	if theApp.store, err = db.OpenDB(cfg.DBConfig()); err != nil {
		return err
	}
	if theApp.ntf, err = notifier.NewServer(cfg.NotifierConfig(), theApp.store, theApp.st); err != nil {
		theApp.store.Close()
		return err
	}

	dircfg := cfg.Directory
	dial := func() (dnd.IDirectory, error) {
		return dnd.NewSession(dircfg)
	}
	h := handler.NewRequestHandler(cfg.HandlerConfig(), theApp.store, theApp.ntf, dial, theApp.st)
	if theApp.svc, err = service.NewService(cfg.ServiceConfig(), h); err != nil {
		theApp.ntf.Shutdown()
		theApp.store.Close()
		return err
	}
	return nil
}

// Run blocks until a terminating signal arrives and everything shuts
// down.
func Run() {
	theApp.ntf.Start()

	go statsLoop()
	go handleSignals()

	theApp.svc.Run()
}

// Finalize is the initmgr teardown hook; safe to call more than once.
func Finalize() {
	shutdown()
}

func shutdown() {
	theApp.stopOnce.Do(func() {
		glog.Infof("shutting down")
		close(theApp.chStats)
		// Resets go out before the store closes so clients start looking
		// for another server immediately.
		theApp.ntf.Shutdown()
		theApp.svc.Shutdown()
		if err := theApp.store.Close(); err != nil {
			glog.Errorf("closing store: %v", err)
		}
		glog.Flush()
	})
}

func handleSignals() {
	signal.Ignore(syscall.SIGPIPE)
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	glog.Infof("signal %s received", sig)
	shutdown()
}

func statsLoop() {
	interval := config.ServerConfig.StatsInterval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			glog.Infof("stats: %s; transport: %s",
				theApp.st.StateLine(), theApp.ntf.TransportStats().StateLine())
		case <-theApp.chStats:
			return
		}
	}
}

// applyLogLevel maps the config's symbolic level onto glog's -v flag when
// the operator did not pass one explicitly.
func applyLogLevel(level string) {
	if f := flag.Lookup("v"); f != nil && f.Value.String() != "0" {
		return
	}
	switch level {
	case "debug":
		flag.Set("v", "2")
	case "verbose":
		flag.Set("v", "1")
	}
}
