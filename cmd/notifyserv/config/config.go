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

// Package config holds the daemon's TOML configuration and maps it onto
// per-component configs.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"dartnotify/cmd/notifyserv/handler"
	"dartnotify/cmd/notifyserv/notifier"
	"dartnotify/cmd/notifyserv/storage/db"
	"dartnotify/pkg/dnd"
	"dartnotify/pkg/initmgr"
	"dartnotify/pkg/service"
	"dartnotify/pkg/transaction"
	"dartnotify/pkg/util"
)

// Initializer loads the config file named by its argument; registered
// first with initmgr since everything else depends on it.
var Initializer initmgr.IInitializer = initmgr.NewInitializer(initialize, nil)

func initialize(args ...interface{}) error {
	if len(args) < 1 {
		return fmt.Errorf("config: file name argument expected")
	}
	filename, ok := args[0].(string)
	if !ok {
		return fmt.Errorf("config: file name argument expected")
	}
	return LoadConfig(filename)
}

type Config struct {
	TCPListenAddr   string
	UDPListenAddr   string
	AdminUID        uint32
	MaxAuthFailures int
	DbPath          string
	LogLevel        string
	StatsInterval   util.Duration

	Directory   dnd.Config
	Transaction transaction.Config
	Notifier    notifier.Config
	Service     service.Config
	DB          db.Config
}

// ServerConfig is the process-wide configuration, populated by LoadConfig.
var ServerConfig = Config{
	TCPListenAddr: ":2152",
	UDPListenAddr: ":2154",
	DbPath:        "notify.db",
	LogLevel:      "info",
	StatsInterval: util.Duration{Duration: time.Minute},
}

func LoadConfig(path string) error {
	if _, err := toml.DecodeFile(path, &ServerConfig); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	ServerConfig.SetDefaultIfNotDefined()
	return ServerConfig.Validate()
}

func (cfg *Config) SetDefaultIfNotDefined() {
	if len(cfg.TCPListenAddr) == 0 {
		cfg.TCPListenAddr = ":2152"
	}
	if len(cfg.UDPListenAddr) == 0 {
		cfg.UDPListenAddr = ":2154"
	}
	if len(cfg.DbPath) == 0 {
		cfg.DbPath = "notify.db"
	}
	if cfg.StatsInterval.Duration == 0 {
		cfg.StatsInterval.Duration = time.Minute
	}
	cfg.Directory.SetDefaultIfNotDefined()
	cfg.Transaction.SetDefaultIfNotDefined()
	cfg.Notifier.SetDefaultIfNotDefined()
	cfg.Service.SetDefaultIfNotDefined()
	cfg.DB.SetDefaultIfNotDefined()
}

func (cfg *Config) Validate() error {
	if len(cfg.TCPListenAddr) == 0 || len(cfg.UDPListenAddr) == 0 {
		return fmt.Errorf("config: listen addresses must be set")
	}
	if len(cfg.DbPath) == 0 {
		return fmt.Errorf("config: DbPath must be set")
	}
	return nil
}

// NotifierConfig resolves the [Notifier] section against the top-level
// listen address and transaction settings.
func (cfg *Config) NotifierConfig() notifier.Config {
	out := cfg.Notifier
	out.ListenAddr = cfg.UDPListenAddr
	out.Transaction = cfg.Transaction
	return out
}

func (cfg *Config) HandlerConfig() handler.Config {
	return handler.Config{
		AdminUID:        cfg.AdminUID,
		MaxAuthFailures: cfg.MaxAuthFailures,
		IdleTimeout:     cfg.Service.IdleTimeout,
		WriteTimeout:    cfg.Service.WriteTimeout,
	}
}

func (cfg *Config) ServiceConfig() service.Config {
	out := cfg.Service
	if len(out.Listener) == 0 {
		out.Listener = []service.ListenerConfig{
			{Name: "posting", Network: "tcp", Addr: cfg.TCPListenAddr},
		}
	}
	return out
}

func (cfg *Config) DBConfig() db.Config {
	out := cfg.DB
	out.Path = cfg.DbPath
	return out
}
