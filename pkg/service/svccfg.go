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

package service

import (
	"fmt"
	"time"

	"dartnotify/pkg/util"
)

const (
	kDefaultShutdownWaitTime = 10 * time.Second
	kDefaultIdleTimeout      = 10 * time.Minute
	kDefaultWriteTimeout     = 30 * time.Second
)

type ListenerConfig struct {
	Name    string
	Network string
	Addr    string
}

func (cfg *ListenerConfig) SetDefaultIfNotDefined() {
	if len(cfg.Network) == 0 {
		cfg.Network = "tcp"
	}
	if len(cfg.Name) == 0 {
		cfg.Name = cfg.Addr
	}
}

type Config struct {
	Listener         []ListenerConfig
	IdleTimeout      util.Duration
	WriteTimeout     util.Duration
	ShutdownWaitTime util.Duration
}

var DefaultConfig = Config{
	IdleTimeout:      util.Duration{Duration: kDefaultIdleTimeout},
	WriteTimeout:     util.Duration{Duration: kDefaultWriteTimeout},
	ShutdownWaitTime: util.Duration{Duration: kDefaultShutdownWaitTime},
}

func (cfg *Config) SetDefaultIfNotDefined() {
	for i := range cfg.Listener {
		cfg.Listener[i].SetDefaultIfNotDefined()
	}
	if cfg.IdleTimeout.Duration == 0 {
		cfg.IdleTimeout.Duration = kDefaultIdleTimeout
	}
	if cfg.WriteTimeout.Duration == 0 {
		cfg.WriteTimeout.Duration = kDefaultWriteTimeout
	}
	if cfg.ShutdownWaitTime.Duration == 0 {
		cfg.ShutdownWaitTime.Duration = kDefaultShutdownWaitTime
	}
}

func (cfg *Config) Validate() (err error) {
	if len(cfg.Listener) == 0 {
		err = fmt.Errorf("no listener defined")
	}
	return
}
