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

package notifier

import (
	"time"

	"dartnotify/pkg/transaction"
	"dartnotify/pkg/util"
)

const (
	kDefaultListenAddr    = ":2154"
	kDefaultClientMaxAge  = 10 * time.Minute
	kDefaultSweepInterval = time.Minute
	kDefaultResetTimeout  = 5 * time.Second
)

type Config struct {
	// ListenAddr is the datagram listener clients register with.
	ListenAddr string

	// ClientMaxAge bounds how long a registration survives without any
	// activity from the client before the sweeper forgets it.
	ClientMaxAge  util.Duration
	SweepInterval util.Duration

	// ResetTimeout bounds the reset sent to each client at shutdown.
	ResetTimeout util.Duration

	Transaction transaction.Config
}

var DefaultConfig = Config{
	ListenAddr:    kDefaultListenAddr,
	ClientMaxAge:  util.Duration{Duration: kDefaultClientMaxAge},
	SweepInterval: util.Duration{Duration: kDefaultSweepInterval},
	ResetTimeout:  util.Duration{Duration: kDefaultResetTimeout},
}

func (cfg *Config) SetDefaultIfNotDefined() {
	if len(cfg.ListenAddr) == 0 {
		cfg.ListenAddr = kDefaultListenAddr
	}
	if cfg.ClientMaxAge.Duration == 0 {
		cfg.ClientMaxAge.Duration = kDefaultClientMaxAge
	}
	if cfg.SweepInterval.Duration == 0 {
		cfg.SweepInterval.Duration = kDefaultSweepInterval
	}
	if cfg.ResetTimeout.Duration == 0 {
		cfg.ResetTimeout.Duration = kDefaultResetTimeout
	}
	cfg.Transaction.SetDefaultIfNotDefined()
}
