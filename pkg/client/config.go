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

package client

import (
	"fmt"
	"time"

	"dartnotify/pkg/transaction"
	"dartnotify/pkg/util"
)

const (
	kDefaultQueueSize       = 64
	kDefaultRegisterTimeout = 30 * time.Second
)

type Config struct {
	// Server is the host:port of the notification server's datagram
	// listener.
	Server string

	// ListenAddr is the local bind address; ":0" picks an ephemeral port.
	ListenAddr string

	// QueueSize bounds the undelivered notification queue. When full the
	// oldest entry is dropped; the server will redeliver anything the
	// application never acknowledged by reading it.
	QueueSize int

	// RegisterTimeout bounds the automatic re-registration that follows
	// a server reset.
	RegisterTimeout util.Duration

	Transaction transaction.Config
}

var DefaultConfig = Config{
	ListenAddr:      ":0",
	QueueSize:       kDefaultQueueSize,
	RegisterTimeout: util.Duration{Duration: kDefaultRegisterTimeout},
}

func (cfg *Config) SetDefaultIfNotDefined() {
	if len(cfg.ListenAddr) == 0 {
		cfg.ListenAddr = ":0"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = kDefaultQueueSize
	}
	if cfg.RegisterTimeout.Duration == 0 {
		cfg.RegisterTimeout.Duration = kDefaultRegisterTimeout
	}
	cfg.Transaction.SetDefaultIfNotDefined()
}

func (cfg *Config) Validate() (err error) {
	if len(cfg.Server) == 0 {
		err = fmt.Errorf("server address not specified")
	}
	return
}
