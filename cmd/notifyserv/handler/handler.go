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

/*
Package handler implements the stream side of the server: the line
protocol that mail and news daemons use to authenticate, post notices,
and run operator commands. One session per connection, served by
pkg/service.
*/
package handler

import (
	"net"
	"time"

	"dartnotify/cmd/notifyserv/notifier"
	"dartnotify/cmd/notifyserv/storage"
	"dartnotify/pkg/dnd"
	"dartnotify/pkg/proto"
	"dartnotify/pkg/stats"
	"dartnotify/pkg/util"
)

const (
	kDefaultMaxAuthFailures = 3
	kDefaultIdleTimeout     = 10 * time.Minute
	kDefaultWriteTimeout    = 30 * time.Second
)

// INotifier is the slice of the datagram server the session commands
// need.
type INotifier interface {
	Post(rec *storage.Record) (storage.RecordID, error)
	RegisterClient(uid uint32, addr net.Addr, services []proto.ServiceCode)
	Clients() []notifier.ClientInfo
}

// DirectoryDialer opens a directory session; each posting session that
// authenticates gets its own.
type DirectoryDialer func() (dnd.IDirectory, error)

type Config struct {
	// AdminUID is the uid granted broadcast and operator commands; zero
	// disables them entirely.
	AdminUID uint32

	// MaxAuthFailures closes the session after that many failed
	// validations.
	MaxAuthFailures int

	IdleTimeout  util.Duration
	WriteTimeout util.Duration
}

func (cfg *Config) SetDefaultIfNotDefined() {
	if cfg.MaxAuthFailures <= 0 {
		cfg.MaxAuthFailures = kDefaultMaxAuthFailures
	}
	if cfg.IdleTimeout.Duration == 0 {
		cfg.IdleTimeout.Duration = kDefaultIdleTimeout
	}
	if cfg.WriteTimeout.Duration == 0 {
		cfg.WriteTimeout.Duration = kDefaultWriteTimeout
	}
}

type RequestHandler struct {
	config   Config
	store    storage.IStore
	notifier INotifier
	dial     DirectoryDialer
	st       *stats.ServerStats
}

// NewRequestHandler wires the session command set. st may be nil.
func NewRequestHandler(cfg Config, store storage.IStore, ntf INotifier,
	dial DirectoryDialer, st *stats.ServerStats) *RequestHandler {
	cfg.SetDefaultIfNotDefined()
	if st == nil {
		st = stats.NewServerStats()
	}
	return &RequestHandler{
		config:   cfg,
		store:    store,
		notifier: ntf,
		dial:     dial,
		st:       st,
	}
}

// Serve runs one session to completion. Implements service.IConnHandler.
func (h *RequestHandler) Serve(conn net.Conn) {
	newSession(h, conn).run()
}
