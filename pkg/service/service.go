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
Package service runs stream listeners and hands accepted connections to a
session handler, one goroutine per connection.
*/
package service

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// IConnHandler serves one accepted connection until the session ends. It
// is called on a dedicated goroutine and owns closing the connection.
type IConnHandler interface {
	Serve(conn net.Conn)
}

type Service struct {
	config     Config
	handler    IConnHandler
	listeners  []net.Listener
	chDone     chan struct{}
	inShutdown int32
	wg         sync.WaitGroup

	mtx         sync.Mutex
	activeConns map[net.Conn]struct{}
}

func NewService(cfg Config, handler IConnHandler) (*Service, error) {
	cfg.SetDefaultIfNotDefined()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		config:      cfg,
		handler:     handler,
		chDone:      make(chan struct{}),
		activeConns: make(map[net.Conn]struct{}),
	}
	for _, lncfg := range cfg.Listener {
		ln, err := net.Listen(lncfg.Network, lncfg.Addr)
		if err != nil {
			s.closeListeners()
			return nil, err
		}
		glog.Infof("listening on %s (%s)", ln.Addr(), lncfg.Name)
		s.listeners = append(s.listeners, ln)
	}
	return s, nil
}

// Addr returns the bound address of the i-th listener, for tests and for
// configs using port 0.
func (s *Service) Addr(i int) net.Addr {
	return s.listeners[i].Addr()
}

func (s *Service) Run() {
	for _, ln := range s.listeners {
		s.wg.Add(1)
		go s.serve(ln)
	}
	<-s.chDone
	s.wg.Wait()
}

func (s *Service) serve(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Temporary() {
				glog.V(2).Infof("temporary accept error: %v", err)
				continue
			}
			if !s.shuttingDown() {
				glog.Warningf("%s accept error: %v", ln.Addr(), err)
			}
			return
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handler.Serve(conn)
		}()
	}
}

func (s *Service) track(conn net.Conn, add bool) {
	s.mtx.Lock()
	if add {
		s.activeConns[conn] = struct{}{}
	} else {
		delete(s.activeConns, conn)
	}
	s.mtx.Unlock()
}

func (s *Service) shuttingDown() bool {
	return atomic.LoadInt32(&s.inShutdown) != 0
}

// Shutdown stops accepting, waits up to ShutdownWaitTime for sessions to
// finish, then force-closes what remains.
func (s *Service) Shutdown() {
	if !atomic.CompareAndSwapInt32(&s.inShutdown, 0, 1) {
		return
	}
	s.closeListeners()

	deadline := time.Now().Add(s.config.ShutdownWaitTime.Duration)
	for time.Now().Before(deadline) {
		s.mtx.Lock()
		n := len(s.activeConns)
		s.mtx.Unlock()
		if n == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	s.mtx.Lock()
	for conn := range s.activeConns {
		conn.Close()
	}
	s.mtx.Unlock()
	close(s.chDone)
}

func (s *Service) closeListeners() {
	for _, ln := range s.listeners {
		ln.Close()
	}
}
