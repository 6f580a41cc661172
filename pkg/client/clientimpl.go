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
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"dartnotify/pkg/proto"
	"dartnotify/pkg/transaction"
)

type clientImplT struct {
	config   Config
	resolver ServerResolver
	engine   *transaction.Engine

	mtx        sync.Mutex
	queue      []Notification
	server     net.Addr
	uid        uint32
	services   []proto.ServiceCode
	registered bool

	avail  chan struct{}
	done   chan struct{}
	closed int32
}

func newClientImpl(config Config, resolver ServerResolver) (*clientImplT, error) {
	config.SetDefaultIfNotDefined()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	server, err := net.ResolveUDPAddr("udp", config.Server)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenPacket("udp", config.ListenAddr)
	if err != nil {
		return nil, err
	}
	c := &clientImplT{
		config:   config,
		resolver: resolver,
		server:   server,
		avail:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	c.engine = transaction.New(conn, c, config.Transaction, nil)
	c.engine.Start()
	return c, nil
}

// ProcessRequest runs on the engine's reader goroutine: queue and return.
func (c *clientImplT) ProcessRequest(p *proto.Packet, peer net.Addr) bool {
	switch p.Command {
	case proto.CmdNotify:
		n, err := proto.DecodeNotifyData(p.Data)
		if err != nil {
			glog.Warningf("bad notify from %s: %v", peer, err)
			return false
		}
		c.enqueue(Notification{
			Service: n.Service,
			UID:     n.UID,
			MsgID:   n.MsgID,
			Data:    n.Data,
		})
		return true

	case proto.CmdReset:
		glog.Infof("reset from %s", peer)
		go c.handleReset()
		return true
	}
	return false
}

func (c *clientImplT) enqueue(n Notification) {
	c.mtx.Lock()
	if len(c.queue) >= c.config.QueueSize {
		glog.Warningf("notification queue full, dropping msgid %d", c.queue[0].MsgID)
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, n)
	c.mtx.Unlock()

	select {
	case c.avail <- struct{}{}:
	default:
	}
}

func (c *clientImplT) Register(ctx context.Context, uid uint32, services []proto.ServiceCode) error {
	reg := &proto.RegisterData{
		UID:      uid,
		Port:     0, // reply to the source port of this datagram
		Services: services,
	}
	data, err := reg.Encode()
	if err != nil {
		return err
	}

	c.mtx.Lock()
	server := c.server
	c.mtx.Unlock()

	if err := c.engine.Call(ctx, server, proto.CmdRegister, data); err != nil {
		return err
	}

	c.mtx.Lock()
	c.uid = uid
	c.services = append([]proto.ServiceCode(nil), services...)
	c.registered = true
	c.mtx.Unlock()
	return nil
}

func (c *clientImplT) Clear(ctx context.Context, service proto.ServiceCode) error {
	c.mtx.Lock()
	uid, registered := c.uid, c.registered
	server := c.server
	c.mtx.Unlock()
	if !registered {
		return ErrNotRegistered
	}

	data, err := (&proto.ClearData{UID: uid, Service: service}).Encode()
	if err != nil {
		return err
	}
	return c.engine.Call(ctx, server, proto.CmdClear, data)
}

func (c *clientImplT) Next(timeout time.Duration) (Notification, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		c.mtx.Lock()
		if len(c.queue) > 0 {
			n := c.queue[0]
			c.queue = c.queue[1:]
			c.mtx.Unlock()
			return n, true
		}
		c.mtx.Unlock()

		select {
		case <-c.avail:
		case <-timer.C:
			return Notification{}, false
		case <-c.done:
			return Notification{}, false
		}
	}
}

func (c *clientImplT) Peek() (Notification, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if len(c.queue) == 0 {
		return Notification{}, false
	}
	return c.queue[0], true
}

// handleReset drops the registration and, when a resolver is configured,
// re-registers with whatever server it names.
func (c *clientImplT) handleReset() {
	c.mtx.Lock()
	uid, services := c.uid, c.services
	hadReg := c.registered
	c.registered = false
	c.mtx.Unlock()

	if c.resolver == nil || !hadReg {
		return
	}
	addr, err := c.resolver()
	if err != nil {
		glog.Warningf("server resolver failed: %v", err)
		return
	}
	server, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		glog.Warningf("server resolver returned bad address %q: %v", addr, err)
		return
	}
	c.mtx.Lock()
	c.server = server
	c.mtx.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.config.RegisterTimeout.Duration)
	defer cancel()
	if err := c.Register(ctx, uid, services); err != nil {
		glog.Warningf("re-register with %s failed: %v", addr, err)
		return
	}
	glog.Infof("re-registered uid %d with %s", uid, addr)
}

func (c *clientImplT) Close() {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return
	}
	close(c.done)
	c.engine.Shutdown()
}
