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
Package notifier is the datagram side of the server: it accepts client
registrations, keeps at most one live registration per uid, and pushes
stored and freshly posted notices to registered clients over the
transaction engine, one outstanding notice per client.
*/
package notifier

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"dartnotify/cmd/notifyserv/storage"
	"dartnotify/pkg/proto"
	"dartnotify/pkg/stats"
	"dartnotify/pkg/transaction"
)

// ClientInfo is a point-in-time view of one registration.
type ClientInfo struct {
	UID       uint32
	Addr      string
	Services  []proto.ServiceCode
	LastHeard time.Time
}

// clientReg is one live registration. The delivery worker owns delivered;
// everything else is either immutable or atomic.
type clientReg struct {
	uid       uint32
	addr      net.Addr
	services  []proto.ServiceCode
	lastHeard int64 // unix nanos
	delivered map[storage.RecordID]bool

	wake chan struct{}
	gone chan struct{}
	stop sync.Once
}

func (c *clientReg) drop() {
	c.stop.Do(func() { close(c.gone) })
}

func (c *clientReg) touch() {
	atomic.StoreInt64(&c.lastHeard, time.Now().UnixNano())
}

func (c *clientReg) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

type Server struct {
	config Config
	store  storage.IStore
	engine *transaction.Engine
	st     *stats.ServerStats

	mtx     sync.Mutex
	clients map[uint32]*clientReg

	done   chan struct{}
	closed int32
	wg     sync.WaitGroup
}

// NewServer binds the datagram listener. st may be nil.
func NewServer(cfg Config, store storage.IStore, st *stats.ServerStats) (*Server, error) {
	cfg.SetDefaultIfNotDefined()
	if st == nil {
		st = stats.NewServerStats()
	}
	conn, err := net.ListenPacket("udp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		config:  cfg,
		store:   store,
		st:      st,
		clients: make(map[uint32]*clientReg),
		done:    make(chan struct{}),
	}
	s.engine = transaction.New(conn, s, cfg.Transaction, nil)
	return s, nil
}

func (s *Server) Start() {
	glog.Infof("notifier listening on %s", s.engine.LocalAddr())
	s.engine.Start()
	s.wg.Add(1)
	go s.sweepLoop()
}

func (s *Server) Addr() net.Addr {
	return s.engine.LocalAddr()
}

func (s *Server) Stats() *stats.ServerStats {
	return s.st
}

func (s *Server) TransportStats() *stats.TransportStats {
	return s.engine.Stats()
}

// ProcessRequest runs on the engine's reader goroutine and must not block:
// registrations are a map swap, clears are handed to a goroutine.
func (s *Server) ProcessRequest(p *proto.Packet, peer net.Addr) bool {
	switch p.Command {
	case proto.CmdRegister:
		reg, err := proto.DecodeRegisterData(p.Data)
		if err != nil {
			glog.Warningf("bad registration from %s: %v", peer, err)
			return false
		}
		addr := replyAddr(peer, reg.Port)
		if addr == nil {
			glog.Warningf("registration from non-UDP peer %s", peer)
			return false
		}
		s.register(reg.UID, addr, reg.Services)
		return true

	case proto.CmdClear:
		clr, err := proto.DecodeClearData(p.Data)
		if err != nil {
			glog.Warningf("bad clear from %s: %v", peer, err)
			return false
		}
		s.st.Clears.Add(1)
		s.touchUID(clr.UID)
		go func() {
			if _, err := s.store.Clear(clr.UID, clr.Service); err != nil {
				glog.Errorf("clear uid=%d svc=%s: %v", clr.UID, clr.Service, err)
			}
		}()
		return true
	}
	return false
}

// replyAddr applies the port override from a registration: port 0 means
// reply to the source port the datagram arrived from, which is the only
// port that works for clients behind address translation.
func replyAddr(peer net.Addr, port uint16) net.Addr {
	ua, ok := peer.(*net.UDPAddr)
	if !ok {
		return nil
	}
	if port == 0 {
		return ua
	}
	return &net.UDPAddr{IP: ua.IP, Port: int(port), Zone: ua.Zone}
}

// register installs a registration for uid, superseding any previous one,
// and starts its delivery worker.
func (s *Server) register(uid uint32, addr net.Addr, services []proto.ServiceCode) {
	c := &clientReg{
		uid:       uid,
		addr:      addr,
		services:  append([]proto.ServiceCode(nil), services...),
		delivered: make(map[storage.RecordID]bool),
		wake:      make(chan struct{}, 1),
		gone:      make(chan struct{}),
	}
	c.touch()

	s.mtx.Lock()
	old := s.clients[uid]
	s.clients[uid] = c
	s.mtx.Unlock()
	if old != nil {
		old.drop()
		glog.Infof("uid %d re-registered from %s (was %s)", uid, addr, old.addr)
	} else {
		glog.Infof("uid %d registered from %s, services %v", uid, addr, services)
	}

	s.st.Registrations.Add(1)
	s.wg.Add(1)
	go s.deliverLoop(c)
}

// RegisterClient installs a registration on behalf of an operator
// command, as if uid had registered from addr itself.
func (s *Server) RegisterClient(uid uint32, addr net.Addr, services []proto.ServiceCode) {
	s.register(uid, addr, services)
}

func (s *Server) touchUID(uid uint32) {
	s.mtx.Lock()
	c := s.clients[uid]
	s.mtx.Unlock()
	if c != nil {
		c.touch()
	}
}

// Post stores a notice and nudges the delivery worker of every client it
// is addressed to. The record survives a crash from here on.
func (s *Server) Post(rec *storage.Record) (storage.RecordID, error) {
	id, err := s.store.Put(rec)
	if err != nil {
		return storage.RecordID{}, err
	}
	s.st.Posted.Add(1)

	s.mtx.Lock()
	if rec.IsBroadcast() {
		for _, c := range s.clients {
			if storage.MatchService(rec.Service, c.services) {
				c.poke()
			}
		}
	} else if c := s.clients[rec.UID]; c != nil && storage.MatchService(rec.Service, c.services) {
		c.poke()
	}
	s.mtx.Unlock()
	return id, nil
}

// Reset tells uid's client to drop its registration and forgets it.
// Returns false when the uid has no registration.
func (s *Server) Reset(uid uint32) bool {
	s.mtx.Lock()
	c := s.clients[uid]
	if c != nil {
		delete(s.clients, uid)
	}
	s.mtx.Unlock()
	if c == nil {
		return false
	}
	c.drop()
	s.st.Resets.Add(1)
	go s.sendReset(c)
	return true
}

func (s *Server) sendReset(c *clientReg) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ResetTimeout.Duration)
	defer cancel()
	if err := s.engine.Call(ctx, c.addr, proto.CmdReset, proto.ResetData()); err != nil {
		glog.V(1).Infof("reset to uid %d at %s: %v", c.uid, c.addr, err)
	}
}

// Clients lists live registrations, for operator commands.
func (s *Server) Clients() []ClientInfo {
	s.mtx.Lock()
	out := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, ClientInfo{
			UID:       c.uid,
			Addr:      c.addr.String(),
			Services:  append([]proto.ServiceCode(nil), c.services...),
			LastHeard: time.Unix(0, atomic.LoadInt64(&c.lastHeard)),
		})
	}
	s.mtx.Unlock()
	return out
}

func (s *Server) dropClient(c *clientReg) {
	s.mtx.Lock()
	if s.clients[c.uid] == c {
		delete(s.clients, c.uid)
	}
	s.mtx.Unlock()
	c.drop()
}

func (s *Server) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.SweepInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// sweep forgets registrations that have been silent past ClientMaxAge. No
// reset is sent; a client that stopped responding will not hear one.
func (s *Server) sweep() {
	cutoff := time.Now().Add(-s.config.ClientMaxAge.Duration).UnixNano()
	var stale []*clientReg
	s.mtx.Lock()
	for uid, c := range s.clients {
		if atomic.LoadInt64(&c.lastHeard) < cutoff {
			delete(s.clients, uid)
			stale = append(stale, c)
		}
	}
	s.mtx.Unlock()
	for _, c := range stale {
		glog.Infof("reaping silent client uid %d at %s", c.uid, c.addr)
		c.drop()
	}
}

// Shutdown resets every registered client so listeners immediately look
// for another server, then stops the engine and all workers.
func (s *Server) Shutdown() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}

	s.mtx.Lock()
	remaining := make([]*clientReg, 0, len(s.clients))
	for _, c := range s.clients {
		remaining = append(remaining, c)
	}
	s.clients = make(map[uint32]*clientReg)
	s.mtx.Unlock()

	var resets sync.WaitGroup
	for _, c := range remaining {
		c.drop()
		s.st.Resets.Add(1)
		resets.Add(1)
		go func(c *clientReg) {
			defer resets.Done()
			s.sendReset(c)
		}(c)
	}
	resets.Wait()

	close(s.done)
	s.engine.Shutdown()
	s.wg.Wait()
}
