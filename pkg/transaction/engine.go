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
Package transaction drives the three-phase Request/Response/Release
handshake over an unreliable datagram transport.

One engine owns one net.PacketConn. A single reader goroutine dispatches
inbound packets; initiator calls block the caller until release or retry
exhaustion. Transaction ids are only unique per peer pair, so both the
outbound and the responder tables key by (peer address, tid).
*/
package transaction

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"dartnotify/pkg/proto"
	"dartnotify/pkg/stats"
	"dartnotify/pkg/util"
)

// IRequestHandler executes the command carried by an inbound request.
//
// ProcessRequest runs on the engine's reader goroutine and must not block;
// hand long work off to another goroutine. Returning false drops the
// request without acknowledgement. The engine guarantees the handler runs
// at most once per (peer, tid) while the id is remembered.
type IRequestHandler interface {
	ProcessRequest(p *proto.Packet, peer net.Addr) bool
}

type Engine struct {
	conn    net.PacketConn
	config  Config
	handler IRequestHandler
	st      *stats.TransportStats

	outbound *util.CMap // peer|tid -> *outboundTxn
	inbound  *util.CMap // peer|tid -> *inboundTxn

	nextTid uint32
	done    chan struct{}
	closed  int32
	wg      sync.WaitGroup
}

// New creates an engine on conn. handler may be nil for a pure initiator;
// when st is nil a private sink is created.
func New(conn net.PacketConn, handler IRequestHandler, cfg Config, st *stats.TransportStats) *Engine {
	cfg.SetDefaultIfNotDefined()
	if st == nil {
		st = stats.NewTransportStats()
	}
	return &Engine{
		conn:     conn,
		config:   cfg,
		handler:  handler,
		st:       st,
		outbound: util.NewCMap(kDefaultNumPartitions),
		inbound:  util.NewCMap(kDefaultNumPartitions),
		nextTid:  uint32(time.Now().UnixNano())&0xffff | 1,
		done:     make(chan struct{}),
	}
}

func (e *Engine) Start() {
	e.wg.Add(1)
	go e.readLoop()
}

// Shutdown closes the socket and waits for the reader and any responder
// retransmission timers to stop.
func (e *Engine) Shutdown() {
	if !atomic.CompareAndSwapInt32(&e.closed, 0, 1) {
		return
	}
	close(e.done)
	e.conn.Close()
	e.wg.Wait()
}

func (e *Engine) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

func (e *Engine) Stats() *stats.TransportStats {
	return e.st
}

func txnKey(peer net.Addr, tid uint16) string {
	return fmt.Sprintf("%s|%d", peer.String(), tid)
}

func (e *Engine) allocTid() uint16 {
	for {
		tid := uint16(atomic.AddUint32(&e.nextTid, 1))
		if tid != 0 {
			return tid
		}
	}
}

func (e *Engine) send(p *proto.Packet, addr net.Addr) error {
	raw, err := p.Encode()
	if err != nil {
		return err
	}
	_, err = e.conn.WriteTo(raw, addr)
	return err
}

func (e *Engine) readLoop() {
	defer e.wg.Done()

	buf := make([]byte, proto.MaxPacketSize+1)
	for {
		n, from, err := e.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-e.done:
			default:
				glog.Errorf("read loop terminated: %v", err)
			}
			return
		}
		pkt, err := proto.Decode(buf[:n])
		if err != nil {
			// unreliable transport: drop and let the sender retry
			e.st.DroppedPackets.Add(1)
			glog.V(2).Infof("dropping malformed packet from %s: %v", from, err)
			continue
		}
		glog.V(2).Infof("recv %s from %s", pkt, from)

		switch pkt.Type {
		case proto.PacketTypeRequest:
			e.handleRequest(pkt, from)
		case proto.PacketTypeResponse:
			e.handleResponse(pkt, from)
		case proto.PacketTypeRelease:
			e.handleRelease(pkt, from)
		}
	}
}

func (e *Engine) handleResponse(pkt *proto.Packet, from net.Addr) {
	key := txnKey(from, pkt.Tid)
	if v, ok := e.outbound.Get(key); ok {
		tx := v.(*outboundTxn)
		select {
		case tx.respCh <- pkt:
		default:
			// already delivered; fall through to re-release below
		}
		return
	}
	// Duplicate response for a transaction we already released (or
	// abandoned). Re-deriving the release from the response is idempotent.
	if err := e.send(pkt.Release(), from); err != nil {
		glog.V(2).Infof("re-release to %s failed: %v", from, err)
	}
}

func (e *Engine) handleRelease(pkt *proto.Packet, from net.Addr) {
	if v, ok := e.inbound.Get(txnKey(from, pkt.Tid)); ok {
		v.(*inboundTxn).resolve()
	}
}
