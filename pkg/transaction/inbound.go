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

package transaction

import (
	"net"
	"sync"
	"time"

	"github.com/golang/glog"

	"dartnotify/pkg/proto"
)

// inboundTxn is a responder-side transaction. The command executes at most
// once; the derived response is cached so duplicate requests are answered
// without re-execution (the XO contract), and retransmitted on a timer
// until the matching release arrives.
type inboundTxn struct {
	rsp      *proto.Packet // nil when the handler declined the request
	resolved chan struct{}
	once     sync.Once
}

func (t *inboundTxn) resolve() {
	t.once.Do(func() { close(t.resolved) })
}

func (e *Engine) handleRequest(pkt *proto.Packet, from net.Addr) {
	key := txnKey(from, pkt.Tid)

	if v, ok := e.inbound.Get(key); ok {
		// duplicate of a known transaction: re-acknowledge, never re-execute
		tx := v.(*inboundTxn)
		if tx.rsp != nil {
			e.st.ResponsesServed.Add(1)
			if err := e.send(tx.rsp, from); err != nil {
				glog.V(2).Infof("re-ack %s tid=%d: %v", from, pkt.Tid, err)
			}
		}
		return
	}

	tx := &inboundTxn{resolved: make(chan struct{})}
	e.inbound.Put(key, tx)
	e.expireAfter(key, tx)

	if e.handler == nil || !e.handler.ProcessRequest(pkt, from) {
		// remembered with no cached response: later duplicates are dropped
		// silently as well
		return
	}

	tx.rsp = pkt.Response()
	e.st.ResponsesServed.Add(1)
	if err := e.send(tx.rsp, from); err != nil {
		glog.V(2).Infof("ack %s tid=%d: %v", from, pkt.Tid, err)
	}

	e.wg.Add(1)
	go e.retransmitResponse(tx, from, pkt.Tid)
}

// retransmitResponse re-sends a cached response until the release arrives
// or the retry budget runs out. The table entry survives either way so
// late duplicate requests still get the cached response.
func (e *Engine) retransmitResponse(tx *inboundTxn, from net.Addr, tid uint16) {
	defer e.wg.Done()

	timer := time.NewTimer(e.config.RetransmitInterval.Duration)
	defer timer.Stop()

	for retries := 0; retries < e.config.MaxRetries; retries++ {
		select {
		case <-tx.resolved:
			return
		case <-e.done:
			return
		case <-timer.C:
			e.st.Retransmits.Add(1)
			if err := e.send(tx.rsp, from); err != nil {
				glog.V(2).Infof("response retransmit %s tid=%d: %v", from, tid, err)
				return
			}
			timer.Reset(e.config.RetransmitInterval.Duration)
		}
	}
	glog.V(2).Infof("unreleased response to %s tid=%d, giving up", from, tid)
}

func (e *Engine) expireAfter(key string, tx *inboundTxn) {
	time.AfterFunc(e.config.ResolveTimeout.Duration, func() {
		tx.resolve()
		e.inbound.Delete(key)
	})
}
