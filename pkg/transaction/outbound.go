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
	"context"
	"net"
	"time"

	"github.com/golang/glog"

	"dartnotify/pkg/proto"
)

// outboundTxn is an initiator-side transaction. It has exactly two states:
// pending (waiting for a response) and done; the reader goroutine moves it
// to done by delivering the response on respCh.
type outboundTxn struct {
	respCh chan *proto.Packet
}

// Call runs one full Request/Response/Release exchange against addr. It
// blocks until the transaction resolves, the retry budget is exhausted
// (ErrDeliveryFailed), or ctx is cancelled, which abandons the exchange
// locally; the protocol has no cancel message.
func (e *Engine) Call(ctx context.Context, addr net.Addr, cmd proto.CommandTag, data []byte) error {
	tid := e.allocTid()
	req := proto.NewRequest(tid, cmd, data)

	tx := &outboundTxn{respCh: make(chan *proto.Packet, 1)}
	key := txnKey(addr, tid)
	e.outbound.Put(key, tx)
	defer e.outbound.Delete(key)

	e.st.Requests.Add(1)
	start := time.Now()
	if err := e.send(req, addr); err != nil {
		return err
	}

	timer := time.NewTimer(e.config.RetransmitInterval.Duration)
	defer timer.Stop()

	retries := 0
	for {
		select {
		case rsp := <-tx.respCh:
			e.st.RecordRTT(time.Since(start))
			if err := e.send(rsp.Release(), addr); err != nil {
				glog.V(2).Infof("release %s tid=%d: %v", addr, tid, err)
			}
			return nil

		case <-timer.C:
			if retries >= e.config.MaxRetries {
				e.st.DeliveryFailures.Add(1)
				glog.Warningf("giving up on %s to %s after %d retransmissions",
					cmd, addr, retries)
				return ErrDeliveryFailed
			}
			retries++
			e.st.Retransmits.Add(1)
			glog.V(2).Infof("retransmit %s tid=%d to %s (%d/%d)",
				cmd, tid, addr, retries, e.config.MaxRetries)
			if err := e.send(req, addr); err != nil {
				return err
			}
			timer.Reset(e.config.RetransmitInterval.Duration)

		case <-ctx.Done():
			return ctx.Err()

		case <-e.done:
			return ErrEngineClosed
		}
	}
}
