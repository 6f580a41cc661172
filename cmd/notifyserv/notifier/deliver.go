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
	"context"

	"github.com/golang/glog"

	"dartnotify/cmd/notifyserv/storage"
	"dartnotify/pkg/proto"
)

// deliverLoop is the per-registration worker: drain the store, then sleep
// until a post wakes it or the registration goes away. At most one notice
// is in flight per client.
func (s *Server) deliverLoop(c *clientReg) {
	defer s.wg.Done()
	for {
		if !s.drain(c) {
			return
		}
		select {
		case <-c.wake:
		case <-c.gone:
			return
		case <-s.done:
			return
		}
	}
}

// drain fetches everything pending for the registration and delivers it in
// order. Returns false when the registration is finished, either because
// it was dropped or because the client stopped responding.
func (s *Server) drain(c *clientReg) bool {
	recs, err := s.store.GetPending(c.uid, c.services)
	if err != nil {
		glog.Errorf("fetch pending for uid %d: %v", c.uid, err)
		return true
	}
	for i, rec := range recs {
		select {
		case <-c.gone:
			s.requeue(c, recs[i:])
			return false
		case <-s.done:
			s.requeue(c, recs[i:])
			return false
		default:
		}

		// Sticky and broadcast rows stay in the store; skip the ones this
		// registration has already seen.
		if c.delivered[rec.ID] {
			continue
		}
		if err := s.deliver(c, rec); err != nil {
			glog.Warningf("uid %d at %s stopped responding: %v", c.uid, c.addr, err)
			s.requeue(c, recs[i:])
			s.dropClient(c)
			return false
		}
		c.delivered[rec.ID] = true
		c.touch()
		s.st.Delivered.Add(1)
	}
	return true
}

func (s *Server) deliver(c *clientReg, rec *storage.Record) error {
	data, err := (&proto.NotifyData{
		Service: rec.Service,
		UID:     rec.UID,
		MsgID:   rec.MsgID,
		Data:    rec.Data,
	}).Encode()
	if err != nil {
		// too large to ever deliver; drop it rather than wedge the worker
		glog.Errorf("undeliverable %s: %v", rec, err)
		return nil
	}
	glog.V(1).Infof("delivering %s to %s", rec, c.addr)
	return s.engine.Call(context.Background(), c.addr, proto.CmdNotify, data)
}

// requeue puts back non-sticky records the fetch consumed but the worker
// never delivered, so they survive for the client's next registration.
func (s *Server) requeue(c *clientReg, recs []*storage.Record) {
	for _, rec := range recs {
		if rec.Sticky || rec.IsBroadcast() || c.delivered[rec.ID] {
			continue
		}
		if _, err := s.store.Put(rec); err != nil {
			glog.Errorf("requeue %s: %v", rec, err)
		}
	}
}
