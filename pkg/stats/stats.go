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
Package stats collects transport and delivery counters plus a delivery
round-trip latency histogram.
*/
package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"dartnotify/pkg/util"
)

// TransportStats counts datagram-level events on one transaction engine.
type TransportStats struct {
	Requests         util.AtomicUint64Counter
	Retransmits      util.AtomicUint64Counter
	DeliveryFailures util.AtomicUint64Counter
	DroppedPackets   util.AtomicUint64Counter
	ResponsesServed  util.AtomicUint64Counter

	mtx  sync.Mutex
	hist *hdrhistogram.Histogram
}

func NewTransportStats() *TransportStats {
	return &TransportStats{
		// request round trips from microseconds up to the full retry budget
		hist: hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3),
	}
}

// RecordRTT records the elapsed time between sending a request and
// receiving its response.
func (s *TransportStats) RecordRTT(d time.Duration) {
	if s == nil || s.hist == nil {
		return
	}
	s.mtx.Lock()
	s.hist.RecordValue(int64(d / time.Microsecond))
	s.mtx.Unlock()
}

func (s *TransportStats) StateLine() string {
	if s == nil {
		return ""
	}
	var p50, p99 time.Duration
	var n int64
	if s.hist != nil {
		s.mtx.Lock()
		n = s.hist.TotalCount()
		p50 = time.Duration(s.hist.ValueAtQuantile(50.)) * time.Microsecond
		p99 = time.Duration(s.hist.ValueAtQuantile(99.)) * time.Microsecond
		s.mtx.Unlock()
	}
	return fmt.Sprintf("req=%d retrans=%d failed=%d dropped=%d served=%d rtt_n=%d rtt_p50=%s rtt_p99=%s",
		s.Requests.Get(), s.Retransmits.Get(), s.DeliveryFailures.Get(),
		s.DroppedPackets.Get(), s.ResponsesServed.Get(), n, p50, p99)
}

// ServerStats counts notification-level events in the daemon.
type ServerStats struct {
	Posted        util.AtomicUint64Counter
	Delivered     util.AtomicUint64Counter
	Registrations util.AtomicUint64Counter
	Resets        util.AtomicUint64Counter
	Clears        util.AtomicUint64Counter
}

func NewServerStats() *ServerStats {
	return &ServerStats{}
}

func (s *ServerStats) StateLine() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("posted=%d delivered=%d registered=%d resets=%d clears=%d",
		s.Posted.Get(), s.Delivered.Get(), s.Registrations.Get(),
		s.Resets.Get(), s.Clears.Get())
}
