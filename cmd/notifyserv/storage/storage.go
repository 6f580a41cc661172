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
Package storage defines the sticky notification store: a persistent,
concurrently usable queue of notification records keyed by user and
service. The bbolt-backed engine lives in the db subpackage.
*/
package storage

import (
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"

	"dartnotify/pkg/proto"
)

// RecordID uniquely identifies one stored record.
type RecordID = uuid.UUID

// Record is a pending or delivered notification event. Records are never
// mutated in place; delivery state is expressed purely by presence in the
// store.
type Record struct {
	ID           RecordID
	UID          uint32
	Service      proto.ServiceCode
	MsgID        uint32
	Sticky       bool
	Data         []byte
	CreationTime time.Time
}

// BroadcastUID marks a record addressed to every registered listener.
const BroadcastUID = uint32(0)

func (r *Record) IsBroadcast() bool {
	return r.UID == BroadcastUID
}

func (r *Record) String() string {
	sticky := "N"
	if r.Sticky {
		sticky = "Y"
	}
	return fmt.Sprintf("<notice uid=%d svc=%s msgid=%d sticky=%s len=%d>",
		r.UID, r.Service, r.MsgID, sticky, len(r.Data))
}

// IStore is the sticky notification store contract.
//
// GetPending returns, oldest first, every record pending for (uid,
// services), broadcast records included; non-sticky records owned by uid
// are consumed by the call, sticky ones are returned again on every future
// call until cleared. Operations on the same (uid, service) key are
// serialized by the engine; distinct keys may proceed concurrently.
type IStore interface {
	Put(rec *Record) (RecordID, error)
	GetPending(uid uint32, services []proto.ServiceCode) ([]*Record, error)
	// Clear removes records for (uid, service); a negative service clears
	// every service for uid. Returns the number of records removed.
	Clear(uid uint32, service proto.ServiceCode) (int, error)
	ListAll() ([]*Record, error)
	Close() error
}

// MatchService reports whether svc is covered by the subscription set.
func MatchService(svc proto.ServiceCode, services []proto.ServiceCode) bool {
	for _, s := range services {
		if s == svc {
			return true
		}
	}
	return false
}
