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

package db

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/golang/snappy"

	"dartnotify/cmd/notifyserv/storage"
	"dartnotify/pkg/proto"
)

// Row layout.
//
// Key, ordered for range scans by user then service:
//
//	uid     8 bytes big-endian
//	service 4 bytes big-endian
//	sticky  1 byte (0/1)
//	id      16 bytes (uuid)
//
// Value:
//
//	version 1 byte
//	flags   1 byte (0x01 sticky, 0x02 snappy-compressed payload)
//	msgid   4 bytes big-endian
//	ctime   8 bytes big-endian, unix nanoseconds
//	payload remaining bytes
const (
	kRecordVersion byte = 1

	kFlagSticky     byte = 0x01
	kFlagCompressed byte = 0x02

	kKeySize         = 8 + 4 + 1 + 16
	kValueHeaderSize = 1 + 1 + 4 + 8
)

var (
	ErrBadRecordKey   = errors.New("db: bad record key")
	ErrBadRecordValue = errors.New("db: bad record value")
)

func uidPrefix(uid uint32) []byte {
	var p [8]byte
	binary.BigEndian.PutUint64(p[:], uint64(uid))
	return p[:]
}

func encodeKey(rec *storage.Record) []byte {
	key := make([]byte, kKeySize)
	binary.BigEndian.PutUint64(key[0:8], uint64(rec.UID))
	binary.BigEndian.PutUint32(key[8:12], uint32(rec.Service))
	if rec.Sticky {
		key[12] = 1
	}
	copy(key[13:], rec.ID[:])
	return key
}

func encodeValue(rec *storage.Record) []byte {
	payload := rec.Data
	flags := byte(0)
	if rec.Sticky {
		flags |= kFlagSticky
	}
	// compress only when it actually saves space
	if len(payload) > 0 {
		if packed := snappy.Encode(nil, payload); len(packed) < len(payload) {
			payload = packed
			flags |= kFlagCompressed
		}
	}
	val := make([]byte, kValueHeaderSize+len(payload))
	val[0] = kRecordVersion
	val[1] = flags
	binary.BigEndian.PutUint32(val[2:6], rec.MsgID)
	binary.BigEndian.PutUint64(val[6:14], uint64(rec.CreationTime.UnixNano()))
	copy(val[kValueHeaderSize:], payload)
	return val
}

func decodeRecord(key, val []byte) (*storage.Record, error) {
	if len(key) != kKeySize {
		return nil, ErrBadRecordKey
	}
	if len(val) < kValueHeaderSize || val[0] != kRecordVersion {
		return nil, ErrBadRecordValue
	}
	rec := &storage.Record{
		UID:          uint32(binary.BigEndian.Uint64(key[0:8])),
		Service:      proto.ServiceCode(binary.BigEndian.Uint32(key[8:12])),
		Sticky:       val[1]&kFlagSticky != 0,
		MsgID:        binary.BigEndian.Uint32(val[2:6]),
		CreationTime: time.Unix(0, int64(binary.BigEndian.Uint64(val[6:14]))),
	}
	copy(rec.ID[:], key[13:])
	payload := val[kValueHeaderSize:]
	if len(payload) > 0 {
		if val[1]&kFlagCompressed != 0 {
			data, err := snappy.Decode(nil, payload)
			if err != nil {
				return nil, ErrBadRecordValue
			}
			rec.Data = data
		} else {
			rec.Data = make([]byte, len(payload))
			copy(rec.Data, payload)
		}
	}
	return rec, nil
}
