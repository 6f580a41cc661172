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

package proto

import (
	"strconv"
)

// NotifyData is the command data of a NOTI request.
type NotifyData struct {
	Service ServiceCode
	UID     uint32
	MsgID   uint32
	Data    []byte
}

const kNotifyFixedSize = 12

func (n *NotifyData) Encode() ([]byte, error) {
	if len(n.Data) > MaxDataSize {
		return nil, ErrDataTooLong
	}
	buf := make([]byte, kNotifyFixedSize+len(n.Data))
	EncByteOrder.PutUint32(buf[0:4], uint32(n.Service))
	EncByteOrder.PutUint32(buf[4:8], n.UID)
	EncByteOrder.PutUint32(buf[8:12], n.MsgID)
	copy(buf[kNotifyFixedSize:], n.Data)
	return buf, nil
}

func DecodeNotifyData(raw []byte) (*NotifyData, error) {
	if len(raw) < kNotifyFixedSize {
		return nil, ErrTruncatedCommand
	}
	n := &NotifyData{
		Service: ServiceCode(EncByteOrder.Uint32(raw[0:4])),
		UID:     EncByteOrder.Uint32(raw[4:8]),
		MsgID:   EncByteOrder.Uint32(raw[8:12]),
	}
	if len(raw) > kNotifyFixedSize {
		n.Data = make([]byte, len(raw)-kNotifyFixedSize)
		copy(n.Data, raw[kNotifyFixedSize:])
	}
	return n, nil
}

// RegisterData is the command data of an NR02 request. The uid travels as
// a length-prefixed "#<decimal>" string. Port 0 asks the server to reply
// to whatever source port the datagram arrived from.
type RegisterData struct {
	UID      uint32
	Port     uint16
	Services []ServiceCode
}

func (r *RegisterData) Encode() ([]byte, error) {
	uid := "#" + strconv.FormatUint(uint64(r.UID), 10)
	if len(uid) > 255 {
		return nil, ErrDataTooLong
	}
	buf := make([]byte, 0, 1+len(uid)+6+4*len(r.Services))
	buf = append(buf, byte(len(uid)))
	buf = append(buf, uid...)
	var tmp [4]byte
	EncByteOrder.PutUint16(tmp[:2], r.Port)
	buf = append(buf, tmp[:2]...)
	EncByteOrder.PutUint32(tmp[:], uint32(len(r.Services)))
	buf = append(buf, tmp[:]...)
	for _, svc := range r.Services {
		EncByteOrder.PutUint32(tmp[:], uint32(svc))
		buf = append(buf, tmp[:]...)
	}
	if len(buf) > MaxDataSize {
		return nil, ErrDataTooLong
	}
	return buf, nil
}

func DecodeRegisterData(raw []byte) (*RegisterData, error) {
	if len(raw) < 1 {
		return nil, ErrTruncatedCommand
	}
	ulen := int(raw[0])
	if len(raw) < 1+ulen+6 {
		return nil, ErrTruncatedCommand
	}
	uidStr := string(raw[1 : 1+ulen])
	if len(uidStr) > 0 && uidStr[0] == '#' {
		uidStr = uidStr[1:]
	}
	uid, err := strconv.ParseUint(uidStr, 10, 32)
	if err != nil {
		return nil, ErrTruncatedCommand
	}
	rest := raw[1+ulen:]
	r := &RegisterData{
		UID:  uint32(uid),
		Port: EncByteOrder.Uint16(rest[0:2]),
	}
	numSvc := EncByteOrder.Uint32(rest[2:6])
	if len(rest) < 6+int(numSvc)*4 {
		return nil, ErrTruncatedCommand
	}
	r.Services = make([]ServiceCode, numSvc)
	for i := range r.Services {
		off := 6 + i*4
		r.Services[i] = ServiceCode(EncByteOrder.Uint32(rest[off : off+4]))
	}
	return r, nil
}

// ClearData is the command data of a CLEN request. A negative service
// clears every service for the user.
type ClearData struct {
	UID     uint32
	Service ServiceCode
}

func (c *ClearData) Encode() ([]byte, error) {
	buf := make([]byte, 8)
	EncByteOrder.PutUint32(buf[0:4], c.UID)
	EncByteOrder.PutUint32(buf[4:8], uint32(c.Service))
	return buf, nil
}

func DecodeClearData(raw []byte) (*ClearData, error) {
	if len(raw) < 8 {
		return nil, ErrTruncatedCommand
	}
	return &ClearData{
		UID:     EncByteOrder.Uint32(raw[0:4]),
		Service: ServiceCode(EncByteOrder.Uint32(raw[4:8])),
	}, nil
}

// PackStrings encodes a list of short strings as length-prefixed runs, the
// form notification payloads conventionally carry.
func PackStrings(items []string) ([]byte, error) {
	var out []byte
	for _, s := range items {
		if len(s) > 255 {
			return nil, ErrDataTooLong
		}
		out = append(out, byte(len(s)))
		out = append(out, s...)
	}
	if len(out) > MaxDataSize {
		return nil, ErrDataTooLong
	}
	return out, nil
}

// UnpackStrings is the inverse of PackStrings; trailing garbage ends the
// list rather than failing, matching how clients historically treated it.
func UnpackStrings(raw []byte) []string {
	var out []string
	pos := 0
	for pos < len(raw) {
		end := pos + 1 + int(raw[pos])
		if end > len(raw) {
			break
		}
		out = append(out, string(raw[pos+1:end]))
		pos = end
	}
	return out
}
