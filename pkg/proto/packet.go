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
Package proto implements the fixed-layout transaction datagram format and
the command payload codecs riding on it.

Packet layout (9-byte header, then command data):

	offset 0    transport tag, constant 0x03
	offset 1    packet type (high 2 bits) | control flags (low 6 bits)
	offset 2    sequence / bitmap number
	offset 3-4  transaction id, big-endian
	offset 5-8  4-byte command tag ("NR02", "NOTI", "CLEN", or four NULs)
	offset 9-   command data; absent for responses and releases
*/
package proto

import (
	"fmt"
)

type Packet struct {
	Type    PacketType
	Flags   uint8
	Seq     uint8
	Tid     uint16
	Command CommandTag
	Data    []byte
}

// NewRequest builds a request packet carrying the given command. All
// requests are sent exactly-once with sequence number 1.
func NewRequest(tid uint16, cmd CommandTag, data []byte) *Packet {
	return &Packet{
		Type:    PacketTypeRequest,
		Flags:   FlagXO,
		Seq:     1,
		Tid:     tid,
		Command: cmd,
		Data:    data,
	}
}

// NewReset builds the four-NUL control request that tells a listener to
// drop its registration and find another server.
func NewReset(tid uint16) *Packet {
	return NewRequest(tid, CmdReset, kResetData)
}

func (p *Packet) Encode() ([]byte, error) {
	if len(p.Data) > kMaxPacketData {
		return nil, ErrDataTooLong
	}
	switch p.Type {
	case PacketTypeRequest, PacketTypeResponse, PacketTypeRelease:
	default:
		return nil, ErrInvalidPacketType
	}
	buf := make([]byte, kPacketHeaderSize+len(p.Data))
	buf[0] = kTransportTag
	buf[1] = uint8(p.Type) | (p.Flags & kPacketFlagMask)
	buf[2] = p.Seq
	EncByteOrder.PutUint16(buf[3:5], p.Tid)
	copy(buf[5:9], p.Command[:])
	copy(buf[kPacketHeaderSize:], p.Data)
	return buf, nil
}

// Decode parses a raw datagram. A *ProtocolError return means the packet
// must be dropped without a reply.
func Decode(raw []byte) (*Packet, error) {
	if len(raw) < kPacketHeaderSize {
		return nil, ErrMalformedPacket
	}
	if raw[0] != kTransportTag {
		return nil, ErrMalformedPacket
	}
	p := &Packet{
		Type:  PacketType(raw[1] & kPacketTypeMask),
		Flags: raw[1] & kPacketFlagMask,
		Seq:   raw[2],
		Tid:   EncByteOrder.Uint16(raw[3:5]),
	}
	switch p.Type {
	case PacketTypeRequest, PacketTypeResponse, PacketTypeRelease:
	default:
		return nil, ErrInvalidPacketType
	}
	copy(p.Command[:], raw[5:9])
	if len(raw) > kPacketHeaderSize {
		p.Data = make([]byte, len(raw)-kPacketHeaderSize)
		copy(p.Data, raw[kPacketHeaderSize:])
	}
	return p, nil
}

// Response derives the acknowledgement for a request: header copied, type
// rewritten, data discarded.
func (p *Packet) Response() *Packet {
	return &Packet{
		Type:    PacketTypeResponse,
		Flags:   p.Flags,
		Seq:     p.Seq,
		Tid:     p.Tid,
		Command: p.Command,
	}
}

// Release derives the closing packet of a transaction from its response.
func (p *Packet) Release() *Packet {
	return &Packet{
		Type:    PacketTypeRelease,
		Flags:   p.Flags,
		Seq:     p.Seq,
		Tid:     p.Tid,
		Command: p.Command,
	}
}

func (p *Packet) IsReset() bool {
	return p.Command == CmdReset
}

func (p *Packet) String() string {
	var kind string
	switch p.Type {
	case PacketTypeRequest:
		kind = "REQ"
	case PacketTypeResponse:
		kind = "RSP"
	case PacketTypeRelease:
		kind = "REL"
	default:
		kind = "???"
	}
	return fmt.Sprintf("%s %s tid=%d len=%d", kind, p.Command, p.Tid, len(p.Data))
}
