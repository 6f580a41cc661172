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
	"encoding/binary"
)

type (
	PacketType  uint8
	ServiceCode int32
	CommandTag  [4]byte
)

var EncByteOrder = binary.BigEndian

const (
	// kTransportTag is the constant first byte of every datagram.
	kTransportTag uint8 = 0x03

	// kPacketHeaderSize covers the fixed header through the command tag.
	kPacketHeaderSize = 9

	// MaxDataSize caps the notification payload carried by one
	// transaction packet.
	MaxDataSize = 578

	// kMaxPacketData leaves room for the fixed fields of the largest
	// command (NOTI) in front of a full payload.
	kMaxPacketData = kNotifyFixedSize + MaxDataSize

	MaxPacketSize = kPacketHeaderSize + kMaxPacketData
)

const (
	PacketTypeRequest  = PacketType(0x40)
	PacketTypeResponse = PacketType(0x80)
	PacketTypeRelease  = PacketType(0xC0)

	kPacketTypeMask uint8 = 0xC0
	kPacketFlagMask uint8 = 0x3F
)

// Control flags carried in the low bits of the type byte.
const (
	FlagChecksum uint8 = 0x01
	FlagTid      uint8 = 0x02
	FlagXCall    uint8 = 0x04
	FlagStatus   uint8 = 0x08
	FlagEOM      uint8 = 0x10
	FlagXO       uint8 = 0x20 // exactly-once
)

var (
	CmdRegister = CommandTag{'N', 'R', '0', '2'}
	CmdNotify   = CommandTag{'N', 'O', 'T', 'I'}
	CmdClear    = CommandTag{'C', 'L', 'E', 'N'}
	CmdReset    = CommandTag{0, 0, 0, 0}
)

// kResetData is the fixed payload of a reset request.
var kResetData = []byte{0, 0, 0, 1}

// ResetData returns a copy of the fixed reset payload for callers that
// build the request through other paths than NewReset.
func ResetData() []byte {
	return append([]byte(nil), kResetData...)
}

const (
	ServiceControl = ServiceCode(0)
	ServiceMail    = ServiceCode(1)
	ServiceNews    = ServiceCode(2)
	ServiceTalk    = ServiceCode(3)

	// ServiceAll is the negative sentinel accepted by clear operations.
	ServiceAll = ServiceCode(-1)
)

func (t CommandTag) String() string {
	if t == CmdReset {
		return "RESET"
	}
	return string(t[:])
}

func (s ServiceCode) String() string {
	switch s {
	case ServiceControl:
		return "control"
	case ServiceMail:
		return "mail"
	case ServiceNews:
		return "news"
	case ServiceTalk:
		return "talk"
	}
	if s < 0 {
		return "all"
	}
	return "service(" + itoa(uint32(s)) + ")"
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
