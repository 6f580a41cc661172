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
	"bytes"
	"testing"
)

func TestPacketRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte{},
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, MaxDataSize),
	}
	types := []PacketType{PacketTypeRequest, PacketTypeResponse, PacketTypeRelease}

	for _, typ := range types {
		for i, data := range payloads {
			p := &Packet{
				Type:    typ,
				Flags:   FlagXO | FlagEOM,
				Seq:     1,
				Tid:     0xBEEF,
				Command: CmdNotify,
				Data:    data,
			}
			raw, err := p.Encode()
			if err != nil {
				t.Fatalf("encode type=%x payload#%d: %v", typ, i, err)
			}
			q, err := Decode(raw)
			if err != nil {
				t.Fatalf("decode type=%x payload#%d: %v", typ, i, err)
			}
			if q.Type != p.Type || q.Flags != p.Flags || q.Seq != p.Seq ||
				q.Tid != p.Tid || q.Command != p.Command {
				t.Errorf("header mismatch: got %v want %v", q, p)
			}
			if !bytes.Equal(q.Data, p.Data) {
				t.Errorf("data mismatch: got %d bytes want %d", len(q.Data), len(p.Data))
			}
		}
	}
}

func TestPacketEncodeLimits(t *testing.T) {
	p := NewRequest(1, CmdNotify, bytes.Repeat([]byte{1}, kMaxPacketData+1))
	if _, err := p.Encode(); err != ErrDataTooLong {
		t.Errorf("oversize encode: got %v want ErrDataTooLong", err)
	}

	n := &NotifyData{Data: bytes.Repeat([]byte{1}, MaxDataSize+1)}
	if _, err := n.Encode(); err != ErrDataTooLong {
		t.Errorf("oversize notify encode: got %v want ErrDataTooLong", err)
	}

	// a full payload still fits in one packet behind the notify header
	n.Data = n.Data[:MaxDataSize]
	raw, err := n.Encode()
	if err != nil {
		t.Fatalf("full payload notify encode: %v", err)
	}
	if _, err := NewRequest(2, CmdNotify, raw).Encode(); err != nil {
		t.Errorf("full payload packet encode: %v", err)
	}

	p = &Packet{Type: PacketType(0), Command: CmdNotify}
	if _, err := p.Encode(); err != ErrInvalidPacketType {
		t.Errorf("bad type encode: got %v want ErrInvalidPacketType", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	good, err := NewRequest(7, CmdClear, []byte{0, 0, 0, 1, 0, 0, 0, 1}).Encode()
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"short header", good[:kPacketHeaderSize-1]},
		{"wrong transport tag", append([]byte{0x04}, good[1:]...)},
		{"zero type bits", func() []byte {
			b := append([]byte(nil), good...)
			b[1] &= kPacketFlagMask
			return b
		}()},
	}
	for _, tc := range cases {
		if _, err := Decode(tc.raw); err == nil {
			t.Errorf("%s: decode accepted malformed packet", tc.name)
		}
	}

	if _, err := Decode(good); err != nil {
		t.Errorf("control: %v", err)
	}
}

func TestResponseReleaseDerivation(t *testing.T) {
	req := NewRequest(0x1234, CmdRegister, []byte("x"))
	rsp := req.Response()
	if rsp.Type != PacketTypeResponse || rsp.Tid != req.Tid ||
		rsp.Command != req.Command || rsp.Flags != req.Flags || rsp.Data != nil {
		t.Errorf("bad response derivation: %v", rsp)
	}
	rel := rsp.Release()
	if rel.Type != PacketTypeRelease || rel.Tid != req.Tid || rel.Data != nil {
		t.Errorf("bad release derivation: %v", rel)
	}
}

func TestResetPacket(t *testing.T) {
	p := NewReset(9)
	if !p.IsReset() {
		t.Error("reset packet not recognized")
	}
	raw, err := p.Encode()
	if err != nil {
		t.Fatal(err)
	}
	q, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !q.IsReset() || !bytes.Equal(q.Data, []byte{0, 0, 0, 1}) {
		t.Errorf("reset round trip: %v data=%x", q, q.Data)
	}
}
