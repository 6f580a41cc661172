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

type ProtocolError struct {
	what string
}

func NewProtocolError(what string) *ProtocolError {
	return &ProtocolError{what: what}
}

func (e *ProtocolError) Error() string {
	return "proto: " + e.what
}

// All decode failures are *ProtocolError; receivers drop the datagram
// silently and rely on the sender's retransmission.
var (
	ErrMalformedPacket   = NewProtocolError("malformed packet")
	ErrInvalidPacketType = NewProtocolError("invalid packet type")
	ErrDataTooLong       = NewProtocolError("data exceeds packet capacity")
	ErrTruncatedCommand  = NewProtocolError("truncated command data")
)
