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
Package client implements the listener side of the notification protocol.

A client registers a uid and a set of services with a server, then consumes
notifications as they arrive. Each inbound notice rides its own
Request/Response/Release transaction, so the server knows delivery
succeeded before it discards the stored copy.

possible returned error from the registration calls

  Register
  * nil
  * transaction.ErrDeliveryFailed
  * transaction.ErrEngineClosed

  Clear
  * nil
  * ErrNotRegistered
  * transaction.ErrDeliveryFailed
  * transaction.ErrEngineClosed
*/
package client

import (
	"context"
	"time"

	"dartnotify/pkg/proto"
)

// Notification is one notice handed to the application, in arrival order.
type Notification struct {
	Service proto.ServiceCode
	UID     uint32
	MsgID   uint32
	Data    []byte
}

// ServerResolver supplies a replacement server address after the current
// server resets the client. Returning an error leaves the client
// unregistered; the application can call Register again later.
type ServerResolver func() (addr string, err error)

type IClient interface {
	// Register announces uid and the services it wants notices for. The
	// server replies to the socket the request came from, so clients
	// behind address translation need no reachable port of their own.
	Register(ctx context.Context, uid uint32, services []proto.ServiceCode) error

	// Next returns the oldest queued notification, waiting up to timeout
	// for one to arrive. ok is false on timeout or after Close.
	Next(timeout time.Duration) (n Notification, ok bool)

	// Peek returns the oldest queued notification without consuming it.
	Peek() (n Notification, ok bool)

	// Clear asks the server to discard stored notices for the registered
	// uid. A negative service clears all services.
	Clear(ctx context.Context, service proto.ServiceCode) error

	Close()
}

// New binds a datagram socket and starts listening for notices. resolver
// may be nil, in which case a server reset just drops the registration.
func New(config Config, resolver ServerResolver) (IClient, error) {
	return newClientImpl(config, resolver)
}
