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
Package dnd talks to the external name directory. The directory is a
collaborator, not part of this system: it maps user names to numeric ids
and notification server hosts, and owns the password-challenge
cryptography. Everything here treats that cryptography as opaque.
*/
package dnd

import (
	"time"

	"dartnotify/pkg/util"
)

type UserInfo struct {
	Name       string
	UID        uint32
	NotifyServ string
}

// IValidation is one in-progress authentication against the directory.
// Exactly one Complete call resolves it.
type IValidation interface {
	// Challenge returns the random challenge issued for this validation.
	Challenge() string
	// CompletePasscode validates an externally computed
	// encrypt(challenge, password) passcode.
	CompletePasscode(passcode string) (UserInfo, error)
	// CompletePassword validates a plaintext password; the directory
	// applies its own challenge encryption. Discouraged but supported.
	CompletePassword(password string) (UserInfo, error)
	Abort()
}

type IDirectory interface {
	Lookup(name string) (UserInfo, error)
	BeginValidate(name string) (IValidation, error)
	Close() error
}

type Error struct {
	what string
}

func (e *Error) Error() string {
	return "dnd: " + e.what
}

var (
	// ErrUnavailable means the directory cannot be reached; callers
	// report "450 directory unavailable" rather than failing hard.
	ErrUnavailable = &Error{"directory unavailable"}
	ErrNoSuchUser  = &Error{"no unique match for user"}
	ErrBadPasscode = &Error{"validation failed"}
)

const (
	kDefaultConnectTimeout = 5 * time.Second
	kDefaultRequestTimeout = 10 * time.Second
)

type Config struct {
	Addr           string
	ConnectTimeout util.Duration
	RequestTimeout util.Duration
}

func (cfg *Config) SetDefaultIfNotDefined() {
	if cfg.ConnectTimeout.Duration == 0 {
		cfg.ConnectTimeout.Duration = kDefaultConnectTimeout
	}
	if cfg.RequestTimeout.Duration == 0 {
		cfg.RequestTimeout.Duration = kDefaultRequestTimeout
	}
}
