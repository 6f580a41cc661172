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

package transaction

import (
	"time"

	"dartnotify/pkg/util"
)

const (
	kDefaultRetransmitInterval = 20 * time.Second
	kDefaultMaxRetries         = 6
	kDefaultResolveTimeout     = 5 * time.Minute
	kDefaultNumPartitions      = 64
)

type Config struct {
	// RetransmitInterval is the delay between successive transmissions of
	// an unacknowledged request or an unreleased response.
	RetransmitInterval util.Duration

	// MaxRetries is the number of retransmissions (beyond the initial
	// send) before an initiator reports delivery failure.
	MaxRetries int

	// ResolveTimeout bounds how long a resolved transaction id is
	// remembered for duplicate suppression.
	ResolveTimeout util.Duration
}

var DefaultConfig = Config{
	RetransmitInterval: util.Duration{Duration: kDefaultRetransmitInterval},
	MaxRetries:         kDefaultMaxRetries,
	ResolveTimeout:     util.Duration{Duration: kDefaultResolveTimeout},
}

func (cfg *Config) SetDefaultIfNotDefined() {
	if cfg.RetransmitInterval.Duration == 0 {
		cfg.RetransmitInterval.Duration = kDefaultRetransmitInterval
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = kDefaultMaxRetries
	}
	if cfg.ResolveTimeout.Duration == 0 {
		cfg.ResolveTimeout.Duration = kDefaultResolveTimeout
	}
}
