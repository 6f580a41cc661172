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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const kTestConfig = `
TCPListenAddr = ":3152"
UDPListenAddr = ":3154"
AdminUID      = 17
DbPath        = "/var/lib/notify/notify.db"
LogLevel      = "verbose"

[Directory]
Addr = "dnd.example.net:902"

[Transaction]
RetransmitInterval = "15s"
MaxRetries         = 4
ResolveTimeout     = "3m"

[Notifier]
ClientMaxAge = "20m"
`

func TestLoadConfig(t *testing.T) {
	saved := ServerConfig
	defer func() { ServerConfig = saved }()

	path := filepath.Join(t.TempDir(), "notifyserv.toml")
	if err := os.WriteFile(path, []byte(kTestConfig), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	cfg := &ServerConfig
	if cfg.TCPListenAddr != ":3152" || cfg.UDPListenAddr != ":3154" {
		t.Errorf("listen addrs: %s %s", cfg.TCPListenAddr, cfg.UDPListenAddr)
	}
	if cfg.AdminUID != 17 {
		t.Errorf("AdminUID = %d", cfg.AdminUID)
	}
	if cfg.Directory.Addr != "dnd.example.net:902" {
		t.Errorf("Directory.Addr = %q", cfg.Directory.Addr)
	}
	if cfg.Transaction.RetransmitInterval.Duration != 15*time.Second ||
		cfg.Transaction.MaxRetries != 4 ||
		cfg.Transaction.ResolveTimeout.Duration != 3*time.Minute {
		t.Errorf("transaction config: %+v", cfg.Transaction)
	}

	ncfg := cfg.NotifierConfig()
	if ncfg.ListenAddr != ":3154" {
		t.Errorf("notifier listen addr = %q", ncfg.ListenAddr)
	}
	if ncfg.ClientMaxAge.Duration != 20*time.Minute {
		t.Errorf("ClientMaxAge = %s", ncfg.ClientMaxAge)
	}
	if ncfg.Transaction.RetransmitInterval.Duration != 15*time.Second {
		t.Errorf("notifier transaction config not inherited: %+v", ncfg.Transaction)
	}

	hcfg := cfg.HandlerConfig()
	if hcfg.AdminUID != 17 || hcfg.MaxAuthFailures != 3 {
		t.Errorf("handler config: %+v", hcfg)
	}

	scfg := cfg.ServiceConfig()
	if len(scfg.Listener) != 1 || scfg.Listener[0].Addr != ":3152" {
		t.Errorf("service listeners: %+v", scfg.Listener)
	}

	dcfg := cfg.DBConfig()
	if dcfg.Path != "/var/lib/notify/notify.db" {
		t.Errorf("db path = %q", dcfg.Path)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	saved := ServerConfig
	defer func() { ServerConfig = saved }()

	path := filepath.Join(t.TempDir(), "notifyserv.toml")
	if err := os.WriteFile(path, []byte("AdminUID = 1\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg := &ServerConfig
	if cfg.TCPListenAddr != ":2152" || cfg.UDPListenAddr != ":2154" {
		t.Errorf("default listen addrs: %s %s", cfg.TCPListenAddr, cfg.UDPListenAddr)
	}
	if cfg.Transaction.RetransmitInterval.Duration != 20*time.Second {
		t.Errorf("default retransmit interval = %s", cfg.Transaction.RetransmitInterval)
	}
	if cfg.Notifier.ClientMaxAge.Duration != 10*time.Minute {
		t.Errorf("default client max age = %s", cfg.Notifier.ClientMaxAge)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	saved := ServerConfig
	defer func() { ServerConfig = saved }()

	if err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
