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
notifyserv is the notification daemon: it accepts postings from mail and
news systems over a line protocol, stores them, and pushes them to
registered listeners over reliable datagram transactions.
*/
package main

import (
	"errors"
	"flag"
	"io/fs"
	"os"

	"github.com/golang/glog"

	"dartnotify/cmd/notifyserv/app"
	"dartnotify/cmd/notifyserv/config"
	"dartnotify/pkg/initmgr"
	"dartnotify/pkg/version"
)

func main() {
	defer initmgr.Finalize()

	var displayVersion bool
	var configFilename string
	flag.BoolVar(&displayVersion, "version", false, "display version info")
	flag.StringVar(&configFilename, "config", "", "toml config file")
	flag.Parse()

	if displayVersion {
		version.PrintVersionInfo()
		return
	}
	if configFilename == "" {
		glog.Exitf("missing -config option")
	}
	if _, err := os.Stat(configFilename); errors.Is(err, fs.ErrNotExist) {
		glog.Exitf("config file %q not found", configFilename)
	}

	initmgr.Register(config.Initializer, configFilename)
	initmgr.RegisterWithFuncs(app.Initialize, app.Finalize)
	initmgr.Init()

	app.Run()
}
