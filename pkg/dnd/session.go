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

package dnd

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Session is a line-protocol client for the directory service. One
// request/response exchange at a time; a mutex serializes callers.
//
// Exchanges used:
//
//	LOOKUP <name>    -> 200 <uid>,<name>,<notifyserv> | 550 ...
//	VALIDATE <name>  -> 300 <challenge>               | 550 ...
//	PASE <passcode>  -> 200 <uid>,<name>,<notifyserv> | 550 ...
//	PASS <password>  -> 200 <uid>,<name>,<notifyserv> | 550 ...
//	QUIT             -> 221
type Session struct {
	config Config

	mtx  sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
}

var _ IDirectory = (*Session)(nil)

func NewSession(cfg Config) (*Session, error) {
	cfg.SetDefaultIfNotDefined()
	s := &Session{config: cfg}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) connect() error {
	conn, err := net.DialTimeout("tcp", s.config.Addr, s.config.ConnectTimeout.Duration)
	if err != nil {
		glog.Warningf("directory %s unreachable: %v", s.config.Addr, err)
		return ErrUnavailable
	}
	s.conn = conn
	s.rd = bufio.NewReader(conn)
	if code, _, err := s.readReply(); err != nil || code != 220 {
		conn.Close()
		return ErrUnavailable
	}
	return nil
}

func (s *Session) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.conn == nil {
		return nil
	}
	s.exchangeLocked("QUIT")
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Session) readReply() (code int, text string, err error) {
	line, err := s.rd.ReadString('\n')
	if err != nil {
		return 0, "", ErrUnavailable
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 3 {
		return 0, "", ErrUnavailable
	}
	code, err = strconv.Atoi(line[:3])
	if err != nil {
		return 0, "", ErrUnavailable
	}
	if len(line) > 4 {
		text = line[4:]
	}
	return code, text, nil
}

func (s *Session) exchangeLocked(format string, args ...interface{}) (int, string, error) {
	if s.conn == nil {
		return 0, "", ErrUnavailable
	}
	s.conn.SetDeadline(time.Now().Add(s.config.RequestTimeout.Duration))
	if _, err := fmt.Fprintf(s.conn, format+"\r\n", args...); err != nil {
		return 0, "", ErrUnavailable
	}
	return s.readReply()
}

func parseUserInfo(text string) (UserInfo, error) {
	parts := strings.SplitN(text, ",", 3)
	if len(parts) != 3 {
		return UserInfo{}, ErrUnavailable
	}
	uid, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return UserInfo{}, ErrUnavailable
	}
	return UserInfo{
		UID:        uint32(uid),
		Name:       parts[1],
		NotifyServ: parts[2],
	}, nil
}

func (s *Session) Lookup(name string) (UserInfo, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	code, text, err := s.exchangeLocked("LOOKUP %s", name)
	if err != nil {
		return UserInfo{}, err
	}
	switch code {
	case 200:
		return parseUserInfo(text)
	case 550:
		return UserInfo{}, ErrNoSuchUser
	}
	return UserInfo{}, ErrUnavailable
}

type validation struct {
	session   *Session
	challenge string
	done      bool
}

func (s *Session) BeginValidate(name string) (IValidation, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	code, text, err := s.exchangeLocked("VALIDATE %s", name)
	if err != nil {
		return nil, err
	}
	switch code {
	case 300:
		return &validation{session: s, challenge: text}, nil
	case 550:
		return nil, ErrNoSuchUser
	}
	return nil, ErrUnavailable
}

func (v *validation) Challenge() string {
	return v.challenge
}

func (v *validation) complete(cmd, arg string) (UserInfo, error) {
	v.session.mtx.Lock()
	defer v.session.mtx.Unlock()
	if v.done {
		return UserInfo{}, ErrBadPasscode
	}
	v.done = true
	code, text, err := v.session.exchangeLocked("%s %s", cmd, arg)
	if err != nil {
		return UserInfo{}, err
	}
	switch code {
	case 200:
		return parseUserInfo(text)
	case 550:
		return UserInfo{}, ErrBadPasscode
	}
	return UserInfo{}, ErrUnavailable
}

func (v *validation) CompletePasscode(passcode string) (UserInfo, error) {
	return v.complete("PASE", passcode)
}

func (v *validation) CompletePassword(password string) (UserInfo, error) {
	return v.complete("PASS", password)
}

func (v *validation) Abort() {
	v.session.mtx.Lock()
	v.done = true
	v.session.mtx.Unlock()
}
