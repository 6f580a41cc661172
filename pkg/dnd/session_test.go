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
	"strings"
	"testing"
)

const kTestChallenge = "012345670123456701234567"

// fakeDirectoryServer speaks just enough of the directory line protocol
// for one session.
func fakeDirectoryServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveDirectoryConn(conn)
		}
	}()
	return ln.Addr().String()
}

func serveDirectoryConn(conn net.Conn) {
	defer conn.Close()
	fmt.Fprintf(conn, "220 DND server ready.\r\n")
	rd := bufio.NewReader(conn)
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd, arg := line, ""
		if i := strings.IndexByte(line, ' '); i >= 0 {
			cmd, arg = line[:i], line[i+1:]
		}
		switch cmd {
		case "LOOKUP", "VALIDATE":
			if arg != "alice" && arg != "#42" {
				fmt.Fprintf(conn, "550 No unique match.\r\n")
			} else if cmd == "LOOKUP" {
				fmt.Fprintf(conn, "200 42,alice,notify1.example.net\r\n")
			} else {
				fmt.Fprintf(conn, "300 %s\r\n", kTestChallenge)
			}
		case "PASE", "PASS":
			if arg == "goodpass" {
				fmt.Fprintf(conn, "200 42,alice,notify1.example.net\r\n")
			} else {
				fmt.Fprintf(conn, "550 Validation failed.\r\n")
			}
		case "QUIT":
			fmt.Fprintf(conn, "221 Goodbye.\r\n")
			return
		default:
			fmt.Fprintf(conn, "500 Unrecognized.\r\n")
		}
	}
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(Config{Addr: fakeDirectoryServer(t)})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLookup(t *testing.T) {
	s := newTestSession(t)
	info, err := s.Lookup("alice")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if info.UID != 42 || info.Name != "alice" || info.NotifyServ != "notify1.example.net" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestLookupUnknown(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Lookup("bob"); err != ErrNoSuchUser {
		t.Fatalf("got %v, want ErrNoSuchUser", err)
	}
}

func TestValidatePasscode(t *testing.T) {
	s := newTestSession(t)
	v, err := s.BeginValidate("alice")
	if err != nil {
		t.Fatalf("BeginValidate: %v", err)
	}
	if v.Challenge() != kTestChallenge {
		t.Errorf("challenge = %q", v.Challenge())
	}
	info, err := v.CompletePasscode("goodpass")
	if err != nil {
		t.Fatalf("CompletePasscode: %v", err)
	}
	if info.UID != 42 {
		t.Errorf("uid = %d, want 42", info.UID)
	}
}

func TestValidateBadPasscode(t *testing.T) {
	s := newTestSession(t)
	v, err := s.BeginValidate("alice")
	if err != nil {
		t.Fatalf("BeginValidate: %v", err)
	}
	if _, err := v.CompletePasscode("wrong"); err != ErrBadPasscode {
		t.Fatalf("got %v, want ErrBadPasscode", err)
	}
	// a validation resolves exactly once
	if _, err := v.CompletePasscode("goodpass"); err != ErrBadPasscode {
		t.Fatalf("second complete: got %v, want ErrBadPasscode", err)
	}
}

func TestValidateUnknownUser(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.BeginValidate("bob"); err != ErrNoSuchUser {
		t.Fatalf("got %v, want ErrNoSuchUser", err)
	}
}

func TestUnreachableDirectory(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := NewSession(Config{Addr: addr}); err != ErrUnavailable {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}
