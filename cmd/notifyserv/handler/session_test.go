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

package handler

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	uuid "github.com/satori/go.uuid"

	"dartnotify/cmd/notifyserv/notifier"
	"dartnotify/cmd/notifyserv/storage"
	"dartnotify/pkg/dnd"
	"dartnotify/pkg/proto"
)

const (
	kGoodPasscode = "001122334455667700112233"
	kGoodPassword = "secret"
	kChallenge    = "118273645566473829101929"
)

type fakeValidation struct {
	info    dnd.UserInfo
	aborted bool
}

func (v *fakeValidation) Challenge() string { return kChallenge }

func (v *fakeValidation) CompletePasscode(passcode string) (dnd.UserInfo, error) {
	if passcode != kGoodPasscode {
		return dnd.UserInfo{}, dnd.ErrBadPasscode
	}
	return v.info, nil
}

func (v *fakeValidation) CompletePassword(password string) (dnd.UserInfo, error) {
	if password != kGoodPassword {
		return dnd.UserInfo{}, dnd.ErrBadPasscode
	}
	return v.info, nil
}

func (v *fakeValidation) Abort() { v.aborted = true }

type fakeDirectory struct {
	users map[string]dnd.UserInfo
}

func (d *fakeDirectory) Lookup(name string) (dnd.UserInfo, error) {
	info, ok := d.users[name]
	if !ok {
		return dnd.UserInfo{}, dnd.ErrNoSuchUser
	}
	return info, nil
}

func (d *fakeDirectory) BeginValidate(name string) (dnd.IValidation, error) {
	info, ok := d.users[name]
	if !ok {
		return nil, dnd.ErrNoSuchUser
	}
	return &fakeValidation{info: info}, nil
}

func (d *fakeDirectory) Close() error { return nil }

type fakeNotifier struct {
	mtx        sync.Mutex
	posted     []*storage.Record
	registered []uint32
	clients    []notifier.ClientInfo
}

func (n *fakeNotifier) Post(rec *storage.Record) (storage.RecordID, error) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.posted = append(n.posted, rec)
	return uuid.NewV4(), nil
}

func (n *fakeNotifier) RegisterClient(uid uint32, addr net.Addr, services []proto.ServiceCode) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.registered = append(n.registered, uid)
}

func (n *fakeNotifier) Clients() []notifier.ClientInfo {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.clients
}

type fakeStore struct {
	mtx  sync.Mutex
	recs []*storage.Record
}

func (s *fakeStore) Put(rec *storage.Record) (storage.RecordID, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.recs = append(s.recs, rec)
	return uuid.NewV4(), nil
}

func (s *fakeStore) GetPending(uid uint32, services []proto.ServiceCode) ([]*storage.Record, error) {
	return nil, nil
}

func (s *fakeStore) Clear(uid uint32, service proto.ServiceCode) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	kept := s.recs[:0]
	removed := 0
	for _, rec := range s.recs {
		if rec.UID == uid && (service < 0 || rec.Service == service) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.recs = kept
	return removed, nil
}

func (s *fakeStore) ListAll() ([]*storage.Record, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]*storage.Record(nil), s.recs...), nil
}

func (s *fakeStore) Close() error { return nil }

type testConn struct {
	t  *testing.T
	c  net.Conn
	rd *bufio.Reader
}

func startSession(t *testing.T, cfg Config) (*testConn, *fakeNotifier, *fakeStore) {
	t.Helper()
	dir := &fakeDirectory{users: map[string]dnd.UserInfo{
		"alice": {Name: "alice", UID: 42, NotifyServ: "localhost"},
		"root":  {Name: "root", UID: 1, NotifyServ: "localhost"},
	}}
	ntf := &fakeNotifier{}
	store := &fakeStore{}
	h := NewRequestHandler(cfg, store, ntf,
		func() (dnd.IDirectory, error) { return dir, nil }, nil)

	clientEnd, serverEnd := net.Pipe()
	go h.Serve(serverEnd)
	t.Cleanup(func() { clientEnd.Close() })
	return &testConn{t: t, c: clientEnd, rd: bufio.NewReader(clientEnd)}, ntf, store
}

func (tc *testConn) sendLine(line string) {
	tc.t.Helper()
	tc.c.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := fmt.Fprintf(tc.c, "%s\r\n", line); err != nil {
		tc.t.Fatalf("send %q: %v", line, err)
	}
}

func (tc *testConn) sendRaw(data []byte) {
	tc.t.Helper()
	tc.c.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := tc.c.Write(data); err != nil {
		tc.t.Fatalf("send payload: %v", err)
	}
}

func (tc *testConn) expect(prefix string) string {
	tc.t.Helper()
	tc.c.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := tc.rd.ReadString('\n')
	if err != nil {
		tc.t.Fatalf("waiting for %q: %v", prefix, err)
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, prefix) {
		tc.t.Fatalf("got %q, want prefix %q", line, prefix)
	}
	return line
}

func (tc *testConn) expectClosed() {
	tc.t.Helper()
	tc.c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if line, err := tc.rd.ReadString('\n'); err == nil {
		tc.t.Fatalf("connection still open, got %q", line)
	}
}

func (tc *testConn) authenticate(user string) {
	tc.t.Helper()
	tc.sendLine("USER " + user)
	tc.expect("300 " + kChallenge)
	tc.sendLine("PASE " + kGoodPasscode)
	tc.expect("200 User validated.")
}

func TestBannerAndQuit(t *testing.T) {
	tc, _, _ := startSession(t, Config{})
	tc.expect("220 ")
	tc.sendLine("QUIT")
	tc.expect("221 ")
	tc.expectClosed()
}

func TestPostingFlow(t *testing.T) {
	tc, ntf, _ := startSession(t, Config{})
	tc.expect("220 ")
	tc.authenticate("alice")

	tc.sendLine("NOTIFY 9,501,1,9001,1")
	tc.sendRaw([]byte("have mail"))
	tc.expect("200 9001")

	ntf.mtx.Lock()
	defer ntf.mtx.Unlock()
	if len(ntf.posted) != 1 {
		t.Fatalf("posted %d records, want 1", len(ntf.posted))
	}
	rec := ntf.posted[0]
	if rec.UID != 501 || rec.Service != proto.ServiceMail || rec.MsgID != 9001 ||
		!rec.Sticky || string(rec.Data) != "have mail" {
		t.Errorf("unexpected record: %s data=%q", rec, rec.Data)
	}
}

func TestPlaintextPassword(t *testing.T) {
	tc, _, _ := startSession(t, Config{})
	tc.expect("220 ")
	tc.sendLine("USER alice")
	tc.expect("300 ")
	tc.sendLine("PASS " + kGoodPassword)
	tc.expect("210 Password accepted.")
}

func TestUnknownUser(t *testing.T) {
	tc, _, _ := startSession(t, Config{})
	tc.expect("220 ")
	tc.sendLine("USER nobody")
	tc.expect("550 ")
}

func TestAuthFailureLimitClosesSession(t *testing.T) {
	tc, _, _ := startSession(t, Config{MaxAuthFailures: 3})
	tc.expect("220 ")
	for i := 0; i < 3; i++ {
		tc.sendLine("USER alice")
		tc.expect("300 ")
		tc.sendLine("PASE 777777777777777777777777")
		tc.expect("550 ")
	}
	tc.expectClosed()
}

func TestPendingValidationRejectsOtherCommands(t *testing.T) {
	tc, _, _ := startSession(t, Config{})
	tc.expect("220 ")
	tc.sendLine("USER alice")
	tc.expect("300 ")
	tc.sendLine("NOOP")
	tc.expect("503 ")

	// The abandoned validation must not linger.
	tc.sendLine("PASE " + kGoodPasscode)
	tc.expect("503 ")

	// A fresh USER starts over cleanly.
	tc.authenticate("alice")
}

func TestCommandsRequireAuthentication(t *testing.T) {
	tc, _, _ := startSession(t, Config{})
	tc.expect("220 ")
	tc.sendLine("CLEAR 5,-1")
	tc.expect("503 ")
	tc.sendLine("LIST all")
	tc.expect("503 ")
}

func TestUnknownCommand(t *testing.T) {
	tc, _, _ := startSession(t, Config{})
	tc.expect("220 ")
	tc.sendLine("FROB 1,2,3")
	tc.expect("500 ")
	tc.sendLine("NOOP")
	tc.expect("200 ")
}

func TestNotifyValidation(t *testing.T) {
	tc, _, _ := startSession(t, Config{})
	tc.expect("220 ")
	tc.authenticate("alice")

	// wrong arg count
	tc.sendLine("NOTIFY 1,2,3")
	tc.expect("501 ")
	// oversized payload
	tc.sendLine(fmt.Sprintf("NOTIFY %d,5,1,1,0", proto.MaxDataSize+1))
	tc.expect("501 ")
	// unknown service type; payload still consumed
	tc.sendLine("NOTIFY 2,5,9,1,0")
	tc.sendRaw([]byte("xy"))
	tc.expect("501 ")
	// bad sticky flag
	tc.sendLine("NOTIFY 1,5,1,1,2")
	tc.sendRaw([]byte("x"))
	tc.expect("501 ")
	// still in sync
	tc.sendLine("NOOP")
	tc.expect("200 ")
}

func TestBroadcastRequiresPrivilege(t *testing.T) {
	tc, _, _ := startSession(t, Config{AdminUID: 1})
	tc.expect("220 ")
	tc.authenticate("alice")
	tc.sendLine("NOTIFY 2,0,2,1,1")
	tc.sendRaw([]byte("hi"))
	tc.expect("554 ")

	tc.sendLine("CLEAR 0,-1")
	tc.expect("554 ")
}

func TestAdminBroadcastAndList(t *testing.T) {
	tc, ntf, store := startSession(t, Config{AdminUID: 1})
	tc.expect("220 ")
	tc.authenticate("root")

	tc.sendLine("NOTIFY 4,0,2,77,1")
	tc.sendRaw([]byte("news"))
	tc.expect("200 77")

	store.Put(&storage.Record{UID: 3, Service: proto.ServiceMail, MsgID: 2,
		Data: []byte(`say "hi"`)})
	ntf.mtx.Lock()
	ntf.clients = []notifier.ClientInfo{{
		UID:       3,
		Addr:      "10.0.0.9:2154",
		Services:  []proto.ServiceCode{proto.ServiceMail, proto.ServiceNews},
		LastHeard: time.Now(),
	}}
	ntf.mtx.Unlock()

	tc.sendLine("LIST all")
	tc.expect("101 2")
	tc.expect(`110 3,1,2,0,"say ""hi"""`)
	tc.expect("110 3,10.0.0.9,2154,1+2 ")
	tc.expect("200 Ok.")
}

func TestClientCommand(t *testing.T) {
	tc, ntf, _ := startSession(t, Config{AdminUID: 1})
	tc.expect("220 ")
	tc.authenticate("root")

	tc.sendLine("CLIENT 8,127.0.0.1,2154,1,2")
	tc.expect("200 ")
	ntf.mtx.Lock()
	defer ntf.mtx.Unlock()
	if len(ntf.registered) != 1 || ntf.registered[0] != 8 {
		t.Fatalf("registered = %v, want [8]", ntf.registered)
	}
}

func TestClearCommand(t *testing.T) {
	tc, _, store := startSession(t, Config{})
	tc.expect("220 ")
	store.Put(&storage.Record{UID: 42, Service: proto.ServiceMail, MsgID: 1})
	store.Put(&storage.Record{UID: 42, Service: proto.ServiceNews, MsgID: 2})

	tc.authenticate("alice")
	tc.sendLine("CLEAR 42,1")
	tc.expect("200 Notifications cleared.")

	recs, _ := store.ListAll()
	if len(recs) != 1 || recs[0].Service != proto.ServiceNews {
		t.Fatalf("remaining records: %v", recs)
	}
}
