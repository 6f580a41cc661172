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
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	uuid "github.com/satori/go.uuid"

	"dartnotify/cmd/notifyserv/storage"
	"dartnotify/pkg/dnd"
	"dartnotify/pkg/proto"
)

// session is the per-connection command interpreter. It moves through
// three states: unauthenticated, validation in progress (s.validation
// set), and authenticated (s.authed).
type session struct {
	h    *RequestHandler
	id   string
	conn net.Conn
	rd   *bufio.Reader

	authed       bool
	uid          uint32
	userName     string
	privileged   bool
	dir          dnd.IDirectory
	validation   dnd.IValidation
	authFailures int
	quit         bool
}

func newSession(h *RequestHandler, conn net.Conn) *session {
	return &session{
		h:    h,
		id:   uuid.NewV4().String(),
		conn: conn,
		rd:   bufio.NewReader(conn),
	}
}

func (s *session) run() {
	defer s.conn.Close()
	defer s.cleanup()

	glog.V(1).Infof("session %s open from %s", s.id, s.conn.RemoteAddr())
	s.reply(220, "Notification server ready.")
	for !s.quit {
		line, err := s.readLine()
		if err != nil {
			glog.V(1).Infof("session %s closed: %v", s.id, err)
			return
		}
		s.dispatch(line)
	}
	glog.V(1).Infof("session %s finished", s.id)
}

func (s *session) cleanup() {
	s.abortValidation()
	if s.dir != nil {
		s.dir.Close()
		s.dir = nil
	}
}

func (s *session) abortValidation() {
	if s.validation != nil {
		s.validation.Abort()
		s.validation = nil
	}
}

func (s *session) readLine() (string, error) {
	s.conn.SetReadDeadline(time.Now().Add(s.h.config.IdleTimeout.Duration))
	line, err := s.rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *session) reply(code int, text string) {
	s.conn.SetWriteDeadline(time.Now().Add(s.h.config.WriteTimeout.Duration))
	if _, err := fmt.Fprintf(s.conn, "%d %s\r\n", code, text); err != nil {
		glog.V(1).Infof("session %s write failed: %v", s.id, err)
		s.quit = true
	}
}

func (s *session) dispatch(line string) {
	cmd, args := line, ""
	if i := strings.IndexByte(line, ' '); i >= 0 {
		cmd, args = line[:i], line[i+1:]
	}
	cmd = strings.ToUpper(cmd)

	// A pending validation accepts nothing but its completion.
	if s.validation != nil && cmd != "PASS" && cmd != "PASE" {
		s.abortValidation()
		s.reply(503, "Bad sequence of commands.")
		return
	}

	switch cmd {
	case "USER":
		s.cmdUser(args)
	case "PASE":
		s.cmdValidate(args, true)
	case "PASS":
		s.cmdValidate(args, false)
	case "NOTIFY":
		s.cmdNotify(args)
	case "CLEAR":
		s.cmdClear(args)
	case "CLIENT":
		s.cmdClient(args)
	case "LIST":
		s.cmdList(args)
	case "NOOP":
		s.reply(200, "Ok.")
	case "QUIT":
		s.reply(221, "Goodbye.")
		s.quit = true
	default:
		s.reply(500, "Command unrecognized.")
	}
}

func (s *session) cmdUser(args string) {
	name := strings.TrimSpace(args)
	if name == "" {
		s.reply(501, "Syntax error in parameters.")
		return
	}
	if s.dir == nil {
		dir, err := s.h.dial()
		if err != nil {
			glog.Warningf("session %s: directory dial: %v", s.id, err)
			s.reply(450, "Directory unavailable.")
			return
		}
		s.dir = dir
	}
	v, err := s.dir.BeginValidate(name)
	switch err {
	case nil:
		s.validation = v
		s.reply(300, v.Challenge())
	case dnd.ErrNoSuchUser:
		s.reply(550, "No such user.")
	default:
		glog.Warningf("session %s: validate %q: %v", s.id, name, err)
		s.reply(450, "Directory unavailable.")
	}
}

func (s *session) cmdValidate(args string, passcode bool) {
	if s.validation == nil {
		s.reply(503, "Bad sequence of commands.")
		return
	}
	if passcode {
		if !validPasscode(args) {
			s.reply(501, "Syntax error in parameters.")
			return
		}
	} else if len(args) == 0 || len(args) > 8 {
		s.reply(501, "Syntax error in parameters.")
		return
	}

	v := s.validation
	s.validation = nil
	var info dnd.UserInfo
	var err error
	if passcode {
		info, err = v.CompletePasscode(args)
	} else {
		info, err = v.CompletePassword(args)
	}
	if err != nil {
		if err == dnd.ErrUnavailable {
			s.reply(450, "Directory unavailable.")
			return
		}
		s.authFailures++
		s.reply(550, "Validation failed.")
		if s.authFailures >= s.h.config.MaxAuthFailures {
			glog.Warningf("session %s: %d failed validations, closing", s.id, s.authFailures)
			s.quit = true
		}
		return
	}

	s.authed = true
	s.uid = info.UID
	s.userName = info.Name
	s.privileged = s.h.config.AdminUID != 0 && info.UID == s.h.config.AdminUID
	glog.Infof("session %s authenticated as uid %d (%s)", s.id, s.uid, s.userName)
	if passcode {
		s.reply(200, "User validated.")
	} else {
		s.reply(210, "Password accepted.")
	}
}

// validPasscode checks the 24-octal-digit form of an externally encrypted
// challenge response.
func validPasscode(arg string) bool {
	if len(arg) != 24 {
		return false
	}
	for i := 0; i < len(arg); i++ {
		if arg[i] < '0' || arg[i] > '7' {
			return false
		}
	}
	return true
}

// cmdNotify handles "NOTIFY <len>,<uid>,<type>,<msgid>,<sticky>" followed
// by exactly <len> raw payload bytes.
func (s *session) cmdNotify(args string) {
	if !s.authed {
		s.reply(503, "Bad sequence of commands.")
		return
	}
	f := strings.Split(args, ",")
	if len(f) != 5 {
		s.reply(501, "Syntax error in parameters.")
		return
	}
	length, err := strconv.ParseUint(strings.TrimSpace(f[0]), 10, 32)
	if err != nil || length > proto.MaxDataSize {
		s.reply(501, "Syntax error in parameters.")
		return
	}

	uid, err1 := strconv.ParseUint(strings.TrimSpace(f[1]), 10, 32)
	svcNum, err2 := strconv.ParseUint(strings.TrimSpace(f[2]), 10, 31)
	msgid, err3 := strconv.ParseUint(strings.TrimSpace(f[3]), 10, 32)
	stickyStr := strings.TrimSpace(f[4])

	// The payload follows the line unconditionally; consume it even when
	// the arguments are bad, or it would be parsed as commands.
	data := make([]byte, length)
	s.conn.SetReadDeadline(time.Now().Add(s.h.config.IdleTimeout.Duration))
	if _, err := io.ReadFull(s.rd, data); err != nil {
		glog.V(1).Infof("session %s: short notify payload: %v", s.id, err)
		s.quit = true
		return
	}

	svc := proto.ServiceCode(svcNum)
	if err1 != nil || err2 != nil || err3 != nil || !knownService(svc) ||
		(stickyStr != "0" && stickyStr != "1") {
		s.reply(501, "Syntax error in parameters.")
		return
	}
	if uint32(uid) == storage.BroadcastUID && !s.privileged {
		s.reply(554, "Permission denied.")
		return
	}

	rec := &storage.Record{
		UID:     uint32(uid),
		Service: svc,
		MsgID:   uint32(msgid),
		Sticky:  stickyStr == "1",
		Data:    data,
	}
	if _, err := s.h.notifier.Post(rec); err != nil {
		glog.Errorf("session %s: post %s: %v", s.id, rec, err)
		s.reply(450, "Local error in processing.")
		return
	}
	glog.V(1).Infof("session %s posted %s", s.id, rec)
	s.reply(200, strconv.FormatUint(msgid, 10))
}

func (s *session) cmdClear(args string) {
	if !s.authed {
		s.reply(503, "Bad sequence of commands.")
		return
	}
	f := strings.Split(args, ",")
	if len(f) != 2 {
		s.reply(501, "Syntax error in parameters.")
		return
	}
	uid, err1 := strconv.ParseUint(strings.TrimSpace(f[0]), 10, 32)
	svc, err2 := strconv.ParseInt(strings.TrimSpace(f[1]), 10, 32)
	if err1 != nil || err2 != nil {
		s.reply(501, "Syntax error in parameters.")
		return
	}
	if uint32(uid) == storage.BroadcastUID && !s.privileged {
		s.reply(554, "Permission denied.")
		return
	}
	if _, err := s.h.store.Clear(uint32(uid), proto.ServiceCode(svc)); err != nil {
		glog.Errorf("session %s: clear uid=%d: %v", s.id, uid, err)
		s.reply(450, "Local error in processing.")
		return
	}
	s.h.st.Clears.Add(1)
	s.reply(200, "Notifications cleared.")
}

// cmdClient registers a listener on its behalf, for operators bringing a
// known client online without waiting for it to register itself.
func (s *session) cmdClient(args string) {
	if !s.authed {
		s.reply(503, "Bad sequence of commands.")
		return
	}
	if !s.privileged {
		s.reply(554, "Permission denied.")
		return
	}
	f := strings.Split(args, ",")
	if len(f) < 4 {
		s.reply(501, "Syntax error in parameters.")
		return
	}
	uid, err := strconv.ParseUint(strings.TrimSpace(f[0]), 10, 32)
	if err != nil {
		s.reply(501, "Syntax error in parameters.")
		return
	}
	host := strings.TrimSpace(f[1])
	port, err := strconv.ParseUint(strings.TrimSpace(f[2]), 10, 16)
	if err != nil || port == 0 {
		s.reply(501, "Syntax error in parameters.")
		return
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.FormatUint(port, 10)))
	if err != nil {
		s.reply(501, "Syntax error in parameters.")
		return
	}
	var services []proto.ServiceCode
	for _, sf := range f[3:] {
		n, err := strconv.ParseUint(strings.TrimSpace(sf), 10, 31)
		if err != nil {
			s.reply(501, "Syntax error in parameters.")
			return
		}
		services = append(services, proto.ServiceCode(n))
	}
	s.h.notifier.RegisterClient(uint32(uid), addr, services)
	glog.Infof("session %s registered uid %d at %s", s.id, uid, addr)
	s.reply(200, "Ok.")
}

func (s *session) cmdList(args string) {
	if !s.authed {
		s.reply(503, "Bad sequence of commands.")
		return
	}
	if !s.privileged {
		s.reply(554, "Permission denied.")
		return
	}
	what := strings.ToLower(strings.TrimSpace(args))
	var lines []string
	if what == "notices" || what == "all" {
		recs, err := s.h.store.ListAll()
		if err != nil {
			glog.Errorf("session %s: list notices: %v", s.id, err)
			s.reply(450, "Local error in processing.")
			return
		}
		for _, rec := range recs {
			sticky := 0
			if rec.Sticky {
				sticky = 1
			}
			quoted := strings.ReplaceAll(string(rec.Data), `"`, `""`)
			lines = append(lines, fmt.Sprintf(`%d,%d,%d,%d,"%s"`,
				rec.UID, rec.Service, rec.MsgID, sticky, quoted))
		}
	}
	if what == "clients" || what == "all" {
		for _, ci := range s.h.notifier.Clients() {
			host, port, err := net.SplitHostPort(ci.Addr)
			if err != nil {
				host, port = ci.Addr, "0"
			}
			lines = append(lines, fmt.Sprintf("%d,%s,%s,%s %s",
				ci.UID, host, port, renderServices(ci.Services),
				time.Since(ci.LastHeard).Truncate(time.Second)))
		}
	}
	if what != "notices" && what != "clients" && what != "all" {
		s.reply(501, "Syntax error in parameters.")
		return
	}
	s.reply(101, strconv.Itoa(len(lines)))
	for _, l := range lines {
		s.reply(110, l)
	}
	s.reply(200, "Ok.")
}

func renderServices(services []proto.ServiceCode) string {
	if len(services) == 0 {
		return "-"
	}
	parts := make([]string, len(services))
	for i, svc := range services {
		parts[i] = strconv.FormatInt(int64(svc), 10)
	}
	return strings.Join(parts, "+")
}

func knownService(svc proto.ServiceCode) bool {
	switch svc {
	case proto.ServiceMail, proto.ServiceNews, proto.ServiceTalk:
		return true
	}
	return false
}
