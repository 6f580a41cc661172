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
Package db implements the sticky notification store on bbolt. One bucket
holds all records; keys order by (uid, service, sticky, id) so pending
lookups are prefix scans. bbolt's single-writer transactions provide the
per-key serialization the store contract requires.
*/
package db

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/golang/glog"
	uuid "github.com/satori/go.uuid"
	bolt "go.etcd.io/bbolt"

	"dartnotify/cmd/notifyserv/storage"
	"dartnotify/pkg/proto"
	"dartnotify/pkg/util"
)

var kBucketNotices = []byte("notices")

const kDefaultOpenTimeout = 5 * time.Second

type Config struct {
	Path        string
	OpenTimeout util.Duration
}

var DBConfig = Config{
	Path:        "notify.db",
	OpenTimeout: util.Duration{Duration: kDefaultOpenTimeout},
}

func (cfg *Config) SetDefaultIfNotDefined() {
	if len(cfg.Path) == 0 {
		cfg.Path = DBConfig.Path
	}
	if cfg.OpenTimeout.Duration == 0 {
		cfg.OpenTimeout.Duration = kDefaultOpenTimeout
	}
}

type DB struct {
	db *bolt.DB
}

var _ storage.IStore = (*DB)(nil)

// OpenDB opens or creates the notice database at cfg.Path.
func OpenDB(cfg Config) (*DB, error) {
	cfg.SetDefaultIfNotDefined()
	bdb, err := bolt.Open(cfg.Path, 0600, &bolt.Options{Timeout: cfg.OpenTimeout.Duration})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", cfg.Path, err)
	}
	err = bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(kBucketNotices)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("db: init %s: %w", cfg.Path, err)
	}
	glog.Infof("notice database open at %s", cfg.Path)
	return &DB{db: bdb}, nil
}

func (s *DB) Close() error {
	return s.db.Close()
}

func (s *DB) Put(rec *storage.Record) (storage.RecordID, error) {
	if rec.Service < 0 {
		return storage.RecordID{}, ErrBadRecordKey
	}
	r := *rec
	if r.ID == (storage.RecordID{}) {
		r.ID = uuid.NewV4()
	}
	if r.CreationTime.IsZero() {
		r.CreationTime = time.Now()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kBucketNotices).Put(encodeKey(&r), encodeValue(&r))
	})
	if err != nil {
		return storage.RecordID{}, err
	}
	glog.V(1).Infof("stored %s", &r)
	return r.ID, nil
}

// GetPending returns pending records for (uid, services), oldest first,
// including broadcast records. Non-sticky records owned by uid are removed
// in the same transaction that returns them; broadcast and sticky rows
// stay until cleared.
func (s *DB) GetPending(uid uint32, services []proto.ServiceCode) ([]*storage.Record, error) {
	var out []*storage.Record
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kBucketNotices)

		scan := func(scanUID uint32, consume bool) error {
			c := b.Cursor()
			prefix := uidPrefix(scanUID)
			for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
				rec, err := decodeRecord(k, v)
				if err != nil {
					glog.Warningf("skipping undecodable record: %v", err)
					continue
				}
				if !storage.MatchService(rec.Service, services) {
					continue
				}
				out = append(out, rec)
				if consume && !rec.Sticky {
					if err := c.Delete(); err != nil {
						return err
					}
				}
			}
			return nil
		}

		if err := scan(uid, true); err != nil {
			return err
		}
		if uid != storage.BroadcastUID {
			return scan(storage.BroadcastUID, false)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreationTime.Before(out[j].CreationTime)
	})
	return out, nil
}

func (s *DB) Clear(uid uint32, service proto.ServiceCode) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kBucketNotices)
		c := b.Cursor()
		prefix := uidPrefix(uid)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			rec, err := decodeRecord(k, v)
			if err != nil {
				glog.Warningf("clearing undecodable record: %v", err)
			} else if service >= 0 && rec.Service != service {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		glog.V(1).Infof("cleared %d notices for uid=%d svc=%s", removed, uid, service)
	}
	return removed, nil
}

func (s *DB) ListAll() ([]*storage.Record, error) {
	var out []*storage.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(kBucketNotices).ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(k, v)
			if err != nil {
				glog.Warningf("skipping undecodable record: %v", err)
				return nil
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
