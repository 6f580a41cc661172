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

package util

import (
	"sync"
)

// CMap is a concurrent map sharded into partitions by murmur3 hash of the
// key, so operations on different keys mostly proceed without contention.
type CMap struct {
	partitions      []*MapPartition
	partitionsCount uint32
}

type MapPartition struct {
	sync.RWMutex
	data map[string]interface{}
}

func NewCMap(partitionsCount uint32) *CMap {
	m := new(CMap)
	m.partitionsCount = partitionsCount
	m.partitions = make([]*MapPartition, partitionsCount)
	for i := 0; i < int(partitionsCount); i++ {
		m.partitions[i] = &MapPartition{data: make(map[string]interface{})}
	}
	return m
}

func (m *CMap) getPartition(key string) *MapPartition {
	partitionNo := Murmur3Hash([]byte(key)) % m.partitionsCount
	return m.partitions[partitionNo]
}

func (m *CMap) Put(key string, value interface{}) {
	partition := m.getPartition(key)
	partition.Lock()
	partition.data[key] = value
	partition.Unlock()
}

func (m *CMap) Get(key string) (interface{}, bool) {
	partition := m.getPartition(key)
	partition.RLock()
	val, present := partition.data[key]
	partition.RUnlock()
	return val, present
}

func (m *CMap) Delete(key string) {
	partition := m.getPartition(key)
	partition.Lock()
	delete(partition.data, key)
	partition.Unlock()
}

func (m *CMap) PutIfAbsent(key string, value interface{}) (interface{}, bool) {
	partition := m.getPartition(key)
	partition.Lock() //can't use read lock and upgrade atomically
	curValue, present := partition.data[key]
	if !present {
		partition.data[key] = value
	}
	partition.Unlock()
	return curValue, !present
}

// Range calls f for every entry; f returning false stops the walk. Entries
// added or removed concurrently may or may not be visited.
func (m *CMap) Range(f func(key string, value interface{}) bool) {
	for i := 0; i < int(m.partitionsCount); i++ {
		p := m.partitions[i]
		p.RLock()
		keys := make([]string, 0, len(p.data))
		vals := make([]interface{}, 0, len(p.data))
		for k, v := range p.data {
			keys = append(keys, k)
			vals = append(vals, v)
		}
		p.RUnlock()
		for j := range keys {
			if !f(keys[j], vals[j]) {
				return
			}
		}
	}
}

func (m *CMap) Count() int {
	n := 0
	for i := 0; i < int(m.partitionsCount); i++ {
		p := m.partitions[i]
		p.RLock()
		n += len(p.data)
		p.RUnlock()
	}
	return n
}
