// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package syncwire

import (
	"strconv"

	"github.com/glovetact/vcrsync/pkg/clock"
)

type pair struct {
	key   string
	value string
}

// Message is one sync protocol command. kv pairs keep insertion order, which
// the encoder reproduces on the wire. Messages are value types: received
// messages are fully copied out of the transport buffer during decoding.
type Message struct {
	Type      Type
	Seq       uint32
	Timestamp clock.Micros
	kv        []pair
}

// New creates a message of the given type, sequence and sender timestamp.
func New(t Type, seq uint32, ts clock.Micros) *Message {
	return &Message{Type: t, Seq: seq, Timestamp: ts}
}

// Set stores a key/value pair, updating in place if the key exists.
func (m *Message) Set(key, value string) {
	for i := range m.kv {
		if m.kv[i].key == key {
			m.kv[i].value = value
			return
		}
	}
	m.kv = append(m.kv, pair{key, value})
}

// SetInt stores a signed decimal value.
func (m *Message) SetInt(key string, v int64) {
	m.Set(key, strconv.FormatInt(v, 10))
}

// SetUint stores an unsigned decimal value.
func (m *Message) SetUint(key string, v uint64) {
	m.Set(key, strconv.FormatUint(v, 10))
}

// Get returns the value for key and whether it was present.
func (m *Message) Get(key string) (string, bool) {
	for i := range m.kv {
		if m.kv[i].key == key {
			return m.kv[i].value, true
		}
	}
	return "", false
}

// GetInt returns the value for key parsed as int64, or def when absent or
// unparseable.
func (m *Message) GetInt(key string, def int64) int64 {
	s, ok := m.Get(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}

// GetUint returns the value for key parsed as uint64, or def when absent or
// unparseable.
func (m *Message) GetUint(key string, def uint64) uint64 {
	s, ok := m.Get(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}

// Has reports whether key is present.
func (m *Message) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// PairCount returns the number of kv pairs.
func (m *Message) PairCount() int { return len(m.kv) }

// Equal reports full equality including kv order.
func (m *Message) Equal(o *Message) bool {
	if m.Type != o.Type || m.Seq != o.Seq || m.Timestamp != o.Timestamp || len(m.kv) != len(o.kv) {
		return false
	}
	for i := range m.kv {
		if m.kv[i] != o.kv[i] {
			return false
		}
	}
	return true
}
