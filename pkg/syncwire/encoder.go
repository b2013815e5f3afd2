// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package syncwire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Encoding errors.
var (
	ErrOverlong     = errors.New("syncwire: payload exceeds 240 bytes")
	ErrBadToken     = errors.New("syncwire: key or value contains reserved byte")
	ErrUnknownType  = errors.New("syncwire: unknown message type")
)

// tokenValid reports whether s is printable ASCII free of the reserved
// separator and framing bytes.
func tokenValid(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c > 0x7E || c == FieldSep || c == PairSep || c == EOT {
			return false
		}
	}
	return true
}

// Encode serializes m to wire bytes, including the trailing EOT. Fields are
// emitted in the exact order type, seq, ts, then kv pairs in insertion order.
func Encode(m *Message) ([]byte, error) {
	name, ok := typeNames[m.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, m.Type)
	}

	var buf bytes.Buffer
	buf.WriteString(name)
	buf.WriteByte(FieldSep)
	buf.WriteString(strconv.FormatUint(uint64(m.Seq), 10))
	buf.WriteByte(FieldSep)
	buf.WriteString(strconv.FormatUint(uint64(m.Timestamp), 10))

	for i := range m.kv {
		if !tokenValid(m.kv[i].key) || !tokenValid(m.kv[i].value) {
			return nil, fmt.Errorf("%w: %q=%q", ErrBadToken, m.kv[i].key, m.kv[i].value)
		}
		if i == 0 {
			buf.WriteByte(FieldSep)
		} else {
			buf.WriteByte(PairSep)
		}
		buf.WriteString(m.kv[i].key)
		buf.WriteByte(PairSep)
		buf.WriteString(m.kv[i].value)
	}

	if buf.Len() > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrOverlong, buf.Len())
	}

	buf.WriteByte(EOT)
	return buf.Bytes(), nil
}
