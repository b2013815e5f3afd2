// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package syncwire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/glovetact/vcrsync/pkg/clock"
)

// ErrParse covers every malformed-input condition. Callers match with
// errors.Is; the wrapped detail names the offending field.
var ErrParse = errors.New("syncwire: parse error")

// decimalValid rejects empty strings, non-digits, and leading zeros (except
// the literal "0"), the only decimal spelling the encoder produces.
func decimalValid(s string) bool {
	if len(s) == 0 {
		return false
	}
	if len(s) > 1 && s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Decode parses one payload (without the trailing EOT) into a Message. On
// any malformation it returns an error wrapping ErrParse and never a partial
// message.
func Decode(data []byte) (*Message, error) {
	if len(data) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload %d bytes", ErrParse, len(data))
	}
	for _, b := range data {
		if b == EOT {
			return nil, fmt.Errorf("%w: embedded EOT", ErrParse)
		}
	}

	fields := strings.SplitN(string(data), string(rune(FieldSep)), 4)
	if len(fields) < 3 {
		return nil, fmt.Errorf("%w: %d fields", ErrParse, len(fields))
	}

	t, ok := ParseType(fields[0])
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrParse, fields[0])
	}

	if !decimalValid(fields[1]) {
		return nil, fmt.Errorf("%w: seq %q", ErrParse, fields[1])
	}
	seq, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: seq %q", ErrParse, fields[1])
	}

	if !decimalValid(fields[2]) {
		return nil, fmt.Errorf("%w: ts %q", ErrParse, fields[2])
	}
	ts, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: ts %q", ErrParse, fields[2])
	}

	m := New(t, uint32(seq), clock.Micros(ts))

	if len(fields) == 4 {
		tokens := strings.Split(fields[3], string(rune(PairSep)))
		if len(tokens)%2 != 0 {
			return nil, fmt.Errorf("%w: odd kv token count %d", ErrParse, len(tokens))
		}
		for i := 0; i < len(tokens); i += 2 {
			if !tokenValid(tokens[i]) || !tokenValid(tokens[i+1]) {
				return nil, fmt.Errorf("%w: bad kv token at %d", ErrParse, i)
			}
			m.kv = append(m.kv, pair{tokens[i], tokens[i+1]})
		}
	}

	return m, nil
}
