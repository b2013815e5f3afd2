// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package syncwire

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/glovetact/vcrsync/pkg/clock"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// buildRandomMessage creates a well-formed message with random fields and
// a random number of kv pairs using safe token characters.
func buildRandomMessage(rng *rand.Rand) *Message {
	types := []Type{TypePing, TypePong, TypeExecuteBuzz, TypeExecuteStop, TypeSessionStart, TypeSessionStop, TypeAck}
	m := New(types[rng.Intn(len(types))], rng.Uint32(), clock.Micros(rng.Uint64()))

	const alphabet = "abcdefghijklmnopqrstuvwxyz_0123456789"
	numPairs := rng.Intn(4)
	for i := 0; i < numPairs; i++ {
		key := make([]byte, rng.Intn(6)+1)
		key[0] = alphabet[rng.Intn(26)] // keys start with a letter
		for j := 1; j < len(key); j++ {
			key[j] = alphabet[rng.Intn(len(alphabet))]
		}
		m.SetUint(string(key), rng.Uint64()%100000)
	}
	return m
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecode_RandomBytes feeds random bytes to the decoder
// and verifies it doesn't crash or panic
func TestFuzzDecode_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		length := rng.Intn(300) + 1
		data := make([]byte, length)
		rng.Read(data)

		// Decode should reject or accept, never panic
		Decode(data)
	}
}

// TestFuzzDecode_RandomASCII feeds random printable-ASCII payloads with
// structural separators sprinkled in
func TestFuzzDecode_RandomASCII(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		length := rng.Intn(MaxPayloadSize) + 1
		data := make([]byte, length)
		for j := range data {
			switch rng.Intn(6) {
			case 0:
				data[j] = FieldSep
			case 1:
				data[j] = PairSep
			default:
				data[j] = byte(rng.Intn(95) + 32)
			}
		}

		m, err := Decode(data)
		if err == nil && m == nil {
			t.Errorf("Round %d: nil message without error", i)
		}
	}
}

// TestFuzzRoundTrip_RandomMessages encodes random well-formed messages and
// verifies decode returns an identical message
func TestFuzzRoundTrip_RandomMessages(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		m := buildRandomMessage(rng)
		data, err := Encode(m)
		if err != nil {
			t.Errorf("Round %d: unexpected encode error: %v", i, err)
			continue
		}
		if data[len(data)-1] != EOT {
			t.Errorf("Round %d: missing EOT terminator", i)
			continue
		}
		got, err := Decode(data[:len(data)-1])
		if err != nil {
			t.Errorf("Round %d: unexpected decode error: %v (payload %q)", i, err, data)
			continue
		}
		if !got.Equal(m) {
			t.Errorf("Round %d: round trip mismatch: %+v != %+v", i, got, m)
		}
	}
}

// TestFuzzDecode_CorruptedPayloads encodes a valid message, corrupts one
// byte, and verifies Decode either rejects it or returns a complete message
func TestFuzzDecode_CorruptedPayloads(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		m := buildRandomMessage(rng)
		data, err := Encode(m)
		if err != nil {
			t.Fatalf("Round %d: encode error: %v", i, err)
		}
		payload := data[:len(data)-1]

		if len(payload) > 0 {
			idx := rng.Intn(len(payload))
			payload[idx] ^= byte(rng.Intn(255) + 1)
		}

		// Should not panic; a surviving parse must still be structurally sound
		got, err := Decode(payload)
		if err == nil {
			if got == nil {
				t.Errorf("Round %d: nil message without error", i)
			} else if got.Type.String() == "" {
				t.Errorf("Round %d: decoded message with invalid type", i)
			}
		}
	}
}

// ============================================================
// Framer Fuzz Tests
// ============================================================

// TestFuzzFramer_RandomChunking streams encoded messages through the framer
// in random-size chunks and verifies every frame is recovered intact
func TestFuzzFramer_RandomChunking(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		var f Framer

		numMsgs := rng.Intn(5) + 1
		var stream []byte
		var want []*Message
		for j := 0; j < numMsgs; j++ {
			m := buildRandomMessage(rng)
			data, err := Encode(m)
			if err != nil {
				t.Fatalf("Round %d: encode error: %v", i, err)
			}
			stream = append(stream, data...)
			want = append(want, m)
		}

		var frames [][]byte
		for len(stream) > 0 {
			n := rng.Intn(len(stream)) + 1
			frames = append(frames, f.Push(stream[:n])...)
			stream = stream[n:]
		}

		if len(frames) != len(want) {
			t.Errorf("Round %d: got %d frames, want %d", i, len(frames), len(want))
			continue
		}
		for j, frame := range frames {
			got, err := Decode(frame)
			if err != nil {
				t.Errorf("Round %d: frame %d decode error: %v", i, j, err)
				continue
			}
			if !got.Equal(want[j]) {
				t.Errorf("Round %d: frame %d mismatch", i, j)
			}
		}
	}
}

// TestFuzzFramer_RandomGarbage interleaves garbage between valid frames and
// verifies the framer recovers valid frames after each EOT
func TestFuzzFramer_RandomGarbage(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		var f Framer

		// Garbage burst terminated by EOT, then a valid message
		garbage := make([]byte, rng.Intn(100)+1)
		rng.Read(garbage)
		for j := range garbage {
			if garbage[j] == EOT {
				garbage[j] = 0x05
			}
		}
		f.Push(garbage)
		f.Push([]byte{EOT})

		m := buildRandomMessage(rng)
		data, err := Encode(m)
		if err != nil {
			t.Fatalf("Round %d: encode error: %v", i, err)
		}
		frames := f.Push(data)
		if len(frames) != 1 {
			t.Errorf("Round %d: expected 1 frame after garbage, got %d", i, len(frames))
			continue
		}
		if got, err := Decode(frames[0]); err != nil || !got.Equal(m) {
			t.Errorf("Round %d: recovered frame mismatch (err=%v)", i, err)
		}
	}
}
