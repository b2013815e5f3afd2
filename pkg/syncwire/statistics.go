// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package syncwire

import "fmt"

// Stats tracks message counters for one link endpoint.
type Stats struct {
	Sent        uint32
	Received    uint32
	ParseErrors uint32
	LateDrops   uint32
	PingLosses  uint32
}

// CountDecode updates the receive counters for one decode attempt.
func (s *Stats) CountDecode(err error) {
	if err != nil {
		s.ParseErrors++
		return
	}
	s.Received++
}

// String renders a one-line summary for status output.
func (s *Stats) String() string {
	return fmt.Sprintf("tx=%d rx=%d parse_err=%d late=%d ping_loss=%d",
		s.Sent, s.Received, s.ParseErrors, s.LateDrops, s.PingLosses)
}
