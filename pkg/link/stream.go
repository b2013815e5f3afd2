// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package link

import (
	"io"
	"sync"

	"github.com/glovetact/vcrsync/pkg/syncwire"
)

// StreamLink adapts any byte stream to the Link interface. A reader
// goroutine splits the stream into EOT frames; Pump hands them to the
// handler on the main loop, keeping the run-to-completion model intact.
type StreamLink struct {
	conn    io.ReadWriteCloser
	handler ReceiveHandler

	mu        sync.Mutex
	rx        [][]byte
	connected bool
	closed    bool
}

// NewStreamLink starts reading from conn and returns the link.
func NewStreamLink(conn io.ReadWriteCloser) *StreamLink {
	l := &StreamLink{conn: conn, connected: true}
	go l.readLoop()
	return l
}

func (l *StreamLink) readLoop() {
	var framer syncwire.Framer
	buf := make([]byte, 512)
	for {
		n, err := l.conn.Read(buf)
		if n > 0 {
			frames := framer.Push(buf[:n])
			if len(frames) > 0 {
				l.mu.Lock()
				l.rx = append(l.rx, frames...)
				l.mu.Unlock()
			}
		}
		if err != nil {
			l.mu.Lock()
			l.connected = false
			l.mu.Unlock()
			return
		}
	}
}

func (l *StreamLink) Send(frame []byte) SendResult {
	l.mu.Lock()
	up := l.connected && !l.closed
	l.mu.Unlock()
	if !up {
		return SendDisconnected
	}
	if _, err := l.conn.Write(frame); err != nil {
		l.mu.Lock()
		l.connected = false
		l.mu.Unlock()
		return SendDisconnected
	}
	return SendOk
}

func (l *StreamLink) SetReceiveHandler(h ReceiveHandler) { l.handler = h }

func (l *StreamLink) Pump() {
	l.mu.Lock()
	frames := l.rx
	l.rx = nil
	l.mu.Unlock()
	if l.handler == nil {
		return
	}
	for _, f := range frames {
		l.handler(f)
	}
}

func (l *StreamLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected && !l.closed
}

func (l *StreamLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.connected = false
	l.mu.Unlock()
	return l.conn.Close()
}
