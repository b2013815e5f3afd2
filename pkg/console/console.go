// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

// Package console implements the newline-delimited ASCII operator menu.
// Every request yields exactly one "OK ..." or "ERR <code> <detail>" line.
package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/glovetact/vcrsync/pkg/device"
	"github.com/glovetact/vcrsync/pkg/state"
	"github.com/glovetact/vcrsync/pkg/store"
	"github.com/glovetact/vcrsync/pkg/therapy"
)

var helpText = strings.Join([]string{
	"INFO", "BATTERY", "PING", "PROFILE_LIST", "PROFILE_LOAD <id>",
	"PROFILE_GET", "PROFILE_CUSTOM <key> <value> ...", "SESSION_START",
	"SESSION_PAUSE", "SESSION_RESUME", "SESSION_STOP", "SESSION_STATUS",
	"PARAM_SET <key> <value>", "CALIBRATE_START",
	"CALIBRATE_BUZZ <finger> <amp>", "CALIBRATE_STOP", "HELP", "RESTART",
}, " | ")

// Handler dispatches one command line against a node.
type Handler struct {
	node  *device.Node
	profs store.ProfileStore
}

// New returns a Handler for the given node and profile store.
func New(node *device.Node, profs store.ProfileStore) *Handler {
	return &Handler{node: node, profs: profs}
}

// Handle executes one command line and returns the single response line
// (without trailing newline).
func (h *Handler) Handle(line string) string {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return errLine("EMPTY", "no command")
	}
	cmd := strings.ToUpper(fields[0])
	args := fields[1:]

	switch cmd {
	case "INFO":
		return ok(h.node.Info())
	case "BATTERY":
		return ok(fmt.Sprintf("%dmV", h.node.BatteryMillivolts()))
	case "PING":
		return ok("PONG")
	case "PROFILE_LIST":
		return h.profileList()
	case "PROFILE_LOAD":
		return h.profileLoad(args)
	case "PROFILE_GET":
		return h.profileGet()
	case "PROFILE_CUSTOM":
		return h.profileCustom(args)
	case "SESSION_START":
		return result(h.node.StartSession(), "session started")
	case "SESSION_PAUSE":
		return result(h.node.PauseSession(), "paused")
	case "SESSION_RESUME":
		return result(h.node.ResumeSession(), "resumed")
	case "SESSION_STOP":
		return result(h.node.StopSession(), "stopping")
	case "SESSION_STATUS":
		return ok(h.statusLine())
	case "PARAM_SET":
		if len(args) != 2 {
			return errLine("USAGE", "PARAM_SET <key> <value>")
		}
		return result(h.node.SetParam(args[0], args[1]), fmt.Sprintf("%s=%s", args[0], args[1]))
	case "CALIBRATE_START":
		return result(h.node.CalibrateStart(), "calibrating")
	case "CALIBRATE_BUZZ":
		return h.calibrateBuzz(args)
	case "CALIBRATE_STOP":
		return result(h.node.CalibrateStop(), "calibration done")
	case "HELP":
		return ok(helpText)
	case "RESTART":
		return result(h.node.Restart(), "restarted")
	}
	return errLine("UNKNOWN", cmd)
}

func (h *Handler) profileList() string {
	list, err := h.profs.List()
	if err != nil {
		return errResult(err)
	}
	parts := make([]string, 0, len(list))
	for _, s := range list {
		parts = append(parts, fmt.Sprintf("%d:%s", s.ID, s.Name))
	}
	return ok(strings.Join(parts, ","))
}

func (h *Handler) profileLoad(args []string) string {
	if len(args) != 1 {
		return errLine("USAGE", "PROFILE_LOAD <id>")
	}
	id, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		return errLine("USAGE", "bad profile id")
	}
	if err := h.node.LoadProfile(uint8(id)); err != nil {
		return errResult(err)
	}
	return ok(fmt.Sprintf("profile %d loaded", id))
}

func (h *Handler) profileGet() string {
	p, loaded := h.node.Profile()
	if !loaded {
		return errLine("NOT_FOUND", "no profile loaded")
	}
	return ok(fmt.Sprintf("id=%d name=%s pattern=%s tempo_hz=%g jitter_pct=%d amplitude=%d duration_ms=%d enabled_mask=0b%05b session_minutes=%d",
		p.ID, p.Name, p.Pattern, p.TempoHz, p.JitterPct, p.Amplitude, p.DurationMs, p.EnabledMask, p.SessionMinutes))
}

func (h *Handler) profileCustom(args []string) string {
	if len(args) == 0 || len(args)%2 != 0 {
		return errLine("USAGE", "PROFILE_CUSTOM <key> <value> ...")
	}
	p := therapy.DefaultProfile()
	p.Name = "custom"
	for i := 0; i < len(args); i += 2 {
		if err := p.ApplyParam(args[i], args[i+1]); err != nil {
			return errResult(err)
		}
	}
	if err := h.node.SetCustomProfile(p); err != nil {
		return errResult(err)
	}
	return ok("custom profile active")
}

func (h *Handler) calibrateBuzz(args []string) string {
	if len(args) != 2 {
		return errLine("USAGE", "CALIBRATE_BUZZ <finger> <amp>")
	}
	finger, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		return errLine("USAGE", "bad finger")
	}
	amp, err := strconv.ParseUint(args[1], 10, 8)
	if err != nil {
		return errLine("USAGE", "bad amplitude")
	}
	if err := h.node.CalibrateBuzz(uint8(finger), uint8(amp)); err != nil {
		return errResult(err)
	}
	return ok(fmt.Sprintf("buzz finger=%d amp=%d", finger, amp))
}

func (h *Handler) statusLine() string {
	st := h.node.Status()
	return fmt.Sprintf("state=%s profile=%d:%s emitted=%d fired=%d dropped_local=%d dropped_remote=%d suppressed=%d late=%d order=%d buffer=%d offset_us=%d locked=%t peer_lost=%t connected=%t last_fault=%q",
		st.State, st.ProfileID, st.ProfileName, st.EventsEmitted, st.Fired,
		st.DroppedLocal, st.DroppedRemote, st.Suppressed, st.LateDrops, st.OrderDrops, st.BufferDrops,
		st.OffsetMicros, st.OffsetLocked, st.PeerLost, st.Connected, st.LastFault)
}

func ok(payload string) string {
	if payload == "" {
		return "OK"
	}
	return "OK " + payload
}

func errLine(code, detail string) string {
	return fmt.Sprintf("ERR %s %s", code, detail)
}

func result(err error, okPayload string) string {
	if err != nil {
		return errResult(err)
	}
	return ok(okPayload)
}

// errResult maps error values onto the wire codes.
func errResult(err error) string {
	var de *device.Error
	switch {
	case errors.As(err, &de):
		return errLine(de.Kind.String(), de.Detail)
	case errors.Is(err, device.ErrWrongState), errors.Is(err, state.ErrNoTransition):
		return errLine("WRONG_STATE", err.Error())
	case errors.Is(err, therapy.ErrProfileInvalid):
		return errLine("CONFIG_INVALID", err.Error())
	case errors.Is(err, store.ErrProfileNotFound):
		return errLine("NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrStorageIO):
		return errLine("STORAGE_IO_ERROR", err.Error())
	}
	return errLine("INTERNAL", err.Error())
}
