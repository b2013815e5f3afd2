// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/glovetact/vcrsync/pkg/clock"
	"github.com/glovetact/vcrsync/pkg/console"
	"github.com/glovetact/vcrsync/pkg/device"
	"github.com/glovetact/vcrsync/pkg/haptic"
	"github.com/glovetact/vcrsync/pkg/link"
	"github.com/glovetact/vcrsync/pkg/sched"
	"github.com/glovetact/vcrsync/pkg/store"
	"github.com/glovetact/vcrsync/pkg/therapy"
)

var (
	pairDelayUs    uint32
	pairProfileDir string
	pairQuiet      bool
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Run both glove roles in-process over a simulated transport",
	Long: `Runs a PRIMARY and a SECONDARY node in the same process, joined by an
in-memory loopback transport with a configurable one-way delay. Motor
activity is printed to stderr; an operator console reads from stdin.

Console lines go to the PRIMARY by default. Prefix a line with "2:" to
address the SECONDARY (e.g. "2:SESSION_STATUS"). Type HELP for the menu.`,
	RunE: runPair,
}

func init() {
	pairCmd.Flags().Uint32Var(&pairDelayUs, "delay", 4000, "One-way transport delay (microseconds)")
	pairCmd.Flags().StringVar(&pairProfileDir, "profile-dir", "", "Profile directory (default: in-memory store)")
	pairCmd.Flags().BoolVar(&pairQuiet, "quiet", false, "Suppress motor activity logging")
	rootCmd.AddCommand(pairCmd)
}

// glovePair is the bilateral in-process simulation: two nodes on a shared
// simulated clock, joined by a loopback link. All node access happens on
// the loop goroutine; use do() from other goroutines.
type glovePair struct {
	clk            *clock.SimClock
	la, lb         *link.Loopback
	priDrv, secDrv *sched.SimDriver
	primary        *device.Node
	second         *device.Node
	priCon         *console.Handler
	secCon         *console.Handler
	requests       chan func()
	stop           chan struct{}
}

func newGlovePair(delayUs uint32, profileDir string, quiet bool) (*glovePair, error) {
	// The simulated clock is stepped in 1 ms increments by the loop
	// goroutine, which keeps the loopback delivery deterministic and lets
	// the pair run faster than wall time if the host hiccups.
	clk := clock.NewSimClock(0)
	la, lb := link.NewLoopbackPair(clk, delayUs)

	makeStore := func(suffix string) (store.ProfileStore, error) {
		if profileDir == "" {
			return store.NewMemStore(therapy.DefaultProfile()), nil
		}
		return store.NewFileStore(profileDir+suffix, true)
	}
	priStore, err := makeStore("")
	if err != nil {
		return nil, err
	}
	secStore, err := makeStore("_secondary")
	if err != nil {
		return nil, err
	}

	makeHaptic := func() haptic.Driver {
		if quiet {
			return haptic.NewRecorder(clk)
		}
		return haptic.NewLogDriver(clk)
	}

	g := &glovePair{
		clk:      clk,
		la:       la,
		lb:       lb,
		priDrv:   sched.NewSimDriver(clk),
		secDrv:   sched.NewSimDriver(clk),
		requests: make(chan func(), 8),
		stop:     make(chan struct{}),
	}
	g.primary = device.NewNode(device.Config{
		Role:          store.RolePrimary,
		Clock:         clk,
		OneShotDriver: g.priDrv,
		Link:          la,
		Haptic:        makeHaptic(),
		Store:         priStore,
		OnFault:       func(detail string) { fmt.Fprintf(os.Stderr, "PRIMARY FAULT: %s\n", detail) },
	})
	g.second = device.NewNode(device.Config{
		Role:          store.RoleSecondary,
		Clock:         clk,
		OneShotDriver: g.secDrv,
		Link:          lb,
		Haptic:        makeHaptic(),
		Store:         secStore,
		OnFault:       func(detail string) { fmt.Fprintf(os.Stderr, "SECONDARY FAULT: %s\n", detail) },
	})
	if !g.primary.Begin() || !g.second.Begin() {
		return nil, fmt.Errorf("node startup failed")
	}
	g.priCon = console.New(g.primary, priStore)
	g.secCon = console.New(g.second, secStore)
	return g, nil
}

// run is the main loop. It advances the shared clock 1 ms per host
// millisecond and ticks both nodes. Runs until Close.
func (g *glovePair) run() {
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-g.stop:
			return
		case fn := <-g.requests:
			fn()
		case <-tick.C:
			g.step(1000)
		}
	}
}

func (g *glovePair) step(us uint64) {
	g.clk.Advance(us)
	g.priDrv.Poll()
	g.secDrv.Poll()
	g.primary.Tick()
	g.second.Tick()
}

// do runs fn on the loop goroutine and waits for it.
func (g *glovePair) do(fn func()) {
	done := make(chan struct{})
	g.requests <- func() { fn(); close(done) }
	<-done
}

func (g *glovePair) handle(line string) string {
	var resp string
	g.do(func() {
		if rest, ok := strings.CutPrefix(line, "2:"); ok {
			resp = g.secCon.Handle(rest)
		} else {
			resp = g.priCon.Handle(line)
		}
	})
	return resp
}

func (g *glovePair) close() {
	close(g.stop)
	g.la.Close()
	g.lb.Close()
}

func runPair(cmd *cobra.Command, args []string) error {
	g, err := newGlovePair(pairDelayUs, pairProfileDir, pairQuiet)
	if err != nil {
		return err
	}
	defer g.close()
	go g.run()

	fmt.Printf("vcrsync pair simulator (delay %dus). Type HELP for commands, QUIT to exit.\n", pairDelayUs)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "QUIT") {
			break
		}
		fmt.Println(g.handle(line))
	}
	return scanner.Err()
}
