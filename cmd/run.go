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
)

var runRole string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one glove node over a real transport",
	Long: `Runs a single node. The peer link comes from --port (serial) or --url
(WebSocket); role, profile directory and the rest come from --config or
flags. The operator console reads newline commands from stdin and prints
one OK/ERR line per command.`,
	RunE: runNode,
}

func init() {
	runCmd.Flags().StringVar(&runRole, "role", "", "Node role: primary or secondary (overrides config)")
	rootCmd.AddCommand(runCmd)
}

func loadRunConfig(cmd *cobra.Command) (store.DeviceConfig, error) {
	cfg := store.DefaultDeviceConfig()
	if configPath != "" {
		var err error
		cfg, err = store.LoadDeviceConfig(configPath)
		if err != nil {
			return cfg, err
		}
	}
	// Flags override the file.
	if portName != "" {
		cfg.SerialPort = portName
		cfg.PeerURL = ""
	}
	if wsURL != "" {
		cfg.PeerURL = wsURL
		cfg.SerialPort = ""
	}
	if cmd.Flags().Changed("baud") || cfg.BaudRate == 0 {
		cfg.BaudRate = baudRate
	}
	if runRole != "" {
		cfg.Role = runRole
	}
	if debugMode {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func openLink(cfg *store.DeviceConfig) (link.Link, string, error) {
	switch {
	case cfg.SerialPort != "":
		l, err := link.OpenSerial(cfg.SerialPort, cfg.BaudRate)
		if err != nil {
			return nil, "", err
		}
		return l, fmt.Sprintf("serial %s @ %d baud", cfg.SerialPort, cfg.BaudRate), nil
	case cfg.PeerURL != "":
		l, err := link.OpenWebSocket(cfg.PeerURL)
		if err != nil {
			return nil, "", err
		}
		return l, cfg.PeerURL, nil
	}
	return nil, "", fmt.Errorf("no transport: set --port or --url")
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	role, err := store.ParseRole(cfg.Role)
	if err != nil {
		return err
	}
	lnk, connInfo, err := openLink(&cfg)
	if err != nil {
		return err
	}
	defer lnk.Close()

	profs, err := store.NewFileStore(cfg.ProfileDir, cfg.Debug)
	if err != nil {
		return err
	}

	clk := clock.NewHostClock()
	node := device.NewNode(device.Config{
		Role:          role,
		Clock:         clk,
		OneShotDriver: sched.NewHostDriver(),
		Link:          lnk,
		Haptic:        haptic.NewLogDriver(clk),
		Store:         profs,
		OnFault:       func(detail string) { fmt.Fprintf(os.Stderr, "FAULT: %s\n", detail) },
	})
	if !node.Begin() {
		return fmt.Errorf("node startup failed")
	}
	if cfg.ActiveProfile != 0 {
		if err := node.LoadProfile(cfg.ActiveProfile); err != nil {
			fmt.Fprintf(os.Stderr, "profile %d: %v\n", cfg.ActiveProfile, err)
		}
	}

	fmt.Printf("vcrsync %s on %s. Type HELP for commands, QUIT to exit.\n",
		strings.ToUpper(cfg.Role), connInfo)

	handler := console.New(node, profs)
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// Single-threaded main loop: the node and the console both run here.
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			node.Tick()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.EqualFold(line, "QUIT") {
				return nil
			}
			fmt.Println(handler.Handle(line))
		}
	}
}
