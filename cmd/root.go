// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL string

	debugMode bool
)

var rootCmd = &cobra.Command{
	Use:   "vcrsync",
	Short: "Bilateral haptic glove controller",
	Long: `Vcrsync drives a pair of vibrotactile therapy gloves.

The two gloves run the same firmware; the PRIMARY schedules stimulation and
streams timed buzz commands to the SECONDARY over a serial or WebSocket
transport, keeping both hands on a shared microsecond timeline.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path

Use "pair" to run both roles in-process against a simulated transport.`,
	Version: "1.2.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Device config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug mode (writable profile store)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
