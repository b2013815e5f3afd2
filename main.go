// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package main

import (
	"os"

	"github.com/glovetact/vcrsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
