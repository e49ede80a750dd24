// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Phasecut - Two-Channel AC Phase-Cut Dimmer
//
// Runs the dimmer responder against simulated mains and provides the host
// tools that drive a dimmer over its serial command protocol.

package main

import (
	"os"

	"github.com/Thermoquad/phasecut/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
