// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package main

import (
	"log"

	"github.com/relabs-tech/scale_monitor/internal/app"
)

func main() {
	log.Println("starting scale-monitor (mock source)")

	if err := app.RunSimConsole(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
