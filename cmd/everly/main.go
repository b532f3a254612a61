// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Command everly runs the Everly backend.
//
// Subcommands:
//
//	everly serve     start the HTTP API (default)
//	everly routes    print every module route
//	everly modules   list modules, dependencies and config keys
//	everly version   print build information
//
// Configuration is layered from defaults, a YAML file (--config or
// CONFIG_PATH) and environment variables. See internal/config.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
