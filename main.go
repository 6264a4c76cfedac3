// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// rcsbridge - Bus gateway for RCS RC65 serial thermostats
//

package main

import (
	"os"

	"github.com/Thermoquad/rcsbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
