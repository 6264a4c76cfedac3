// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build windows

package cmd

import "errors"

var errNoBackground = errors.New("running in the background is not supported on this platform, use --no-background")

func daemonize() error {
	return errNoBackground
}
