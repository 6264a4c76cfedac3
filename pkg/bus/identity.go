// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"fmt"
	"os"
	"strings"
)

// Identity names a service on the bus as vendor-device.instance
type Identity struct {
	Vendor   string
	Device   string
	Instance string
}

// DefaultInstance derives an instance name from the host name. Characters
// outside [a-z0-9] are dropped and the result is capped at 16 characters.
func DefaultInstance() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "default"
	}
	host, _, _ = strings.Cut(strings.ToLower(host), ".")

	var b strings.Builder
	for _, r := range host {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 16 {
			break
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}

// String returns the source/target form of the identity
func (id Identity) String() string {
	return fmt.Sprintf("%s-%s.%s", id.Vendor, id.Device, id.Instance)
}
