// Copyright 2024 Canonical Ltd.
// See LICENSE file for licensing details.

// The content-cache-backends-config charm: validates a set of virtual
// host configuration options and relays them to a related content-cache
// charm over the cache-config integration.
package main

import (
	"fmt"
	"os"

	"github.com/juju/cmd/v4"

	"github.com/canonical/content-cache-backends-config-operator/internal/dispatch"
)

func main() {
	ctx, err := cmd.DefaultContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	os.Exit(cmd.Main(dispatch.NewDispatchCommand(), ctx, os.Args[1:]))
}
