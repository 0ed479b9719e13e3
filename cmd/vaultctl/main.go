// Command vaultctl is the operator CLI: subscription overrides and migrations.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
