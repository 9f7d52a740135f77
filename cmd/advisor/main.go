// Package main is the entry point for the cloud cost advisor.
// The advisor ingests compute utilization, scores instances with a
// trained classifier and serves downsizing recommendations over HTTP.
package main

import (
	"os"

	"github.com/softcane/cloud-cost-advisor/cmd/advisor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
