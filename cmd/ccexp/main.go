// Command ccexp runs congestion-control experiments on simulated topologies
// and prints their goodput report.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/judinizz/ns3-network-simulations/internal/logger"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.MainLog.Error(err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
