package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/judinizz/ns3-network-simulations/harness"
)

// echo topologies and the preset each starts from
var echoPresets = map[string]string{
	"fanout":      "first",
	"csma":        "second",
	"dual-access": "third",
	"wifi":        "third",
}

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Run UDP echo clients against a server.",
	Long: "`echo --topology fanout --nClients 3 --nPackets 2` gives each client " +
		"its own link to one server. csma puts the server behind a shared segment " +
		"and dual-access places client and server on the stations of two access points.",
	RunE: func(cmd *cobra.Command, args []string) error {
		topology, _ := cmd.Flags().GetString("topology")
		preset, present := echoPresets[topology]
		if !present {
			return fmt.Errorf("%w: %q", harness.ErrUnknownShape, topology)
		}
		sc, err := harness.Preset(preset)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		sc.Packets, _ = flags.GetInt("nPackets")
		switch harness.ShapeFromStr(sc.Shape) {
		case harness.FanOut:
			sc.Leaves, _ = flags.GetInt("nClients")
		case harness.CsmaChain:
			sc.Leaves, _ = flags.GetInt("nCsma")
		case harness.DualAccess:
			sc.Leaves, _ = flags.GetInt("nWifi")
		}
		return runScenario(cmd, sc)
	},
}

func init() {
	rootCmd.AddCommand(echoCmd)
	flags := echoCmd.Flags()
	flags.String("topology", "fanout", "fanout, csma or dual-access")
	flags.Int("nClients", 1, "clients of the fanout topology (at most 5)")
	flags.Int("nPackets", 1, "packets per client (at most 5 for fanout, 20 otherwise)")
	flags.Int("nCsma", 4, "hosts on the shared segment")
	flags.Int("nWifi", 4, "stations per access point (at most 9)")
}
