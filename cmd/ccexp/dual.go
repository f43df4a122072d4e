package main

import (
	"github.com/spf13/cobra"

	"github.com/judinizz/ns3-network-simulations/harness"
)

var dualCmd = &cobra.Command{
	Use:   "dual",
	Short: "Run two bulk flows to destinations with different access delays.",
	Long: "`dual --delay1 10ms --delay2 50ms` sends one bulk TCP flow to each of two " +
		"destinations that share a bottleneck, so the effect of round-trip time " +
		"on the share each flow gets can be compared.",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := harness.Preset("part2")
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		for name, dst := range map[string]*string{
			"dataRate":   &sc.DataRate,
			"delay":      &sc.Delay,
			"accessRate": &sc.AccessRate,
			"delay1":     &sc.Delay1,
			"delay2":     &sc.Delay2,
		} {
			if flags.Changed(name) {
				*dst, _ = flags.GetString(name)
			}
		}
		if flags.Changed("errorRate") {
			sc.ErrorRate, _ = flags.GetFloat64("errorRate")
		}
		return runScenario(cmd, sc)
	},
}

func init() {
	rootCmd.AddCommand(dualCmd)
	flags := dualCmd.Flags()
	flags.String("dataRate", "2Mbps", "bottleneck data rate")
	flags.String("delay", "20ms", "bottleneck delay")
	flags.String("accessRate", "10Mbps", "data rate of both destination links")
	flags.String("delay1", "10ms", "delay of the first destination link")
	flags.String("delay2", "50ms", "delay of the second destination link")
	flags.Float64("errorRate", 0.0, "packet error rate on the bottleneck")
}
