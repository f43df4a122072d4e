package main

import (
	"github.com/spf13/cobra"

	"github.com/judinizz/ns3-network-simulations/harness"
)

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Run bulk TCP transfers through a bottleneck.",
	Long: "`bulk` sends unbounded TCP transfers from one source through a " +
		"bottleneck link and reports goodput. --preset part1a uses a four node " +
		"chain with per-flow lines; part1b and part1c use a dumbbell with an " +
		"aggregate line tagged by delay or by error rate.",
	RunE: func(cmd *cobra.Command, args []string) error {
		preset, _ := cmd.Flags().GetString("preset")
		sc, err := harness.Preset(preset)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("dataRate") {
			sc.DataRate, _ = flags.GetString("dataRate")
		}
		if flags.Changed("delay") {
			sc.Delay, _ = flags.GetString("delay")
		}
		if flags.Changed("errorRate") {
			sc.ErrorRate, _ = flags.GetFloat64("errorRate")
		}
		if flags.Changed("nFlows") {
			sc.NFlows, _ = flags.GetInt("nFlows")
		}
		if flags.Changed("shape") {
			sc.Shape, _ = flags.GetString("shape")
		}
		if flags.Changed("report") {
			sc.Report, _ = flags.GetString("report")
		}
		if flags.Changed("maxBytes") {
			sc.MaxBytes, _ = flags.GetUint64("maxBytes")
		}
		return runScenario(cmd, sc)
	},
}

func init() {
	rootCmd.AddCommand(bulkCmd)
	flags := bulkCmd.Flags()
	flags.String("preset", "part1b", "starting point: part1a, part1b or part1c")
	flags.String("dataRate", "1Mbps", "bottleneck data rate")
	flags.String("delay", "", "bottleneck delay, e.g. 50ms")
	flags.Float64("errorRate", 0.00001, "packet error rate on the bottleneck")
	flags.Int("nFlows", 1, "number of TCP flows")
	flags.String("shape", "", "topology: linear or dumbbell")
	flags.String("report", "", "report style: flows, delay or errorRate")
	flags.Uint64("maxBytes", 0, "bytes each sender transfers, 0 for unbounded")
}
