package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/judinizz/ns3-network-simulations/harness"
)

var topoCmd = &cobra.Command{
	Use:   "topo",
	Short: "Describe the topology a scenario builds, without running it.",
	Long: "`topo --preset part2` prints every node with its addresses and every " +
		"link with its subnet.  With --out the description goes to a yaml or json file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var sc *harness.Scenario
		var err error
		if config, _ := cmd.Flags().GetString("config"); config != "" {
			sc, err = harness.ReadScenario(config, harness.UseYAML(config), nil)
		} else {
			preset, _ := cmd.Flags().GetString("preset")
			sc, err = harness.Preset(preset)
		}
		if err != nil {
			return err
		}
		applyCommon(cmd, sc)

		td, err := harness.DescribeScenario(sc)
		if err != nil {
			return err
		}
		if out, _ := cmd.Flags().GetString("out"); out != "" {
			return td.WriteToFile(out)
		}
		bytes, err := yaml.Marshal(td)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(bytes)
		return err
	},
}

func init() {
	rootCmd.AddCommand(topoCmd)
	topoCmd.Flags().String("preset", "part1b", "name of a built-in scenario")
	topoCmd.Flags().String("config", "", "yaml or json scenario file")
	topoCmd.Flags().String("out", "", "yaml or json file receiving the description")
}
