package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/judinizz/ns3-network-simulations/harness"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario read from a file or named preset.",
	Long: "`run --config scenario.yaml` runs the scenario the file describes; " +
		"`run --preset part1a` runs a built-in one. --save writes the completed " +
		"scenario back out so a run can be repeated exactly.",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, _ := cmd.Flags().GetString("config")
		preset, _ := cmd.Flags().GetString("preset")

		var sc *harness.Scenario
		var err error
		switch {
		case config != "" && preset != "":
			return fmt.Errorf("%w: give --config or --preset, not both", harness.ErrBadScenario)
		case config != "":
			sc, err = harness.ReadScenario(config, harness.UseYAML(config), nil)
		case preset != "":
			sc, err = harness.Preset(preset)
		default:
			return fmt.Errorf("%w: one of --config or --preset is needed", harness.ErrBadScenario)
		}
		if err != nil {
			return err
		}

		if save, _ := cmd.Flags().GetString("save"); save != "" {
			applyCommon(cmd, sc)
			sc.Complete()
			if err := sc.WriteToFile(save); err != nil {
				return err
			}
		}
		return runScenario(cmd, sc)
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the built-in scenarios.",
	RunE: func(cmd *cobra.Command, args []string) error {
		lines := []string{}
		for _, name := range harness.PresetNames() {
			sc, _ := harness.Preset(name)
			lines = append(lines, fmt.Sprintf("%-8s kind=%s shape=%s stop=%g", name, sc.Kind, sc.Shape, sc.Stop))
		}
		return harness.WriteLines(cmd.OutOrStdout(), lines)
	},
}

func init() {
	rootCmd.AddCommand(runCmd, presetsCmd)
	runCmd.Flags().String("config", "", "yaml or json scenario file")
	runCmd.Flags().String("preset", "", "name of a built-in scenario")
	runCmd.Flags().String("save", "", "write the completed scenario to this yaml or json file")
}
