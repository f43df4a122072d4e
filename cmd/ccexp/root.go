package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/judinizz/ns3-network-simulations/harness"
	"github.com/judinizz/ns3-network-simulations/internal/logger"
	"github.com/judinizz/ns3-network-simulations/results"
)

// environment variables giving defaults for the output directory and results database
const (
	envOutputDir = "CCEXP_OUTPUT_DIR"
	envDB        = "CCEXP_DB"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ccexp",
	Short: "ccexp runs congestion-control experiments over simulated topologies.",
	Long: `ccexp builds a topology, attaches echo or bulk TCP workloads, optionally ` +
		`injects packet loss on the bottleneck, runs the simulation and reports ` +
		`per-flow and aggregate goodput.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// a missing .env is normal
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			logger.CfgLog.Warnf("ignoring .env: %v", err)
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		level, _ := cmd.Flags().GetString("log-level")
		switch {
		case level != "":
			return logger.ParseAndSetLevel(level)
		case verbose:
			logger.SetLogLevel(logrus.InfoLevel)
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("transport_prot", "", "congestion control, e.g. TcpNewReno, TcpCubic, TcpHighSpeed, TcpScalable")
	pf.Float64("stop", 0.0, "simulation stop time in seconds")
	pf.String("prefix", "", "prefix of the trace file names")
	pf.Bool("tracing", false, "write congestion window traces")
	pf.Uint64("seed", 0, "seed of every random stream; equal seeds repeat a run exactly")
	pf.String("output", "", "directory receiving output files (default $"+envOutputDir+")")
	pf.String("db", "", "SQLite database receiving the results (default $"+envDB+")")
	pf.String("topo-file", "", "write the built topology to this yaml or json file")
	pf.String("packet-trace", "", "write every device event to this yaml or json file")
	pf.Bool("verbose", false, "log application events")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
}

// applyCommon copies the persistent flags the user set onto the scenario
func applyCommon(cmd *cobra.Command, sc *harness.Scenario) {
	flags := cmd.Flags()
	if flags.Changed("transport_prot") {
		sc.Strategy, _ = flags.GetString("transport_prot")
	}
	if flags.Changed("stop") {
		sc.Stop, _ = flags.GetFloat64("stop")
	}
	if flags.Changed("prefix") {
		sc.Prefix, _ = flags.GetString("prefix")
	}
	if flags.Changed("seed") {
		sc.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("tracing") {
		sc.Tracing, _ = flags.GetBool("tracing")
	}
	if flags.Changed("topo-file") {
		sc.TopoFile, _ = flags.GetString("topo-file")
	}
	if flags.Changed("packet-trace") {
		sc.PacketTrace, _ = flags.GetString("packet-trace")
	}
	sc.OutputDir, _ = flags.GetString("output")
	if sc.OutputDir == "" {
		sc.OutputDir = os.Getenv(envOutputDir)
	}
}

// runScenario runs sc, records it when a database is configured, and prints the report
func runScenario(cmd *cobra.Command, sc *harness.Scenario) error {
	applyCommon(cmd, sc)

	var rec harness.Recorder
	dbName, _ := cmd.Flags().GetString("db")
	if dbName == "" {
		dbName = os.Getenv(envDB)
	}
	if dbName != "" {
		sqlRec, err := results.NewSQLiteRecorder(dbName)
		if err != nil {
			return fmt.Errorf("results database %s: %w", dbName, err)
		}
		defer sqlRec.Close()
		rec = sqlRec
	}

	res, err := harness.Run(sc, rec)
	if err != nil {
		return err
	}
	for _, name := range res.TraceFiles {
		logger.TraceLog.WithField("file", name).Info("congestion window trace written")
	}
	return harness.WriteLines(cmd.OutOrStdout(), res.Lines)
}
