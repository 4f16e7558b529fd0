// Package cmd implements commands for the orderer-bench executable.
package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/oasisprotocol/block-orderer/common/logging"
	"github.com/oasisprotocol/block-orderer/common/version"
	"github.com/oasisprotocol/block-orderer/common/workerpool"
	"github.com/oasisprotocol/block-orderer/orderer"
	"github.com/oasisprotocol/block-orderer/orderer-bench/cmd/metrics"
	"github.com/oasisprotocol/block-orderer/orderer-bench/workload"
)

const (
	cfgConfigFile = "config"
	cfgLogFile    = "log.file"
	cfgLogFmt     = "log.format"
	cfgLogLevel   = "log.level"

	cfgNumAccounts = "num-accounts"
	cfgBlockSize   = "block-size"
	cfgNumBlocks   = "num-blocks"

	cfgWorkers     = "benchmark.workers"
	cfgCostDecay   = "benchmark.cost_decay"
	cfgSeed        = "benchmark.seed"
	cfgProfileCPU  = "benchmark.profile_cpu"
	cfgProfileMEM  = "benchmark.profile_mem"
	cfgResultsFile = "benchmark.results_file"
)

var (
	rootCmd = &cobra.Command{
		Use:     "orderer-bench",
		Short:   "Block orderer benchmark",
		Version: version.SoftwareVersion,
		RunE:    runRoot,
	}

	dumpFixtureCmd = &cobra.Command{
		Use:   "dump-fixture",
		Short: "generate a workload block and write it to the fixture file",
		RunE:  doDumpFixture,
	}

	rootFlags  = flag.NewFlagSet("", flag.ContinueOnError)
	benchFlags = flag.NewFlagSet("", flag.ContinueOnError)

	cfgFile string
)

// Execute spawns the main entry point after handling the config file.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initLogging() error {
	var logFmt logging.Format
	if err := logFmt.Set(viper.GetString(cfgLogFmt)); err != nil {
		return fmt.Errorf("bench: failed to set log format: %w", err)
	}

	var logLevel logging.Level
	if err := logLevel.Set(viper.GetString(cfgLogLevel)); err != nil {
		return fmt.Errorf("bench: failed to set log level: %w", err)
	}

	var logWriter io.Writer = os.Stdout
	if path := viper.GetString(cfgLogFile); path != "" {
		w, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("bench: failed to open log file: %w", err)
		}
		logWriter = io.MultiWriter(os.Stdout, w)
	}

	return logging.Initialize(logWriter, logFmt, logLevel, nil)
}

func newBenchPool() (*workerpool.Pool, error) {
	workers := viper.GetInt(cfgWorkers)
	if workers < 1 {
		return nil, fmt.Errorf("bench: worker count must be positive, got %d", workers)
	}

	pool := workerpool.New("bench", nil)
	pool.Resize(uint(workers))
	return pool, nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if err := initLogging(); err != nil {
		return err
	}

	// Start the metrics service so pull mode covers the whole run and push
	// mode flushes the final state on the way out.
	if metrics.Enabled() {
		m, err := metrics.New()
		if err != nil {
			return fmt.Errorf("bench: failed to initialize metrics: %w", err)
		}
		if err = m.Start(); err != nil {
			return fmt.Errorf("bench: failed to start metrics: %w", err)
		}
		defer func() {
			m.Stop()
			<-m.Quit()
			m.Cleanup()
		}()
	}

	return runBenchmark(logging.GetLogger("cmd/bench"))
}

func doDumpFixture(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if err := initLogging(); err != nil {
		return err
	}
	logger := logging.GetLogger("cmd/dump-fixture")

	path := workload.FixtureFile()
	if path == "" {
		return fmt.Errorf("dump-fixture: no fixture file configured (--%s)", workload.CfgFixtureFile)
	}

	pool, err := newBenchPool()
	if err != nil {
		return err
	}
	defer pool.Stop()

	gen, err := workload.NewGenerator(viper.GetInt(cfgNumAccounts), viper.GetUint64(cfgSeed), pool)
	if err != nil {
		return fmt.Errorf("dump-fixture: %w", err)
	}
	block, err := gen.MakeBlock(viper.GetInt(cfgBlockSize), pool)
	if err != nil {
		return fmt.Errorf("dump-fixture: %w", err)
	}

	if err = workload.SaveFixture(path, block); err != nil {
		return fmt.Errorf("dump-fixture: %w", err)
	}
	logger.Info("wrote workload fixture",
		"path", path,
		"accounts", block.NumAccounts,
		"txns", len(block.Transfers),
	)

	return nil
}

func earlyLogAndExit(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func initVersions() {
	cobra.AddTemplateFunc("toolchainVersion", func() interface{} { return version.Toolchain })

	rootCmd.SetVersionTemplate(`Software version: {{.Version}}
Go toolchain version: {{ toolchainVersion }}
`)
}

func init() {
	initVersions()

	logFmt := logging.FmtLogfmt
	logLevel := logging.LevelInfo

	rootFlags.StringVar(&cfgFile, cfgConfigFile, "", "config file")
	rootFlags.Var(&logFmt, cfgLogFmt, "log format")
	rootFlags.Var(&logLevel, cfgLogLevel, "log level")
	rootFlags.String(cfgLogFile, "", "log to file in addition to stdout")

	benchFlags.Int(cfgNumAccounts, 2000000, "number of workload accounts")
	benchFlags.Int(cfgBlockSize, 100000, "number of transactions per block")
	benchFlags.Int(cfgNumBlocks, 10, "number of blocks to order")
	benchFlags.Int(cfgWorkers, runtime.NumCPU(), "number of worker goroutines")
	benchFlags.StringSlice(cfgCostDecay, []string{"0", "16", "50"}, "quality cost decay constants")
	benchFlags.Uint64(cfgSeed, 0, "workload seed (0 to draw from OS entropy)")
	benchFlags.Bool(cfgProfileCPU, false, "enable CPU profiling")
	benchFlags.Bool(cfgProfileMEM, false, "enable memory profiling")
	benchFlags.String(cfgResultsFile, "", "also write per-block results to this file as JSON records")

	_ = viper.BindPFlags(rootFlags)
	_ = viper.BindPFlags(benchFlags)

	rootCmd.PersistentFlags().AddFlagSet(rootFlags)
	rootCmd.PersistentFlags().AddFlagSet(benchFlags)
	rootCmd.Flags().AddFlagSet(orderer.Flags)
	rootCmd.Flags().AddFlagSet(workload.FixtureFlags)
	rootCmd.Flags().AddFlagSet(metrics.Flags)

	dumpFixtureCmd.Flags().AddFlagSet(workload.FixtureFlags)
	rootCmd.AddCommand(dumpFixtureCmd)

	cobra.OnInitialize(func() {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				earlyLogAndExit(err)
			}
		}
	})
}
