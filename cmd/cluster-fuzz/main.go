// Package main is the entry point for cluster-fuzz.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"cluster-fuzz/internal/cluster"
	"cluster-fuzz/internal/config"
	"cluster-fuzz/internal/events"
	"cluster-fuzz/internal/fuzzer"
	"cluster-fuzz/internal/logger"
	"cluster-fuzz/internal/monitor"
	"cluster-fuzz/internal/scenario"
)

var version = "dev"

// errRunsFailed は1つ以上のシナリオが検証に失敗したことを示す
// 終了コード1に対応し、致命的エラー（終了コード2）と区別される
var errRunsFailed = errors.New("one or more scenarios failed validation")

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if errors.Is(err, errRunsFailed) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cluster-fuzz",
		Short:         "Chaos-engineering test framework for distributed key-value clusters",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newClusterCmd())
	root.AddCommand(newValidateCmd())
	return root
}

type clusterFlags struct {
	random     bool
	seed       int64
	dslFile    string
	preset     string
	configFile string
	iterations int
	output     string
	exportDSL  string
	monitor    string
	verbose    bool
}

func newClusterCmd() *cobra.Command {
	var flags clusterFlags

	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Run fuzz scenarios against a simulated cluster",
		Example: `  # 固定シードで1シナリオを実行
  cluster-fuzz cluster --seed 42

  # ランダムシードで10イテレーション
  cluster-fuzz cluster --random --iterations 10

  # DSLファイルのシナリオを実行しJSONレポートを保存
  cluster-fuzz cluster --dsl scenario.yaml --output report.json

  # 失敗シナリオをDSLとして書き出す
  cluster-fuzz cluster --seed 4226257627 --export-dsl repro.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCluster(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.random, "random", false, "use a time-based random seed")
	cmd.Flags().Int64Var(&flags.seed, "seed", 0, "seed for deterministic scenario generation")
	cmd.Flags().StringVar(&flags.dslFile, "dsl", "", "scenario DSL file (YAML)")
	cmd.Flags().StringVar(&flags.preset, "preset", "", fmt.Sprintf("preset scenario name %v", scenario.ListPresets()))
	cmd.Flags().StringVar(&flags.configFile, "config", "", "runner config file (YAML/JSON)")
	cmd.Flags().IntVar(&flags.iterations, "iterations", 0, "number of scenarios to run")
	cmd.Flags().StringVar(&flags.output, "output", "", "write JSON reports to file")
	cmd.Flags().StringVar(&flags.exportDSL, "export-dsl", "", "write the scenario DSL document to file")
	cmd.Flags().StringVar(&flags.monitor, "monitor", "", "serve monitoring endpoints on this address")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	cmd.MarkFlagsMutuallyExclusive("random", "seed", "dsl", "preset")

	return cmd
}

func runCluster(ctx context.Context, flags clusterFlags) error {
	if flags.verbose {
		logger.Default.SetLevel(logger.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineConfig, err := buildEngineConfig(flags)
	if err != nil {
		return err
	}

	scn, err := resolveScenario(flags, &engineConfig)
	if err != nil {
		return err
	}
	engineConfig.Scenario = scn

	if flags.exportDSL != "" {
		if err := exportScenario(flags.exportDSL, scn, engineConfig.Seed); err != nil {
			return err
		}
	}

	bus := events.NewBus()
	defer bus.Close()

	var mon *monitor.Server
	if flags.monitor != "" {
		mon, err = monitor.NewServer(flags.monitor, bus)
		if err != nil {
			return errors.Wrap(err, "creating monitor server")
		}
		go func() {
			if err := mon.Start(ctx); err != nil {
				logger.Error("main", "Monitor server error: %v", err)
			}
		}()
		mon.SetRunning(true, scenarioID(scn, engineConfig.Seed))
	}

	engine := fuzzer.New(fuzzer.SimHarness(cluster.DefaultSimConfig()), bus, engineConfig)
	reports, runErr := engine.Run(ctx)

	for _, report := range reports {
		fmt.Println(report.Report())
		if mon != nil {
			mon.RecordReport(report)
		}
	}
	if mon != nil {
		mon.SetRunning(false, "")
	}

	if flags.output != "" {
		if err := writeReports(flags.output, reports); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}

	failed := 0
	for _, report := range reports {
		if !report.Passed {
			failed++
		}
	}
	if failed > 0 {
		logger.Warn("main", "%d of %d scenarios failed", failed, len(reports))
		return errRunsFailed
	}
	return nil
}

// buildEngineConfig は設定ファイルとフラグからエンジン設定を構築する
// 優先順位: フラグ > 設定ファイル > デフォルト
func buildEngineConfig(flags clusterFlags) (fuzzer.Config, error) {
	engineConfig := fuzzer.DefaultConfig()

	if flags.configFile != "" {
		fileConfig, err := config.LoadFile(flags.configFile)
		if err != nil {
			return engineConfig, err
		}
		if err := fileConfig.Validate(); err != nil {
			return engineConfig, errors.Wrap(err, "validating config")
		}
		engineConfig, err = fileConfig.ToEngineConfig()
		if err != nil {
			return engineConfig, err
		}
	}

	if flags.iterations > 0 {
		engineConfig.Iterations = flags.iterations
	}

	switch {
	case flags.seed != 0:
		engineConfig.Seed = flags.seed
	case flags.random:
		engineConfig.Seed = time.Now().UnixNano()
	}

	return engineConfig, nil
}

// resolveScenario は固定シナリオ（DSL・プリセット）を解決する
// シードベースの実行ではnilを返し、エンジンが生成する
func resolveScenario(flags clusterFlags, engineConfig *fuzzer.Config) (*scenario.Scenario, error) {
	switch {
	case flags.dslFile != "":
		scn, err := scenario.ParseFile(flags.dslFile)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing DSL file %s", flags.dslFile)
		}
		engineConfig.Seed = scn.Seed
		return scn, nil
	case flags.preset != "":
		scn, ok := scenario.GetPreset(flags.preset)
		if !ok {
			return nil, errors.Errorf("unknown preset %q (available: %v)", flags.preset, scenario.ListPresets())
		}
		engineConfig.Seed = scn.Seed
		return scn, nil
	default:
		return nil, nil
	}
}

// exportScenario はシナリオ（固定または生成）をDSLとして書き出す
func exportScenario(path string, scn *scenario.Scenario, seed int64) error {
	if scn == nil {
		generated, err := scenario.Generate(seed)
		if err != nil {
			return errors.Wrapf(err, "generating scenario for seed %d", seed)
		}
		scn = generated
	}

	data, err := scn.MarshalDSL()
	if err != nil {
		return errors.Wrap(err, "serializing scenario")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing DSL to %s", path)
	}

	logger.Info("main", "Scenario DSL written to %s", path)
	return nil
}

func scenarioID(scn *scenario.Scenario, seed int64) string {
	if scn != nil {
		return scn.ScenarioID()
	}
	return fmt.Sprintf("seed-%d", seed)
}

func writeReports(path string, reports []*fuzzer.RunReport) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return errors.Wrap(err, "serializing reports")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing reports to %s", path)
	}

	logger.Info("main", "JSON report written to %s", path)
	return nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a scenario DSL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scn, err := scenario.ParseFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Scenario %s is valid: %d shards, %d operations, %d chaos events\n",
				scn.ScenarioID(), scn.Cluster.NumShards, len(scn.Operations), len(scn.Chaos))
			return nil
		},
	}
}
