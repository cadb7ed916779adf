package fuzzer

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"cluster-fuzz/internal/chaos"
	"cluster-fuzz/internal/cluster"
	"cluster-fuzz/internal/events"
	"cluster-fuzz/internal/logger"
	"cluster-fuzz/internal/metrics"
	"cluster-fuzz/internal/scenario"
	"cluster-fuzz/internal/timeline"
	"cluster-fuzz/internal/validator"
	"cluster-fuzz/internal/workload"
)

// Harness は1回の実行で使うクラスタ能力一式
type Harness struct {
	Controller cluster.Controller
	Logs       cluster.LogReader
	Data       cluster.DataPlane
}

// HarnessFactory は実行ごとに新しいクラスタを用意する
type HarnessFactory func() Harness

// SimHarness はシミュレートクラスタのHarnessFactoryを返す
func SimHarness(cfg cluster.SimConfig) HarnessFactory {
	return func() Harness {
		sim := cluster.NewSim(cfg)
		return Harness{Controller: sim, Logs: sim, Data: sim}
	}
}

// Config はEngineの設定
type Config struct {
	Seed       int64
	Iterations int

	// Scenario が非nilなら全イテレーションで固定シナリオを使う
	// （DSL・プリセット入力）。nilならシードから生成する。
	Scenario *scenario.Scenario

	Scheduler timeline.Config
	Validator validator.Config
	Workload  workload.Config
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Seed:       time.Now().UnixNano(),
		Iterations: 1,
		Scheduler:  timeline.DefaultConfig(),
		Validator:  validator.DefaultConfig(),
		Workload:   workload.DefaultConfig(),
	}
}

// Engine はファズ実行全体を駆動する
//
// シードとRNGを所有し、イテレーションごとにシナリオを構築、
// クラスタ形成・カナリア書き込み・タイムライン実行・状態検証を
// 順に行いRunReportへ集約する。最初のイテレーションは指定シードを
// そのまま使い、以降はマスターRNGから派生させる。
type Engine struct {
	config  Config
	factory HarnessFactory
	bus     *events.Bus
	rng     *rand.Rand
}

// New は新しいEngineを作成する
// busはnilでもよい（イベント配信なし）
func New(factory HarnessFactory, bus *events.Bus, config Config) *Engine {
	if config.Iterations <= 0 {
		config.Iterations = 1
	}
	return &Engine{
		config:  config,
		factory: factory,
		bus:     bus,
		rng:     rand.New(rand.NewSource(config.Seed)),
	}
}

// Run は設定されたイテレーション数だけシナリオを実行する
// 形成失敗やシナリオ不正などの致命的エラーで中断する
func (e *Engine) Run(ctx context.Context) ([]*RunReport, error) {
	reports := make([]*RunReport, 0, e.config.Iterations)

	for i := 0; i < e.config.Iterations; i++ {
		seed := e.config.Seed
		if i > 0 {
			seed = e.rng.Int63()
		}

		scn, err := e.buildScenario(seed)
		if err != nil {
			return reports, err
		}

		logger.Info("fuzzer", "Iteration %d/%d: scenario %s (seed %d)",
			i+1, e.config.Iterations, scn.ScenarioID(), scn.Seed)

		report, err := e.runOne(ctx, scn)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, err
		}
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
	}

	return reports, nil
}

// buildScenario は固定シナリオかシードから生成したシナリオを返す
func (e *Engine) buildScenario(seed int64) (*scenario.Scenario, error) {
	if e.config.Scenario != nil {
		if err := e.config.Scenario.Validate(); err != nil {
			return nil, errors.Wrap(err, "validating scenario")
		}
		return e.config.Scenario, nil
	}

	scn, err := scenario.Generate(seed)
	if err != nil {
		return nil, errors.Wrapf(err, "generating scenario for seed %d", seed)
	}
	return scn, nil
}

// runOne は単一シナリオを実行しレポートを作る
func (e *Engine) runOne(ctx context.Context, scn *scenario.Scenario) (*RunReport, error) {
	report := &RunReport{
		RunID:        uuid.NewString(),
		ScenarioID:   scn.ScenarioID(),
		Seed:         scn.Seed,
		StartTime:    time.Now(),
		ReproCommand: reproCommand(scn.Seed),
	}
	e.publish(events.NewScenarioStartedEvent(scn.ScenarioID()))

	harness := e.factory()
	if err := harness.Controller.Form(ctx, scn.Cluster); err != nil {
		report.finish(false, err)
		metrics.ObserveRun(report.Duration, metrics.OutcomeError)
		return report, errors.Wrap(err, "forming cluster")
	}

	client := workload.New(harness.Data, e.config.Workload)
	if scn.Validation.CheckDataConsistency {
		if err := client.WriteCanaries(ctx); err != nil {
			report.recordError(err)
		}
	}
	if scn.Workload != nil {
		client.Start(ctx, *scn.Workload)
		defer client.Stop()
	}

	operator := cluster.NewOperator(harness.Controller, cluster.DefaultOperatorConfig())
	coordinator := chaos.NewCoordinator(harness.Controller, chaos.DefaultConfig())
	scheduler := timeline.NewScheduler(operator, coordinator, e.bus, e.config.Scheduler)

	entries, err := scheduler.Run(ctx, scn)
	report.EventLog = entries
	for _, entry := range entries {
		metrics.ObserveAction(string(entry.Kind), string(entry.Status))
	}
	if err != nil {
		// シナリオタイムアウトでも検証には進み、証拠を集める
		report.recordError(err)
		if !timeline.IsTimeoutError(err) {
			report.finish(false, nil)
			metrics.ObserveRun(report.Duration, metrics.OutcomeError)
			return report, err
		}
	}

	if scn.Workload != nil {
		client.Stop()
		snapshot := client.Latency()
		report.Workload = &snapshot
	}

	v := validator.New(harness.Controller, harness.Logs, e.config.Validator)
	vreport := v.Validate(ctx, scn, coordinator.Killed(), client)
	report.Results = vreport.Results

	passed := vreport.Passed && len(report.Errors) == 0
	report.finish(passed, nil)

	outcome := metrics.OutcomePassed
	if !passed {
		outcome = metrics.OutcomeFailed
	}
	metrics.ObserveRun(report.Duration, outcome)

	e.publish(events.NewValidationCompletedEvent(scn.ScenarioID(), vreport.Passed))
	e.publish(events.NewScenarioCompletedEvent(scn.ScenarioID(), passed))

	if passed {
		logger.Info("fuzzer", "Scenario %s PASSED in %s", scn.ScenarioID(), report.Duration.Round(time.Millisecond))
	} else {
		logger.Warn("fuzzer", "Scenario %s FAILED, reproduce with: %s", scn.ScenarioID(), report.ReproCommand)
	}
	return report, nil
}

func (e *Engine) publish(event events.Event) {
	if e.bus != nil {
		e.bus.Publish(event)
	}
}
