package fuzzer

import (
	"fmt"
	"time"

	"cluster-fuzz/internal/metrics"
	"cluster-fuzz/internal/timeline"
	"cluster-fuzz/internal/validator"
)

// RunReport は1回のシナリオ実行の結果
type RunReport struct {
	RunID        string                   `json:"run_id"`
	ScenarioID   string                   `json:"scenario_id"`
	Seed         int64                    `json:"seed"`
	Passed       bool                     `json:"passed"`
	StartTime    time.Time                `json:"start_time"`
	EndTime      time.Time                `json:"end_time"`
	Duration     time.Duration            `json:"duration"`
	EventLog     []timeline.EventLogEntry `json:"event_log"`
	Results      []validator.CheckResult  `json:"results"`
	Workload     *metrics.Snapshot        `json:"workload,omitempty"`
	Errors       []string                 `json:"errors,omitempty"`
	ReproCommand string                   `json:"repro_command"`
}

func (r *RunReport) finish(passed bool, err error) {
	if err != nil {
		r.recordError(err)
	}
	r.Passed = passed
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

func (r *RunReport) recordError(err error) {
	r.Errors = append(r.Errors, err.Error())
}

func reproCommand(seed int64) string {
	return fmt.Sprintf("cluster --seed %d", seed)
}

// Report は結果をフォーマットして返す
func (r *RunReport) Report() string {
	result := "FAILED"
	if r.Passed {
		result = "PASSED"
	}

	report := fmt.Sprintf(`
================================================================================
                         FUZZ RUN REPORT: %s
================================================================================

EXECUTION SUMMARY
-----------------
  Run ID:         %s
  Seed:           %d
  Start Time:     %s
  End Time:       %s
  Duration:       %v
  Result:         %s

TIMELINE
--------
`,
		r.ScenarioID,
		r.RunID,
		r.Seed,
		r.StartTime.Format("2006-01-02 15:04:05"),
		r.EndTime.Format("2006-01-02 15:04:05"),
		r.Duration.Round(time.Millisecond),
		result,
	)

	if len(r.EventLog) == 0 {
		report += "  (no actions)\n"
	}
	for _, e := range r.EventLog {
		elapsed := e.CompletedAt.Sub(e.StartedAt).Round(time.Millisecond)
		line := fmt.Sprintf("  %-10s %-10s %-10s %v", e.ID, e.Kind, e.Status, elapsed)
		if e.Error != "" {
			line += "  " + e.Error
		}
		report += line + "\n"
	}

	report += "\nVALIDATION CHECKS\n-----------------\n"
	if len(r.Results) == 0 {
		report += "  (not run)\n"
	}
	for _, c := range r.Results {
		line := fmt.Sprintf("  %-20s %s", c.Check+":", c.Status)
		if c.Message != "" {
			line += "  " + c.Message
		}
		report += line + "\n"
	}

	if r.Workload != nil {
		report += fmt.Sprintf(`
TRAFFIC METRICS
---------------
  Total Requests:   %d
  Success:          %d
  Failed:           %d
  Error Rate:       %.2f%%
  Avg Latency:      %v
  P99 Latency:      %v
`,
			r.Workload.TotalRequests,
			r.Workload.SuccessRequests,
			r.Workload.FailedRequests,
			r.Workload.ErrorRate*100,
			r.Workload.AverageLatency.Round(time.Microsecond),
			r.Workload.P99Latency.Round(time.Microsecond),
		)
	}

	if len(r.Errors) > 0 {
		report += "\nERRORS\n------\n"
		for _, e := range r.Errors {
			report += "  " + e + "\n"
		}
	}

	report += fmt.Sprintf(`
REPRODUCTION
------------
  %s

================================================================================`,
		r.ReproCommand)

	return report
}
