// Package scheduler drives config-declared workflow runs on cron
// schedules. Each tick goes through the same adapter contract the CLI
// and tool surface use.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/taehoon/flowkit/internal/adapter"
	"github.com/taehoon/flowkit/internal/config"
)

// Service owns the cron runner.
type Service struct {
	adapter   *adapter.Adapter
	schedules []config.ScheduleConfig
	cron      *cron.Cron
}

// New creates a Service for the declared schedules.
func New(a *adapter.Adapter, schedules []config.ScheduleConfig) *Service {
	return &Service{
		adapter:   a,
		schedules: schedules,
		cron:      cron.New(),
	}
}

// Start registers every schedule and starts the cron runner. A schedule
// with an unparsable expression is an error; nothing is left half
// registered.
func (s *Service) Start() error {
	for _, sc := range s.schedules {
		sc := sc
		sched, err := parseSchedule(sc.Cron, sc.Timezone)
		if err != nil {
			s.cron.Stop()
			return err
		}
		s.cron.Schedule(sched, cron.FuncJob(func() {
			s.run(sc)
		}))
		slog.Info("scheduler: registered cron job", "workflow", sc.Workflow, "cron", sc.Cron)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runner; running jobs finish on their own.
func (s *Service) Stop() {
	s.cron.Stop()
}

func (s *Service) run(sc config.ScheduleConfig) {
	resp, err := s.adapter.Handle(context.Background(), adapter.Request{
		FlowName:   sc.Workflow,
		Parameters: sc.Params,
	})
	if err != nil {
		slog.Error("scheduled run failed to start", "workflow", sc.Workflow, "err", err)
		return
	}
	slog.Info("scheduled run finished",
		"workflow", sc.Workflow, "status", resp.Status, "final_state", resp.FinalState)
}

// parseSchedule parses a config cron line. Schedules may carry an
// optional leading seconds field; a non-UTC timezone is attached
// through the CRON_TZ prefix so ticks follow local wall-clock time.
func parseSchedule(expr, timezone string) (cron.Schedule, error) {
	if timezone != "" && timezone != "UTC" {
		expr = "CRON_TZ=" + timezone + " " + expr
	}
	withSeconds := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if sched, err := withSeconds.Parse(expr); err == nil {
		return sched, nil
	}
	return cron.ParseStandard(expr)
}
