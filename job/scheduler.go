package job

import (
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/shutdown"
)

const historyRetention = 30 * 24 * time.Hour

// DefaultJobs are the HSE sweeps with their default schedules.
func DefaultJobs(ctx context.Context) []*Job {
	return []*Job{
		NewJob(ctx, "CAPAOverdueReminders", "0 8 * * *", CAPAOverdueReminders).SetRetention(historyRetention),
		NewJob(ctx, "CAPADueSoonReminders", "0 8 * * *", CAPADueSoonReminders).SetRetention(historyRetention),
		NewJob(ctx, "IncidentEscalation", "@every 30m", IncidentEscalation).SetRetention(historyRetention).SetTimeout(5 * time.Minute),
		NewJob(ctx, "IncidentOverdueReminders", "@every 1h", IncidentOverdueReminders).SetRetention(historyRetention),
		NewJob(ctx, "DailyIncidentReport", "0 8 * * *", DailyIncidentReport).SetRetention(historyRetention),
		NewJob(ctx, "WeeklySummary", "0 9 * * 1", WeeklySummary).SetRetention(historyRetention),
		NewJob(ctx, "SafetyMetrics", "0 6 1 * *", SafetyMetrics).SetRetention(historyRetention),
	}
}

// Scheduler runs jobs on their cron schedules. Hosting it is optional: the
// jobs can equally be triggered one at a time through Exec or RunAll.
type Scheduler struct {
	cron *cron.Cron
	Jobs []*Job
}

func NewScheduler(jobs ...*Job) *Scheduler {
	return &Scheduler{cron: cron.New(), Jobs: jobs}
}

func (s *Scheduler) Start() error {
	for _, j := range s.Jobs {
		if err := j.AddToScheduler(s.cron); err != nil {
			return err
		}
	}
	s.cron.Start()
	shutdown.AddHookWithPriority("job scheduler", shutdown.PriorityJobs, s.Stop)
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunAll executes every job once, concurrently, and returns the first error.
func (s *Scheduler) RunAll() error {
	var g errgroup.Group
	for _, j := range s.Jobs {
		g.Go(func() error {
			_, err := j.Exec()
			return err
		})
	}
	return g.Wait()
}
