package job

import (
	gocontext "context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
)

type Job struct {
	context.Context
	Name     string
	Schedule string
	Timeout  time.Duration
	Fn       func(ctx JobRuntime) error
	RunNow   bool

	// Retention is how long finished runs are kept in job_history, 0 keeps them forever.
	Retention time.Duration

	mu          sync.Mutex
	entryID     *cron.EntryID
	lastHistory *models.JobHistory
}

// JobRuntime is handed to Fn; Fn counts its successes and failures on History.
type JobRuntime struct {
	context.Context
	Job     *Job
	History *models.JobHistory
}

func NewJob(ctx context.Context, name string, schedule string, fn func(ctx JobRuntime) error) *Job {
	return &Job{
		Context:  ctx,
		Name:     name,
		Schedule: schedule,
		Fn:       fn,
	}
}

func (j *Job) SetTimeout(t time.Duration) *Job {
	j.Timeout = t
	return j
}

func (j *Job) SetRetention(d time.Duration) *Job {
	j.Retention = d
	return j
}

// Exec runs the job once and records the run in job_history.
func (j *Job) Exec() (*models.JobHistory, error) {
	ctx, span := j.StartSpan(j.Name)
	defer span.End()
	ctx = ctx.WithName(fmt.Sprintf("job=%s", j.Name))

	if j.Timeout > 0 {
		var cancel gocontext.CancelFunc
		ctx, cancel = ctx.WithTimeout(j.Timeout)
		defer cancel()
	}

	r := JobRuntime{
		Context: ctx,
		Job:     j,
		History: models.NewJobHistory(j.Name).Start(),
	}

	ctx.Debugf("running")
	err := j.Fn(r)
	if err != nil {
		r.History.AddError(err.Error())
	}
	r.History.End()

	ctx.Histogram("hse_job_duration", context.LatencyBuckets, "name", j.Name, "status", string(r.History.Status)).
		Record(time.Duration(r.History.DurationMillis) * time.Millisecond)

	if dbErr := ctx.DB().Create(r.History).Error; dbErr != nil {
		ctx.Warnf("failed to save job history: %v", dbErr)
	}

	j.mu.Lock()
	j.lastHistory = r.History
	j.mu.Unlock()

	if j.Retention > 0 {
		if cleanupErr := CleanupStaleHistory(ctx, j.Retention, j.Name); cleanupErr != nil {
			ctx.Warnf("failed to clean up job history: %v", cleanupErr)
		}
	}

	ctx.Debugf("%s in %dms: %d succeeded, %d failed", r.History.Status, r.History.DurationMillis, r.History.SuccessCount, r.History.ErrorCount)
	return r.History, err
}

// Run implements cron.Job.
func (j *Job) Run() {
	if _, err := j.Exec(); err != nil {
		j.Errorf("job %s failed: %v", j.Name, err)
	}
}

// LastRun returns the history of the most recent run in this process.
func (j *Job) LastRun() *models.JobHistory {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastHistory
}

func (j *Job) AddToScheduler(cronRunner *cron.Cron) error {
	entryID, err := cronRunner.AddJob(j.Schedule, j)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", j.Name, err)
	}
	j.entryID = &entryID
	if j.RunNow {
		go j.Run()
	}
	return nil
}

func (j *Job) RemoveFromScheduler(cronRunner *cron.Cron) {
	if j.entryID == nil {
		return
	}
	cronRunner.Remove(*j.entryID)
	j.entryID = nil
}
