package job

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
)

type JobCronEntry struct {
	Name       string    `json:"name"`
	Schedule   string    `json:"schedule"`
	LastRan    time.Time `json:"last_ran,omitempty"`
	LastStatus string    `json:"last_status,omitempty"`
	NextRun    time.Time `json:"next_run"`
	NextRunIn  string    `json:"next_run_in"`
}

func (s *Scheduler) Entries() []JobCronEntry {
	return lo.FilterMap(s.cron.Entries(), func(e cron.Entry, _ int) (JobCronEntry, bool) {
		j, ok := e.Job.(*Job)
		if !ok {
			return JobCronEntry{}, false
		}

		entry := JobCronEntry{
			Name:      j.Name,
			Schedule:  j.Schedule,
			LastRan:   e.Prev,
			NextRun:   e.Next,
			NextRunIn: time.Until(e.Next).Round(time.Second).String(),
		}
		if last := j.LastRun(); last != nil {
			entry.LastStatus = string(last.Status)
		}
		return entry, true
	})
}

func (s *Scheduler) CronDetailsHandler() func(c echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, s.Entries())
	}
}
