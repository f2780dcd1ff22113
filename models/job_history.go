package models

import (
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/flanksource/hse/types"
)

type JobStatus string

const (
	StatusRunning JobStatus = "RUNNING"
	StatusSuccess JobStatus = "SUCCESS"
	StatusWarning JobStatus = "WARNING"
	StatusFailed  JobStatus = "FAILED"
)

type JobHistory struct {
	ID             uuid.UUID `gorm:"default:gen_random_uuid()"`
	Name           string
	SuccessCount   int
	ErrorCount     int
	Hostname       string
	DurationMillis int64
	Details        types.JSONMap
	Status         JobStatus
	TimeStart      time.Time
	TimeEnd        *time.Time
	Errors         []string `gorm:"-"`
}

func (JobHistory) TableName() string {
	return "job_history"
}

func NewJobHistory(name string) *JobHistory {
	return &JobHistory{Name: name}
}

func (h *JobHistory) Start() *JobHistory {
	h.TimeStart = time.Now()
	h.Status = StatusRunning
	h.Hostname, _ = os.Hostname()
	return h
}

func (h *JobHistory) End() *JobHistory {
	end := time.Now()
	h.TimeEnd = &end
	h.DurationMillis = end.Sub(h.TimeStart).Milliseconds()
	if len(h.Errors) > 0 {
		if h.Details == nil {
			h.Details = map[string]any{}
		}
		h.Details["errors"] = h.Errors
	}

	switch {
	case h.ErrorCount == 0:
		h.Status = StatusSuccess
	case h.SuccessCount > 0:
		h.Status = StatusWarning
	default:
		h.Status = StatusFailed
	}
	return h
}

func (h *JobHistory) AddError(err string) *JobHistory {
	h.ErrorCount += 1
	if err != "" {
		h.Errors = append(h.Errors, err)
	}
	return h
}

func (h *JobHistory) IncrSuccess() *JobHistory {
	h.SuccessCount += 1
	return h
}
