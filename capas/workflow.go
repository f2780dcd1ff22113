package capas

import (
	"time"

	"github.com/google/uuid"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/models"
)

// date drops the time of day, in UTC.
func date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Start(c *models.CAPA) error {
	if c.Status != models.CAPAStatusOpen {
		return api.InvalidTransition("start", c.Status, models.CAPAStatusOpen)
	}
	c.Status = models.CAPAStatusInProgress
	return nil
}

// Complete marks an open or in progress CAPA as done. It returns false, and
// leaves c untouched, from any other status.
func Complete(c *models.CAPA, actor uuid.UUID, now time.Time) bool {
	switch c.Status {
	case models.CAPAStatusOpen, models.CAPAStatusInProgress:
		c.Status = models.CAPAStatusCompleted
		c.CompletionDate = &now
		return true
	}
	return false
}

// Verify records that a completed CAPA was effective.
func Verify(c *models.CAPA, actor uuid.UUID, notes string, now time.Time) error {
	if c.Status != models.CAPAStatusCompleted {
		return api.InvalidTransition("verify", c.Status, models.CAPAStatusCompleted)
	}
	c.Status = models.CAPAStatusVerified
	c.VerificationDate = &now
	c.VerificationNotes = notes
	return nil
}

func Close(c *models.CAPA) error {
	if c.Status != models.CAPAStatusVerified {
		return api.InvalidTransition("close", c.Status, models.CAPAStatusVerified)
	}
	c.Status = models.CAPAStatusClosed
	return nil
}

func Cancel(c *models.CAPA) error {
	switch c.Status {
	case models.CAPAStatusOpen, models.CAPAStatusInProgress:
		c.Status = models.CAPAStatusCancelled
		return nil
	}
	return api.InvalidTransition("cancel", c.Status, models.CAPAStatusOpen, models.CAPAStatusInProgress)
}

// IsOverdue compares dates only: a CAPA due today is not overdue.
func IsOverdue(c models.CAPA, today time.Time) bool {
	switch c.Status {
	case models.CAPAStatusCompleted, models.CAPAStatusVerified, models.CAPAStatusClosed, models.CAPAStatusCancelled:
		return false
	}
	return date(c.DueDate).Before(date(today))
}

// DaysUntilDue is negative once the due date has passed.
func DaysUntilDue(c models.CAPA, today time.Time) int {
	return int(date(c.DueDate).Sub(date(today)).Hours() / 24)
}
