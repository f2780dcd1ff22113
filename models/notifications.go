package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationIncidentCreated   NotificationType = "INCIDENT_CREATED"
	NotificationIncidentAssigned  NotificationType = "INCIDENT_ASSIGNED"
	NotificationIncidentValidated NotificationType = "INCIDENT_VALIDATED"
	NotificationIncidentClosed    NotificationType = "INCIDENT_CLOSED"

	NotificationCAPACreated   NotificationType = "CAPA_CREATED"
	NotificationCAPAAssigned  NotificationType = "CAPA_ASSIGNED"
	NotificationCAPADueSoon   NotificationType = "CAPA_DUE_SOON"
	NotificationCAPAOverdue   NotificationType = "CAPA_OVERDUE"
	NotificationCAPACompleted NotificationType = "CAPA_COMPLETED"

	NotificationRiskHigh     NotificationType = "RISK_HIGH"
	NotificationRiskCritical NotificationType = "RISK_CRITICAL"

	NotificationSystem NotificationType = "SYSTEM"
)

var NotificationTypes = []NotificationType{
	NotificationIncidentCreated,
	NotificationIncidentAssigned,
	NotificationIncidentValidated,
	NotificationIncidentClosed,
	NotificationCAPACreated,
	NotificationCAPAAssigned,
	NotificationCAPADueSoon,
	NotificationCAPAOverdue,
	NotificationCAPACompleted,
	NotificationRiskHigh,
	NotificationRiskCritical,
	NotificationSystem,
}

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationIncidentCreated, NotificationIncidentAssigned, NotificationIncidentValidated, NotificationIncidentClosed,
		NotificationCAPACreated, NotificationCAPAAssigned, NotificationCAPADueSoon, NotificationCAPAOverdue, NotificationCAPACompleted,
		NotificationRiskHigh, NotificationRiskCritical, NotificationSystem:
		return true
	}
	return false
}

// EventName is the event_queue name the notification is dispatched from,
// e.g. CAPA_DUE_SOON -> notification.capa.due_soon
func (t NotificationType) EventName() string {
	kind, rest, found := strings.Cut(strings.ToLower(string(t)), "_")
	if !found {
		return "notification." + kind
	}
	return "notification." + kind + "." + rest
}

// Notification represents the notifications table
type Notification struct {
	ID          uuid.UUID        `json:"id" gorm:"default:gen_random_uuid()"`
	RecipientID uuid.UUID        `json:"recipient_id"`
	Type        NotificationType `json:"notification_type" gorm:"column:notification_type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Link        string           `json:"link,omitempty"`
	IsRead      bool             `json:"is_read"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	EmailSent   bool             `json:"email_sent"`
	EmailSentAt *time.Time       `json:"email_sent_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at" gorm:"<-:create"`
}

func (n Notification) TableName() string {
	return "notifications"
}

// MarkAsRead returns false when the notification was already read.
func (n *Notification) MarkAsRead(now time.Time) bool {
	if n.IsRead {
		return false
	}
	n.IsRead = true
	n.ReadAt = &now
	return true
}

// MarkAsUnread returns false when the notification was already unread.
func (n *Notification) MarkAsUnread() bool {
	if !n.IsRead {
		return false
	}
	n.IsRead = false
	n.ReadAt = nil
	return true
}
