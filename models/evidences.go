package models

import (
	"time"

	"github.com/google/uuid"
)

// EvidenceTargetKind is the closed set of entities evidence can be attached to.
type EvidenceTargetKind string

const (
	EvidenceTargetIncident       EvidenceTargetKind = "INCIDENT"
	EvidenceTargetCAPA           EvidenceTargetKind = "CAPA"
	EvidenceTargetRiskAssessment EvidenceTargetKind = "RISK_ASSESSMENT"
)

func (k EvidenceTargetKind) Valid() bool {
	switch k {
	case EvidenceTargetIncident, EvidenceTargetCAPA, EvidenceTargetRiskAssessment:
		return true
	}
	return false
}

// EvidenceTarget identifies the entity an evidence file belongs to.
type EvidenceTarget struct {
	Kind EvidenceTargetKind `json:"kind"`
	ID   uuid.UUID          `json:"id"`
}

func IncidentTarget(id uuid.UUID) EvidenceTarget {
	return EvidenceTarget{Kind: EvidenceTargetIncident, ID: id}
}

func CAPATarget(id uuid.UUID) EvidenceTarget {
	return EvidenceTarget{Kind: EvidenceTargetCAPA, ID: id}
}

func RiskAssessmentTarget(incidentID uuid.UUID) EvidenceTarget {
	return EvidenceTarget{Kind: EvidenceTargetRiskAssessment, ID: incidentID}
}

type FileType string

const (
	FileTypePhoto    FileType = "PHOTO"
	FileTypeDocument FileType = "DOCUMENT"
	FileTypeVideo    FileType = "VIDEO"
	FileTypeAudio    FileType = "AUDIO"
	FileTypeOther    FileType = "OTHER"
)

func (f FileType) Valid() bool {
	switch f {
	case FileTypePhoto, FileTypeDocument, FileTypeVideo, FileTypeAudio, FileTypeOther:
		return true
	}
	return false
}

type Evidence struct {
	ID          uuid.UUID      `json:"id" gorm:"default:gen_random_uuid()"`
	Target      EvidenceTarget `json:"target" gorm:"embedded;embeddedPrefix:target_"`
	Path        string         `json:"path"`
	Filename    string         `json:"filename"`
	FileType    FileType       `json:"file_type"`
	FileSize    int64          `json:"file_size"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	UploadedBy  uuid.UUID      `json:"uploaded_by"`
	UploadedAt  time.Time      `json:"uploaded_at"`
}

func (e Evidence) TableName() string {
	return "evidences"
}
