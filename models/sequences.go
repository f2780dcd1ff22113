package models

// ReferenceSequence holds the last issued number per (prefix, year).
type ReferenceSequence struct {
	Prefix string `json:"prefix" gorm:"primaryKey"`
	Year   int    `json:"year" gorm:"primaryKey"`
	Value  int    `json:"value"`
}

func (ReferenceSequence) TableName() string {
	return "reference_sequences"
}
