package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Friend struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Relation  string    `json:"relation,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Activity struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Location  string    `json:"location,omitempty"`
	StartsAt  time.Time `json:"starts_at"`
	Capacity  int       `json:"capacity"`
	Joined    int       `json:"joined"`
	CreatedAt time.Time `json:"created_at"`
}

type HealthRecord struct {
	ID         string    `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	Systolic   int       `json:"systolic,omitempty"`
	Diastolic  int       `json:"diastolic,omitempty"`
	HeartRate  int       `json:"heart_rate,omitempty"`
	WeightKg   float64   `json:"weight_kg,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Interaction is one recorded companion chat turn.
type Interaction struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ProfileID string    `json:"profile_id"`
	Message   string    `json:"message"`
	Reply     string    `json:"reply"`
	Provider  string    `json:"provider,omitempty"`
}
