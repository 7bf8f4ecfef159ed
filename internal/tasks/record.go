// Package tasks holds extracted task records and the ordered list that
// persists them.
package tasks

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the due date format.
const DateLayout = "2006-01-02"

// Record is one extracted task. Field names on the wire match the stored
// list format and the extraction response.
type Record struct {
	Description string    `json:"task"`
	Criticality string    `json:"criticality"`
	DueDate     string    `json:"due_date,omitempty"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"timestamp"`
}

var (
	// ErrEmptyDescription is returned by Validate for a blank description.
	ErrEmptyDescription = errors.New("task description is empty")

	// ErrInvalidDueDate is returned by Validate for a malformed due date.
	ErrInvalidDueDate = errors.New("due date is not a calendar date")
)

// Validate checks that the description is non-empty and the due date, if
// present, is a YYYY-MM-DD calendar date.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return ErrEmptyDescription
	}
	if r.DueDate != "" {
		if _, err := time.Parse(DateLayout, r.DueDate); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDueDate, r.DueDate)
		}
	}
	return nil
}

// Due returns the parsed due date.
func (r Record) Due() (time.Time, bool) {
	if r.DueDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, r.DueDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

var dutchCriticality = map[string]bool{
	"laag":      true,
	"normaal":   true,
	"hoog":      true,
	"zeer hoog": true,
}

// Dutch reports whether the criticality uses the Dutch vocabulary.
func (r Record) Dutch() bool {
	return dutchCriticality[strings.ToLower(strings.TrimSpace(r.Criticality))]
}

// Level normalizes the criticality to low, normal, high or very high.
// Unknown values map to normal.
func (r Record) Level() string {
	switch strings.ToLower(strings.TrimSpace(r.Criticality)) {
	case "low", "laag":
		return "low"
	case "high", "hoog":
		return "high"
	case "very high", "zeer hoog":
		return "very high"
	default:
		return "normal"
	}
}
