package cases

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a case
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// AllStatuses lists every valid status
func AllStatuses() []Status {
	return []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}
}

// ParseStatus canonicalizes and validates a raw status string
func ParseStatus(raw string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, s := range AllStatuses() {
		if s == status {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown case status %q", raw)
}

// Case is one arbitration case
type Case struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Status        Status    `json:"status"`
	InstitutionID int64     `json:"institution_id"`
	CreatedBy     string    `json:"created_by"`
	ArbitratorID  *string   `json:"arbitrator_id,omitempty"`
	ClientID      *string   `json:"client_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StatusCount is one row of the case status report
type StatusCount struct {
	Status Status `json:"status"`
	Count  int64  `json:"count"`
}
