package admin

import (
	"fmt"
	"strings"
)

// ApplicationStatus is the review state of a course application.
type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "pending"
	StatusReviewed ApplicationStatus = "reviewed"
	StatusApproved ApplicationStatus = "approved"
	StatusRejected ApplicationStatus = "rejected"
)

// StatusFilterAll is the list filter value that matches every status.
const StatusFilterAll = "all"

// ApplicationStatuses lists the statuses in review order.
var ApplicationStatuses = []ApplicationStatus{StatusPending, StatusReviewed, StatusApproved, StatusRejected}

// IsValid returns true if the status is a known review state.
func (s ApplicationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusReviewed, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Label returns the capitalized display form, e.g. "Pending".
func (s ApplicationStatus) Label() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// ParseApplicationStatus parses a review state, case-insensitively.
func ParseApplicationStatus(v string) (ApplicationStatus, error) {
	s := ApplicationStatus(strings.ToLower(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown application status %q (want one of pending, reviewed, approved, rejected)", v)
	}
	return s, nil
}

// ParseStatusFilter parses a list filter: a review state or "all".
// An empty value means "all".
func ParseStatusFilter(v string) (string, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" || v == StatusFilterAll {
		return StatusFilterAll, nil
	}
	s, err := ParseApplicationStatus(v)
	if err != nil {
		return "", err
	}
	return string(s), nil
}
