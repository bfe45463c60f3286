package types

import (
	"errors"
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// ErrInvalidDate rejects date filters not in DateLayout.
var ErrInvalidDate = errors.New("date must be YYYY-MM-DD")

// AttendanceRecord is one committed attendance event. IdentityName is the
// name as it was when the event was written.
type AttendanceRecord struct {
	IdentityID   string `json:"identity_id"`
	IdentityName string `json:"identity_name"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

// ValidateDate checks that date parses with DateLayout.
func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}

// DateOf formats t as an attendance date in t's location.
func DateOf(t time.Time) string { return t.Format(DateLayout) }

// Stats summarizes the store for the kiosk status panel.
type Stats struct {
	Date            string `json:"date"`
	Identities      int    `json:"registered_identities"`
	TodayAttendance int    `json:"today_attendance"`
	TotalAttendance int    `json:"total_attendance"`
}
