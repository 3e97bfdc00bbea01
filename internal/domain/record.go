package domain

import (
	"fmt"
	"time"
)

// Counters holds the seven per-day activity counters logged by a sales user.
type Counters struct {
	CallCount                 int64
	CatchCount                int64
	ReCallCount               int64
	ProspectiveCount          int64
	ApproachNGCount           int64
	ProductExplanationNGCount int64
	AcquisitionCount          int64
}

// Add returns the field-wise sum of c and other.
func (c Counters) Add(other Counters) Counters {
	return Counters{
		CallCount:                 c.CallCount + other.CallCount,
		CatchCount:                c.CatchCount + other.CatchCount,
		ReCallCount:               c.ReCallCount + other.ReCallCount,
		ProspectiveCount:          c.ProspectiveCount + other.ProspectiveCount,
		ApproachNGCount:           c.ApproachNGCount + other.ApproachNGCount,
		ProductExplanationNGCount: c.ProductExplanationNGCount + other.ProductExplanationNGCount,
		AcquisitionCount:          c.AcquisitionCount + other.AcquisitionCount,
	}
}

// Validate rejects negative counters.
func (c Counters) Validate() error {
	fields := []struct {
		name  string
		value int64
	}{
		{"call_count", c.CallCount},
		{"catch_count", c.CatchCount},
		{"re_call_count", c.ReCallCount},
		{"prospective_count", c.ProspectiveCount},
		{"approach_ng_count", c.ApproachNGCount},
		{"product_explanation_ng_count", c.ProductExplanationNGCount},
		{"acquisition_count", c.AcquisitionCount},
	}
	for _, f := range fields {
		if f.value < 0 {
			return &ValidationError{Field: f.name, Message: fmt.Sprintf("%s must be >= 0", f.name)}
		}
	}
	return nil
}

// ActivityRecord is one logged day of sales activity owned by a single user.
type ActivityRecord struct {
	ID            int64
	UserID        string
	InputName     string
	RecordDate    time.Time
	OperationDate time.Time
	Counters
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cursor models the pagination token for record listings.
type Cursor struct {
	RecordDate time.Time
	ID         int64
}

// RecordFilter narrows a record listing.
type RecordFilter struct {
	Date   *time.Time
	Cursor *Cursor
	Limit  int
}

// DateOf truncates t to a calendar date in loc, returned as midnight UTC so that
// dates compare and persist independently of the server zone.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Message: "date must be formatted as YYYY-MM-DD"}
	}
	return t, nil
}
