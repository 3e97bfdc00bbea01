package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// MonthlyTarget stores the acquisition goal a user set for one calendar month.
type MonthlyTarget struct {
	ID                int64
	UserID            string
	YearMonth         YearMonth
	TargetAcquisition int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

var yearMonthPattern = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// ParseYearMonth parses the "YYYY-MM" key used for monthly targets.
func ParseYearMonth(value string) (YearMonth, error) {
	m := yearMonthPattern.FindStringSubmatch(value)
	if m == nil {
		return YearMonth{}, &ValidationError{Field: "year_month", Message: "year_month must be formatted as YYYY-MM"}
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return YearMonth{}, &ValidationError{Field: "year_month", Message: "month must be between 01 and 12"}
	}
	return YearMonth{Year: year, Month: time.Month(month)}, nil
}

// YearMonthOf returns the month containing date.
func YearMonthOf(date time.Time) YearMonth {
	return YearMonth{Year: date.Year(), Month: date.Month()}
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Start returns the first day of the month at midnight UTC.
func (ym YearMonth) Start() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Days returns the calendar length of the month.
func (ym YearMonth) Days() int {
	return ym.Start().AddDate(0, 1, -1).Day()
}
