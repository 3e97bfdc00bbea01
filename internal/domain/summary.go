package domain

import (
	"math"
	"strconv"
	"time"
)

// RateSet holds the five catch-based conversion rates, in percent.
type RateSet struct {
	ReCallRate      float64
	ProspectiveRate float64
	ApproachNGRate  float64
	ProductNGRate   float64
	AcquisitionRate float64
}

// MonthlySummary combines month-to-date totals, rates, and target forecasts.
type MonthlySummary struct {
	RateSet
	Totals Counters

	TargetAcquisition            int64
	DaysInMonth                  int
	ElapsedDays                  int
	DailyRequiredAcquisition     float64
	DailyRequiredCatch           float64
	TimeProgress                 float64
	TargetProgress               float64
	ProgressRate                 float64
	VirtualProgressCount         float64
	AverageDailyAcquisition      float64
	PredictedMonthEndAcquisition float64
}

// DailySummary holds the reference day's totals and rates.
type DailySummary struct {
	RateSet
	Totals Counters
}

// DailyRecord is the per-day counter tuple returned for charting.
type DailyRecord struct {
	Date time.Time
	Counters
}

// Summary is the computed progress report for one user and reference date.
type Summary struct {
	ReferenceDate time.Time
	Monthly       MonthlySummary
	Daily         DailySummary
	DailyRecords  []DailyRecord
}

// SummaryInput carries the pre-aggregated values the calculator works from.
type SummaryInput struct {
	ReferenceDate     time.Time
	MonthTotals       Counters
	DayTotals         Counters
	TargetAcquisition int64
	MonthRecords      []ActivityRecord
}

// Rate returns numerator/denominator as a percentage rounded to one decimal.
// A zero denominator yields 0.
func Rate(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return Round1(float64(numerator) / float64(denominator) * 100)
}

// Round1 rounds x to one decimal place using the shortest correctly rounded decimal form,
// so exact halves go to the even digit (0.25 becomes 0.2). NaN and infinities map to 0.
func Round1(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', 1, 64), 64)
	if err != nil {
		return 0
	}
	return r
}

func ratesFor(c Counters) RateSet {
	return RateSet{
		ReCallRate:      Rate(c.ReCallCount, c.CatchCount),
		ProspectiveRate: Rate(c.ProspectiveCount, c.CatchCount),
		ApproachNGRate:  Rate(c.ApproachNGCount, c.CatchCount),
		ProductNGRate:   Rate(c.ProductExplanationNGCount, c.CatchCount),
		AcquisitionRate: Rate(c.AcquisitionCount, c.CatchCount),
	}
}

func safeDiv(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// ComputeSummary derives rates and forecasts from aggregated totals.
func ComputeSummary(in SummaryInput) Summary {
	ym := YearMonthOf(in.ReferenceDate)
	daysInMonth := float64(ym.Days())
	elapsed := float64(in.ReferenceDate.Day())
	target := float64(in.TargetAcquisition)
	acquired := float64(in.MonthTotals.AcquisitionCount)

	rates := ratesFor(in.MonthTotals)

	dailyRequiredAcquisition := safeDiv(target, daysInMonth)
	// Derived from the rounded acquisition rate.
	dailyRequiredCatch := safeDiv(dailyRequiredAcquisition*100, rates.AcquisitionRate)
	timeProgress := safeDiv(elapsed, daysInMonth)
	targetProgress := safeDiv(acquired, target)
	progressRate := safeDiv(targetProgress, timeProgress) * 100
	virtualProgress := timeProgress * target
	averageDaily := safeDiv(acquired, elapsed)
	predicted := averageDaily * daysInMonth

	records := make([]DailyRecord, 0, len(in.MonthRecords))
	for _, rec := range in.MonthRecords {
		records = append(records, DailyRecord{Date: rec.RecordDate, Counters: rec.Counters})
	}

	return Summary{
		ReferenceDate: in.ReferenceDate,
		Monthly: MonthlySummary{
			RateSet:                      rates,
			Totals:                       in.MonthTotals,
			TargetAcquisition:            in.TargetAcquisition,
			DaysInMonth:                  int(daysInMonth),
			ElapsedDays:                  int(elapsed),
			DailyRequiredAcquisition:     Round1(dailyRequiredAcquisition),
			DailyRequiredCatch:           Round1(dailyRequiredCatch),
			TimeProgress:                 Round1(timeProgress),
			TargetProgress:               Round1(targetProgress),
			ProgressRate:                 Round1(progressRate),
			VirtualProgressCount:         Round1(virtualProgress),
			AverageDailyAcquisition:      Round1(averageDaily),
			PredictedMonthEndAcquisition: Round1(predicted),
		},
		Daily: DailySummary{
			RateSet: ratesFor(in.DayTotals),
			Totals:  in.DayTotals,
		},
		DailyRecords: records,
	}
}
