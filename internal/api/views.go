package api

import (
	"errors"
	"time"

	"example.com/salestrack/internal/domain"
)

// Date marshals as YYYY-MM-DD.
type Date struct {
	time.Time
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(time.DateOnly) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. An empty string or null leaves the zero value.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return errors.New("date must be a string")
	}
	t, err := domain.ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d *Date) ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

// CounterFields is the shared counter payload of record requests. Null or missing values
// are stored as 0 on create and left unchanged on PATCH.
type CounterFields struct {
	CallCount                 *int64 `json:"call_count"`
	CatchCount                *int64 `json:"catch_count"`
	ReCallCount               *int64 `json:"re_call_count"`
	ProspectiveCount          *int64 `json:"prospective_count"`
	ApproachNGCount           *int64 `json:"approach_ng_count"`
	ProductExplanationNGCount *int64 `json:"product_explanation_ng_count"`
	AcquisitionCount          *int64 `json:"acquisition_count"`
}

func (c CounterFields) counters() domain.Counters {
	v := func(p *int64) int64 {
		if p == nil {
			return 0
		}
		return *p
	}
	return domain.Counters{
		CallCount:                 v(c.CallCount),
		CatchCount:                v(c.CatchCount),
		ReCallCount:               v(c.ReCallCount),
		ProspectiveCount:          v(c.ProspectiveCount),
		ApproachNGCount:           v(c.ApproachNGCount),
		ProductExplanationNGCount: v(c.ProductExplanationNGCount),
		AcquisitionCount:          v(c.AcquisitionCount),
	}
}

// missing returns the JSON name of the first absent counter, or "".
func (c CounterFields) missing() string {
	fields := []struct {
		name  string
		value *int64
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
		if f.value == nil {
			return f.name
		}
	}
	return ""
}

// RecordRequest is the payload for POST /v1/records and PUT/PATCH /v1/records/{id}.
type RecordRequest struct {
	RecordDate    *Date `json:"record_date"`
	OperationDate *Date `json:"operation_date"`
	CounterFields
}

func (r RecordRequest) updateInput() domain.UpdateRecordInput {
	return domain.UpdateRecordInput{
		RecordDate:                r.RecordDate.ptr(),
		CallCount:                 r.CallCount,
		CatchCount:                r.CatchCount,
		ReCallCount:               r.ReCallCount,
		ProspectiveCount:          r.ProspectiveCount,
		ApproachNGCount:           r.ApproachNGCount,
		ProductExplanationNGCount: r.ProductExplanationNGCount,
		AcquisitionCount:          r.AcquisitionCount,
	}
}

// RecordView exposes a stored activity record.
type RecordView struct {
	ID                        int64     `json:"id"`
	InputName                 string    `json:"input_name"`
	RecordDate                Date      `json:"record_date"`
	OperationDate             Date      `json:"operation_date"`
	CallCount                 int64     `json:"call_count"`
	CatchCount                int64     `json:"catch_count"`
	ReCallCount               int64     `json:"re_call_count"`
	ProspectiveCount          int64     `json:"prospective_count"`
	ApproachNGCount           int64     `json:"approach_ng_count"`
	ProductExplanationNGCount int64     `json:"product_explanation_ng_count"`
	AcquisitionCount          int64     `json:"acquisition_count"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

func toRecordView(rec domain.ActivityRecord) RecordView {
	return RecordView{
		ID:                        rec.ID,
		InputName:                 rec.InputName,
		RecordDate:                Date{rec.RecordDate},
		OperationDate:             Date{rec.OperationDate},
		CallCount:                 rec.CallCount,
		CatchCount:                rec.CatchCount,
		ReCallCount:               rec.ReCallCount,
		ProspectiveCount:          rec.ProspectiveCount,
		ApproachNGCount:           rec.ApproachNGCount,
		ProductExplanationNGCount: rec.ProductExplanationNGCount,
		AcquisitionCount:          rec.AcquisitionCount,
		CreatedAt:                 rec.CreatedAt,
		UpdatedAt:                 rec.UpdatedAt,
	}
}

// ListRecordsResponse packages list results.
type ListRecordsResponse struct {
	Items      []RecordView `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// TargetRequest is the payload for PUT/PATCH /v1/targets/{year_month}.
type TargetRequest struct {
	TargetAcquisition *int64 `json:"target_acquisition"`
}

// TargetView exposes a monthly target.
type TargetView struct {
	ID                int64     `json:"id"`
	YearMonth         string    `json:"year_month"`
	TargetAcquisition int64     `json:"target_acquisition"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toTargetView(t domain.MonthlyTarget) TargetView {
	return TargetView{
		ID:                t.ID,
		YearMonth:         t.YearMonth.String(),
		TargetAcquisition: t.TargetAcquisition,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

// MonthlyDetails lists the month-to-date totals.
type MonthlyDetails struct {
	TotalCall        int64 `json:"total_call"`
	TotalCatch       int64 `json:"total_catch"`
	TotalReCall      int64 `json:"total_re_call"`
	TotalProspective int64 `json:"total_prospective"`
	TotalApproachNG  int64 `json:"total_approach_ng"`
	TotalProductNG   int64 `json:"total_product_ng"`
	TotalAcquisition int64 `json:"total_acquisition"`
}

// DailyDetails lists the reference day's totals.
type DailyDetails struct {
	DailyCall        int64 `json:"daily_call"`
	DailyCatch       int64 `json:"daily_catch"`
	DailyReCall      int64 `json:"daily_re_call"`
	DailyProspective int64 `json:"daily_prospective"`
	DailyApproachNG  int64 `json:"daily_approach_ng"`
	DailyProductNG   int64 `json:"daily_product_ng"`
	DailyAcquisition int64 `json:"daily_acquisition"`
}

// Rates holds the five catch-based percentages.
type Rates struct {
	ReCallRate      float64 `json:"re_call_rate"`
	ProspectiveRate float64 `json:"prospective_rate"`
	ApproachNGRate  float64 `json:"approach_ng_rate"`
	ProductNGRate   float64 `json:"product_ng_rate"`
	AcquisitionRate float64 `json:"acquisition_rate"`
}

// MonthlyView is the monthly half of the summary payload.
type MonthlyView struct {
	Rates
	Details                      MonthlyDetails `json:"details"`
	DailyRequiredAcquisition     float64        `json:"daily_required_acquisition"`
	DailyRequiredCatch           float64        `json:"daily_required_catch"`
	ProgressRate                 float64        `json:"progress_rate"`
	VirtualProgressCount         float64        `json:"virtual_progress_count"`
	AverageDailyAcquisition      float64        `json:"average_daily_acquisition"`
	PredictedMonthEndAcquisition float64        `json:"predicted_month_end_acquisition"`
	TargetAcquisition            int64          `json:"target_acquisition"`
	TargetProgress               float64        `json:"target_progress"`
	TimeProgress                 float64        `json:"time_progress"`
	DaysInMonth                  int            `json:"days_in_month"`
	ElapsedDays                  int            `json:"elapsed_days"`
}

// DailyView is the daily half of the summary payload.
type DailyView struct {
	Rates
	Details DailyDetails `json:"details"`
}

// DailyRecordView is one entry of the per-day chart series.
type DailyRecordView struct {
	Date                      Date  `json:"date"`
	CallCount                 int64 `json:"call_count"`
	CatchCount                int64 `json:"catch_count"`
	ReCallCount               int64 `json:"re_call_count"`
	ProspectiveCount          int64 `json:"prospective_count"`
	ApproachNGCount           int64 `json:"approach_ng_count"`
	ProductExplanationNGCount int64 `json:"product_explanation_ng_count"`
	AcquisitionCount          int64 `json:"acquisition_count"`
}

// SummaryResponse is the body of GET /v1/summary/monthly.
type SummaryResponse struct {
	ReferenceDate Date              `json:"reference_date"`
	Monthly       MonthlyView       `json:"monthly"`
	Daily         DailyView         `json:"daily"`
	DailyRecords  []DailyRecordView `json:"daily_records"`
}

// DailySummaryResponse is the body of GET /v1/summary/daily.
type DailySummaryResponse struct {
	ReferenceDate Date      `json:"reference_date"`
	Daily         DailyView `json:"daily"`
}

func toRates(r domain.RateSet) Rates {
	return Rates{
		ReCallRate:      r.ReCallRate,
		ProspectiveRate: r.ProspectiveRate,
		ApproachNGRate:  r.ApproachNGRate,
		ProductNGRate:   r.ProductNGRate,
		AcquisitionRate: r.AcquisitionRate,
	}
}

func toDailyView(d domain.DailySummary) DailyView {
	return DailyView{
		Rates: toRates(d.RateSet),
		Details: DailyDetails{
			DailyCall:        d.Totals.CallCount,
			DailyCatch:       d.Totals.CatchCount,
			DailyReCall:      d.Totals.ReCallCount,
			DailyProspective: d.Totals.ProspectiveCount,
			DailyApproachNG:  d.Totals.ApproachNGCount,
			DailyProductNG:   d.Totals.ProductExplanationNGCount,
			DailyAcquisition: d.Totals.AcquisitionCount,
		},
	}
}

func toSummaryResponse(s domain.Summary) SummaryResponse {
	m := s.Monthly
	resp := SummaryResponse{
		ReferenceDate: Date{s.ReferenceDate},
		Monthly: MonthlyView{
			Rates: toRates(m.RateSet),
			Details: MonthlyDetails{
				TotalCall:        m.Totals.CallCount,
				TotalCatch:       m.Totals.CatchCount,
				TotalReCall:      m.Totals.ReCallCount,
				TotalProspective: m.Totals.ProspectiveCount,
				TotalApproachNG:  m.Totals.ApproachNGCount,
				TotalProductNG:   m.Totals.ProductExplanationNGCount,
				TotalAcquisition: m.Totals.AcquisitionCount,
			},
			DailyRequiredAcquisition:     m.DailyRequiredAcquisition,
			DailyRequiredCatch:           m.DailyRequiredCatch,
			ProgressRate:                 m.ProgressRate,
			VirtualProgressCount:         m.VirtualProgressCount,
			AverageDailyAcquisition:      m.AverageDailyAcquisition,
			PredictedMonthEndAcquisition: m.PredictedMonthEndAcquisition,
			TargetAcquisition:            m.TargetAcquisition,
			TargetProgress:               m.TargetProgress,
			TimeProgress:                 m.TimeProgress,
			DaysInMonth:                  m.DaysInMonth,
			ElapsedDays:                  m.ElapsedDays,
		},
		Daily:        toDailyView(s.Daily),
		DailyRecords: make([]DailyRecordView, 0, len(s.DailyRecords)),
	}
	for _, rec := range s.DailyRecords {
		resp.DailyRecords = append(resp.DailyRecords, DailyRecordView{
			Date:                      Date{rec.Date},
			CallCount:                 rec.CallCount,
			CatchCount:                rec.CatchCount,
			ReCallCount:               rec.ReCallCount,
			ProspectiveCount:          rec.ProspectiveCount,
			ApproachNGCount:           rec.ApproachNGCount,
			ProductExplanationNGCount: rec.ProductExplanationNGCount,
			AcquisitionCount:          rec.AcquisitionCount,
		})
	}
	return resp
}

// RegisterRequest is the payload for POST /v1/auth/register.
type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

// LoginRequest is the payload for POST /v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the payload for POST /v1/auth/token/refresh.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// VerifyRequest is the payload for POST /v1/auth/token/verify.
type VerifyRequest struct {
	Token string `json:"token"`
}

// UserView exposes the public fields of an account.
type UserView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
