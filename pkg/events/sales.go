// Package events defines the payloads published for sales activity changes.
package events

import "time"

// Event types written to the outbox.
const (
	TypeRecordCreated = "record.created"
	TypeRecordUpdated = "record.updated"
	TypeTargetUpdated = "target.updated"
)

// Header keys attached to every published message.
const (
	HeaderEventType     = "event_type"
	HeaderUserID        = "user_id"
	HeaderSchemaSubject = "schema_subject"
)

// RecordChanged is emitted whenever an activity record is created or rewritten.
type RecordChanged struct {
	RecordID                  int64     `json:"record_id"`
	UserID                    string    `json:"user_id"`
	InputName                 string    `json:"input_name"`
	RecordDate                string    `json:"record_date"`
	OperationDate             string    `json:"operation_date"`
	CallCount                 int64     `json:"call_count"`
	CatchCount                int64     `json:"catch_count"`
	ReCallCount               int64     `json:"re_call_count"`
	ProspectiveCount          int64     `json:"prospective_count"`
	ApproachNGCount           int64     `json:"approach_ng_count"`
	ProductExplanationNGCount int64     `json:"product_explanation_ng_count"`
	AcquisitionCount          int64     `json:"acquisition_count"`
	OccurredAt                time.Time `json:"occurred_at"`
}

// TargetUpdated is emitted when a monthly acquisition target is set.
type TargetUpdated struct {
	TargetID          int64     `json:"target_id"`
	UserID            string    `json:"user_id"`
	YearMonth         string    `json:"year_month"`
	TargetAcquisition int64     `json:"target_acquisition"`
	OccurredAt        time.Time `json:"occurred_at"`
}
