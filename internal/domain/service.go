// Package domain defines the business logic for the sales activity service.
package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// UserRepository captures account persistence.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// RecordRepository captures activity record persistence. Lookups return (nil, nil) when
// the record is absent or owned by another user.
type RecordRepository interface {
	CreateRecord(ctx context.Context, record ActivityRecord) (ActivityRecord, error)
	GetRecord(ctx context.Context, userID string, id int64) (*ActivityRecord, error)
	ListRecords(ctx context.Context, userID string, filter RecordFilter) ([]ActivityRecord, *Cursor, error)
	UpdateRecord(ctx context.Context, record ActivityRecord) error
	// SumCounters totals counters for records dated in [from, to).
	SumCounters(ctx context.Context, userID string, from, to time.Time) (Counters, error)
	// RecordsBetween returns records dated in [from, to) ordered by date then id.
	RecordsBetween(ctx context.Context, userID string, from, to time.Time) ([]ActivityRecord, error)
}

// TargetRepository captures monthly target persistence.
type TargetRepository interface {
	// FindTarget returns (nil, nil) when no target exists. It never writes.
	FindTarget(ctx context.Context, userID string, ym YearMonth) (*MonthlyTarget, error)
	// GetOrCreateTarget inserts a zero target when absent and returns the stored row.
	GetOrCreateTarget(ctx context.Context, userID string, ym YearMonth) (MonthlyTarget, error)
	// UpsertTarget sets the target value, creating the row when absent.
	UpsertTarget(ctx context.Context, userID string, ym YearMonth, value int64) (MonthlyTarget, error)
}

// Store bundles the repositories a Service depends on.
type Store interface {
	UserRepository
	RecordRepository
	TargetRepository
}

// PasswordHasher hashes and verifies user passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithClock overrides the time source used for default dates and summaries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLocation sets the zone in which "today" is evaluated.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// Service orchestrates record, target, account, and summary workflows.
type Service struct {
	store  Store
	hasher PasswordHasher
	now    func() time.Time
	loc    *time.Location
}

// NewService constructs a Service.
func NewService(store Store, hasher PasswordHasher, opts ...Option) *Service {
	s := &Service{
		store:  store,
		hasher: hasher,
		now:    time.Now,
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current calendar date in the service location.
func (s *Service) Today() time.Time {
	return DateOf(s.now(), s.loc)
}

// RegisterInput captures the registration payload.
type RegisterInput struct {
	Username        string
	Password        string
	PasswordConfirm string
}

// Register validates and stores a new account.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	if err := ValidateUsername(input.Username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(input.Password); err != nil {
		return nil, err
	}
	if input.Password != input.PasswordConfirm {
		return nil, &ValidationError{Field: "password", Message: "passwords do not match"}
	}

	existing, err := s.store.GetUserByUsername(ctx, input.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:           uuid.NewString(),
		Username:     input.Username,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate checks a username/password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser fetches an account by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// CreateRecordInput captures the payload from the API layer.
type CreateRecordInput struct {
	UserID        string
	InputName     string
	RecordDate    *time.Time
	OperationDate *time.Time
	Counters      Counters
}

// CreateRecord stores a new record. A missing record date defaults to today and a missing
// operation date defaults to the record date.
func (s *Service) CreateRecord(ctx context.Context, input CreateRecordInput) (*ActivityRecord, error) {
	if err := input.Counters.Validate(); err != nil {
		return nil, err
	}

	recordDate := s.Today()
	if input.RecordDate != nil {
		recordDate = DateOf(*input.RecordDate, nil)
	}
	operationDate := recordDate
	if input.OperationDate != nil {
		operationDate = DateOf(*input.OperationDate, nil)
	}

	now := s.now().UTC()
	record, err := s.store.CreateRecord(ctx, ActivityRecord{
		UserID:        input.UserID,
		InputName:     input.InputName,
		RecordDate:    recordDate,
		OperationDate: operationDate,
		Counters:      input.Counters,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetRecord fetches one of the user's records.
func (s *Service) GetRecord(ctx context.Context, userID string, id int64) (*ActivityRecord, error) {
	record, err := s.store.GetRecord(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// ListRecords returns the user's records newest first.
func (s *Service) ListRecords(ctx context.Context, userID string, filter RecordFilter) ([]ActivityRecord, *Cursor, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.store.ListRecords(ctx, userID, filter)
}

// UpdateRecordInput holds a partial update; nil fields are left unchanged.
type UpdateRecordInput struct {
	RecordDate                *time.Time
	CallCount                 *int64
	CatchCount                *int64
	ReCallCount               *int64
	ProspectiveCount          *int64
	ApproachNGCount           *int64
	ProductExplanationNGCount *int64
	AcquisitionCount          *int64
}

func (in UpdateRecordInput) apply(record *ActivityRecord) {
	if in.RecordDate != nil {
		record.RecordDate = DateOf(*in.RecordDate, nil)
	}
	set := func(dst *int64, src *int64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&record.CallCount, in.CallCount)
	set(&record.CatchCount, in.CatchCount)
	set(&record.ReCallCount, in.ReCallCount)
	set(&record.ProspectiveCount, in.ProspectiveCount)
	set(&record.ApproachNGCount, in.ApproachNGCount)
	set(&record.ProductExplanationNGCount, in.ProductExplanationNGCount)
	set(&record.AcquisitionCount, in.AcquisitionCount)
}

// UpdateRecord applies a partial update to one of the user's records.
func (s *Service) UpdateRecord(ctx context.Context, userID string, id int64, input UpdateRecordInput) (*ActivityRecord, error) {
	record, err := s.GetRecord(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	input.apply(record)
	if err := record.Counters.Validate(); err != nil {
		return nil, err
	}
	record.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateRecord(ctx, *record); err != nil {
		return nil, fmt.Errorf("update record %d: %w", id, err)
	}
	return record, nil
}

// GetOrCreateTarget returns the user's target for ym. This mutates storage: when no
// target exists yet a zero-valued one is inserted.
func (s *Service) GetOrCreateTarget(ctx context.Context, userID string, ym YearMonth) (MonthlyTarget, error) {
	return s.store.GetOrCreateTarget(ctx, userID, ym)
}

// UpdateTarget sets the user's target for ym, creating it when absent.
func (s *Service) UpdateTarget(ctx context.Context, userID string, ym YearMonth, value int64) (MonthlyTarget, error) {
	if value < 0 {
		return MonthlyTarget{}, &ValidationError{Field: "target_acquisition", Message: "target_acquisition must be >= 0"}
	}
	return s.store.UpsertTarget(ctx, userID, ym, value)
}

// Summary builds the monthly and daily report for the user. A nil reference uses today.
func (s *Service) Summary(ctx context.Context, userID string, reference *time.Time) (Summary, error) {
	day := s.Today()
	if reference != nil {
		day = DateOf(*reference, nil)
	}
	ym := YearMonthOf(day)
	monthStart := ym.Start()
	monthEnd := monthStart.AddDate(0, 1, 0)

	input := SummaryInput{ReferenceDate: day}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		totals, err := s.store.SumCounters(gctx, userID, monthStart, monthEnd)
		if err != nil {
			return fmt.Errorf("sum month counters: %w", err)
		}
		input.MonthTotals = totals
		return nil
	})
	g.Go(func() error {
		totals, err := s.store.SumCounters(gctx, userID, day, day.AddDate(0, 0, 1))
		if err != nil {
			return fmt.Errorf("sum day counters: %w", err)
		}
		input.DayTotals = totals
		return nil
	})
	g.Go(func() error {
		target, err := s.store.FindTarget(gctx, userID, ym)
		if err != nil {
			return fmt.Errorf("find target: %w", err)
		}
		if target != nil {
			input.TargetAcquisition = target.TargetAcquisition
		}
		return nil
	})
	g.Go(func() error {
		records, err := s.store.RecordsBetween(gctx, userID, monthStart, monthEnd)
		if err != nil {
			return fmt.Errorf("list month records: %w", err)
		}
		input.MonthRecords = records
		return nil
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	return ComputeSummary(input), nil
}
