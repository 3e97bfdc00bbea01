// Package memory provides an in-process Store for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/salestrack/internal/domain"
)

type targetKey struct {
	userID    string
	yearMonth string
}

// Store keeps users, records, and targets in maps guarded by a single lock.
type Store struct {
	mu           sync.RWMutex
	users        map[string]domain.User
	usernames    map[string]string
	records      map[int64]domain.ActivityRecord
	targets      map[targetKey]domain.MonthlyTarget
	nextRecordID int64
	nextTargetID int64
	now          func() time.Time
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		users:     make(map[string]domain.User),
		usernames: make(map[string]string),
		records:   make(map[int64]domain.ActivityRecord),
		targets:   make(map[targetKey]domain.MonthlyTarget),
		now:       time.Now,
	}
}

// CreateUser implements domain.UserRepository.
func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usernames[user.Username]; exists {
		return domain.ErrUsernameTaken
	}
	s.users[user.ID] = user
	s.usernames[user.Username] = user.ID
	return nil
}

// GetUserByID implements domain.UserRepository.
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// GetUserByUsername implements domain.UserRepository.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[username]
	if !ok {
		return nil, nil
	}
	user := s.users[id]
	return &user, nil
}

// CreateRecord implements domain.RecordRepository.
func (s *Store) CreateRecord(ctx context.Context, record domain.ActivityRecord) (domain.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRecordID++
	record.ID = s.nextRecordID
	if record.OperationDate.IsZero() {
		record.OperationDate = record.RecordDate
	}
	s.records[record.ID] = record
	return record, nil
}

// GetRecord implements domain.RecordRepository.
func (s *Store) GetRecord(ctx context.Context, userID string, id int64) (*domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok || record.UserID != userID {
		return nil, nil
	}
	return &record, nil
}

// ListRecords implements domain.RecordRepository.
func (s *Store) ListRecords(ctx context.Context, userID string, filter domain.RecordFilter) ([]domain.ActivityRecord, *domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.ActivityRecord, 0)
	for _, record := range s.records {
		if record.UserID != userID {
			continue
		}
		if filter.Date != nil && !record.RecordDate.Equal(*filter.Date) {
			continue
		}
		if c := filter.Cursor; c != nil {
			if record.RecordDate.After(c.RecordDate) {
				continue
			}
			if record.RecordDate.Equal(c.RecordDate) && record.ID >= c.ID {
				continue
			}
		}
		matches = append(matches, record)
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].RecordDate.Equal(matches[j].RecordDate) {
			return matches[i].RecordDate.After(matches[j].RecordDate)
		}
		return matches[i].ID > matches[j].ID
	})

	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}

	var next *domain.Cursor
	if filter.Limit > 0 && len(matches) == filter.Limit {
		last := matches[len(matches)-1]
		next = &domain.Cursor{RecordDate: last.RecordDate, ID: last.ID}
	}
	return matches, next, nil
}

// UpdateRecord implements domain.RecordRepository.
func (s *Store) UpdateRecord(ctx context.Context, record domain.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[record.ID]
	if !ok || existing.UserID != record.UserID {
		return domain.ErrRecordNotFound
	}
	s.records[record.ID] = record
	return nil
}

// SumCounters implements domain.RecordRepository.
func (s *Store) SumCounters(ctx context.Context, userID string, from, to time.Time) (domain.Counters, error) {
	records, err := s.RecordsBetween(ctx, userID, from, to)
	if err != nil {
		return domain.Counters{}, err
	}
	var total domain.Counters
	for _, record := range records {
		total = total.Add(record.Counters)
	}
	return total, nil
}

// RecordsBetween implements domain.RecordRepository.
func (s *Store) RecordsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ActivityRecord, 0)
	for _, record := range s.records {
		if record.UserID != userID {
			continue
		}
		if record.RecordDate.Before(from) || !record.RecordDate.Before(to) {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordDate.Equal(out[j].RecordDate) {
			return out[i].RecordDate.Before(out[j].RecordDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FindTarget implements domain.TargetRepository.
func (s *Store) FindTarget(ctx context.Context, userID string, ym domain.YearMonth) (*domain.MonthlyTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.targets[targetKey{userID: userID, yearMonth: ym.String()}]
	if !ok {
		return nil, nil
	}
	return &target, nil
}

// GetOrCreateTarget implements domain.TargetRepository.
func (s *Store) GetOrCreateTarget(ctx context.Context, userID string, ym domain.YearMonth) (domain.MonthlyTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getOrCreateLocked(userID, ym), nil
}

// UpsertTarget implements domain.TargetRepository.
func (s *Store) UpsertTarget(ctx context.Context, userID string, ym domain.YearMonth, value int64) (domain.MonthlyTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.getOrCreateLocked(userID, ym)
	target.TargetAcquisition = value
	target.UpdatedAt = s.now().UTC()
	s.targets[targetKey{userID: userID, yearMonth: ym.String()}] = target
	return target, nil
}

func (s *Store) getOrCreateLocked(userID string, ym domain.YearMonth) domain.MonthlyTarget {
	key := targetKey{userID: userID, yearMonth: ym.String()}
	if target, ok := s.targets[key]; ok {
		return target
	}
	s.nextTargetID++
	now := s.now().UTC()
	target := domain.MonthlyTarget{
		ID:        s.nextTargetID,
		UserID:    userID,
		YearMonth: ym,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.targets[key] = target
	return target
}

// TargetCount reports how many targets are stored for the user.
func (s *Store) TargetCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.targets {
		if key.userID == userID {
			count++
		}
	}
	return count
}
