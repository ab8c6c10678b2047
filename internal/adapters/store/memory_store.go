package store

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
)

// MemoryStore is an in-memory implementation of core.Store
type MemoryStore struct {
	mu       sync.RWMutex
	records  []core.LearningRecord
	settings map[string]string
	profiles map[string]core.SenderProfile
	claims   map[string]time.Time
	states   map[string]core.MailboxState

	opts   Options
	logger *zap.Logger
	stopCh chan struct{}
	done   chan struct{}
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(opts Options, logger *zap.Logger) *MemoryStore {
	s := &MemoryStore{
		settings: make(map[string]string),
		profiles: make(map[string]core.SenderProfile),
		claims:   make(map[string]time.Time),
		states:   make(map[string]core.MailboxState),
		opts:     opts,
		logger:   logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	go startCleanupTask(s, opts.CleanupFreq, s.stopCh, s.done, logger)

	return s
}

// AppendRecord appends a learning record
func (s *MemoryStore) AppendRecord(_ context.Context, record core.LearningRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.Fingerprint.SubjectKeywords = append([]string(nil), record.Fingerprint.SubjectKeywords...)
	s.records = append(s.records, record)
	return nil
}

// LoadRecords returns at most limit of the newest records, oldest first
func (s *MemoryStore) LoadRecords(_ context.Context, limit int) ([]core.LearningRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if limit > 0 && len(s.records) > limit {
		start = len(s.records) - limit
	}
	out := make([]core.LearningRecord, len(s.records)-start)
	copy(out, s.records[start:])
	return out, nil
}

// PruneRecords keeps only the newest keep records
func (s *MemoryStore) PruneRecords(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep >= 0 && len(s.records) > keep {
		s.records = append([]core.LearningRecord(nil), s.records[len(s.records)-keep:]...)
	}
	return nil
}

// GetSetting returns a stored setting
func (s *MemoryStore) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.settings[key]
	if !ok {
		return "", core.ErrNotFound
	}
	return v, nil
}

// SetSetting stores a setting
func (s *MemoryStore) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = value
	return nil
}

// GetProfile returns the profile of a sender
func (s *MemoryStore) GetProfile(_ context.Context, address string) (*core.SenderProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[address]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &p, nil
}

// SaveProfile stores the profile of a sender
func (s *MemoryStore) SaveProfile(_ context.Context, profile *core.SenderProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[profile.Address] = *profile
	return nil
}

// Claim records a dispatch key, returning false if it was already present
func (s *MemoryStore) Claim(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.claims[key]; ok {
		return false, nil
	}
	s.claims[key] = time.Now()
	return true, nil
}

// Release removes a dispatch key
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claims, key)
	return nil
}

// SetState stores the local state of a message
func (s *MemoryStore) SetState(_ context.Context, state *core.MailboxState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.MessageID] = *state
	return nil
}

// GetState returns the local state of a message
func (s *MemoryStore) GetState(_ context.Context, messageID string) (*core.MailboxState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[messageID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &st, nil
}

// Cleanup prunes learning records beyond retention and forgets expired claims
func (s *MemoryStore) Cleanup(ctx context.Context) error {
	if s.opts.Retention > 0 {
		if err := s.PruneRecords(ctx, s.opts.Retention); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	if s.opts.ClaimTTL > 0 {
		cutoff := time.Now().Add(-s.opts.ClaimTTL)
		for key, at := range s.claims {
			if at.Before(cutoff) {
				delete(s.claims, key)
				expired++
			}
		}
	}

	s.logger.Debug("Cleaned up store",
		zap.Int("records", len(s.records)),
		zap.Int("expired_claims", expired))
	return nil
}

// Stop stops the background cleanup task
func (s *MemoryStore) Stop() {
	close(s.stopCh)
	<-s.done
}
