package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
)

// dialect holds the statements that differ between database engines
type dialect struct {
	name   string
	schema []string
	// claim must insert a row and affect zero rows when the key exists
	claim string
}

// SQLStore is a database/sql implementation of core.Store
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	opts    Options
	logger  *zap.Logger
	stopCh  chan struct{}
	done    chan struct{}
}

func newSQLStore(db *sql.DB, d dialect, opts Options, logger *zap.Logger) (*SQLStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}

	s := &SQLStore{
		db:      db,
		dialect: d,
		opts:    opts,
		logger:  logger,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	go startCleanupTask(s, opts.CleanupFreq, s.stopCh, s.done, logger)

	return s, nil
}

// AppendRecord appends a learning record
func (s *SQLStore) AppendRecord(ctx context.Context, record core.LearningRecord) error {
	fp, err := json.Marshal(record.Fingerprint)
	if err != nil {
		return fmt.Errorf("failed to encode fingerprint: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO learning_records (fingerprint, action, approved, recorded_at)
		VALUES (?, ?, ?, ?)
	`, string(fp), string(record.Action), record.Approved, record.RecordedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert learning record: %w", err)
	}
	return nil
}

// LoadRecords returns at most limit of the newest records, oldest first
func (s *SQLStore) LoadRecords(ctx context.Context, limit int) ([]core.LearningRecord, error) {
	if limit <= 0 {
		limit = s.opts.Retention
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, action, approved, recorded_at
		FROM learning_records
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query learning records: %w", err)
	}
	defer rows.Close()

	var records []core.LearningRecord
	for rows.Next() {
		var (
			fp         string
			action     string
			approved   bool
			recordedAt int64
		)
		if err := rows.Scan(&fp, &action, &approved, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learning record: %w", err)
		}
		r := core.LearningRecord{
			Action:     core.ActionKind(action),
			Approved:   approved,
			RecordedAt: time.Unix(0, recordedAt).UTC(),
		}
		if err := json.Unmarshal([]byte(fp), &r.Fingerprint); err != nil {
			return nil, fmt.Errorf("failed to decode fingerprint: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read learning records: %w", err)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// PruneRecords keeps only the newest keep records
func (s *SQLStore) PruneRecords(ctx context.Context, keep int) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM learning_records
		WHERE id NOT IN (
			SELECT id FROM (
				SELECT id FROM learning_records ORDER BY id DESC LIMIT ?
			) AS newest
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune learning records: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("Pruned learning records", zap.Int64("pruned_count", n))
	}
	return nil
}

// GetSetting returns a stored setting
func (s *SQLStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT setting_value FROM settings WHERE setting_key = ?
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", core.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a setting
func (s *SQLStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		REPLACE INTO settings (setting_key, setting_value) VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// GetProfile returns the profile of a sender
func (s *SQLStore) GetProfile(ctx context.Context, address string) (*core.SenderProfile, error) {
	p := &core.SenderProfile{Address: address}
	var last, total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT delivered, read_count, interactions, last_interaction, total_response_ns, responses
		FROM sender_profiles
		WHERE address = ?
	`, address).Scan(&p.Delivered, &p.Read, &p.Interactions, &last, &total, &p.Responses)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	if last != 0 {
		p.LastInteraction = time.Unix(0, last).UTC()
	}
	p.TotalResponseTime = time.Duration(total)
	return p, nil
}

// SaveProfile stores the profile of a sender
func (s *SQLStore) SaveProfile(ctx context.Context, p *core.SenderProfile) error {
	var last int64
	if !p.LastInteraction.IsZero() {
		last = p.LastInteraction.UnixNano()
	}
	_, err := s.db.ExecContext(ctx, `
		REPLACE INTO sender_profiles
			(address, delivered, read_count, interactions, last_interaction, total_response_ns, responses)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.Address, p.Delivered, p.Read, p.Interactions, last, int64(p.TotalResponseTime), p.Responses)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Claim records a dispatch key, returning false if it was already present
func (s *SQLStore) Claim(ctx context.Context, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.dialect.claim, key, time.Now().UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to claim dispatch: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return n == 1, nil
}

// Release removes a dispatch key
func (s *SQLStore) Release(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dispatch_claims WHERE claim_key = ?`, key); err != nil {
		return fmt.Errorf("failed to release dispatch claim: %w", err)
	}
	return nil
}

// SetState stores the local state of a message
func (s *SQLStore) SetState(ctx context.Context, st *core.MailboxState) error {
	var until int64
	if !st.Until.IsZero() {
		until = st.Until.UnixNano()
	}
	_, err := s.db.ExecContext(ctx, `
		REPLACE INTO mailbox_state (message_id, state, until_ns, note, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, st.MessageID, st.State, until, st.Note, st.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save mailbox state: %w", err)
	}
	return nil
}

// GetState returns the local state of a message
func (s *SQLStore) GetState(ctx context.Context, messageID string) (*core.MailboxState, error) {
	st := &core.MailboxState{MessageID: messageID}
	var until, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT state, until_ns, note, updated_at FROM mailbox_state WHERE message_id = ?
	`, messageID).Scan(&st.State, &until, &st.Note, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query mailbox state: %w", err)
	}

	if until != 0 {
		st.Until = time.Unix(0, until).UTC()
	}
	st.UpdatedAt = time.Unix(0, updated).UTC()
	return st, nil
}

// Cleanup prunes learning records beyond retention and forgets expired claims
func (s *SQLStore) Cleanup(ctx context.Context) error {
	if s.opts.Retention > 0 {
		if err := s.PruneRecords(ctx, s.opts.Retention); err != nil {
			return err
		}
	}
	if s.opts.ClaimTTL <= 0 {
		return nil
	}

	cutoff := time.Now().Add(-s.opts.ClaimTTL).UnixNano()
	result, err := s.db.ExecContext(ctx, `DELETE FROM dispatch_claims WHERE claimed_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up dispatch claims: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		s.logger.Debug("Cleaned up expired dispatch claims", zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

// Stop stops the background cleanup task and closes the database connection
func (s *SQLStore) Stop() {
	close(s.stopCh)
	<-s.done
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.String("dialect", s.dialect.name), zap.Error(err))
	}
}
