// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/opportune-hq/opportuned/internal/models"
)

// Insert stores a newly consumed opportunity. The store assigns the ID and
// stamps the initial review status; callers never choose either.
func (db *DB) Insert(ctx context.Context, eventType string, data map[string]any) (*models.Opportunity, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	now := time.Now().UTC()
	opp := &models.Opportunity{
		ID:            uuid.New().String(),
		EventType:     eventType,
		Data:          data,
		Status:        models.StatusInReview,
		StatusHistory: []models.StatusChange{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO opportunities (id, event_type, data, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		opp.ID, opp.EventType, string(payload), string(opp.Status), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert opportunity: %w", err)
	}

	return opp, nil
}

// GetByID fetches a single opportunity with its full review history.
// Returns ErrNotFound when the ID is unknown.
func (db *DB) GetByID(ctx context.Context, id string) (*models.Opportunity, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, event_type, data, status, created_at, updated_at
		 FROM opportunities WHERE id = ?`, id)

	opp, err := scanOpportunity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch opportunity: %w", err)
	}

	history, err := db.loadHistory(ctx, []string{opp.ID})
	if err != nil {
		return nil, err
	}
	attachHistory(opp, history[opp.ID])

	return opp, nil
}

// ListFilter narrows list queries.
type ListFilter struct {
	Status   models.Status
	Category string
	Limit    int
	Offset   int
}

// List returns opportunities matching the filter, newest first, with
// review history attached.
func (db *DB) List(ctx context.Context, filter ListFilter) ([]*models.Opportunity, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		conds = append(conds, "json_extract_string(data, '$.category') = ?")
		args = append(args, filter.Category)
	}

	query := `SELECT id, event_type, data, status, created_at, updated_at FROM opportunities`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	return db.queryOpportunities(ctx, query, args...)
}

// Count returns the number of opportunities matching the filter,
// ignoring pagination.
func (db *DB) Count(ctx context.Context, filter ListFilter) (int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		conds = append(conds, "json_extract_string(data, '$.category') = ?")
		args = append(args, filter.Category)
	}

	query := `SELECT COUNT(*) FROM opportunities`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count opportunities: %w", err)
	}
	return count, nil
}

// ListChangedBy returns opportunities whose review history contains at
// least one change made by userID, most recently touched first.
func (db *DB) ListChangedBy(ctx context.Context, userID string, limit, offset int) ([]*models.Opportunity, error) {
	query := `SELECT DISTINCT o.id, o.event_type, o.data, o.status, o.created_at, o.updated_at
		 FROM opportunities o
		 JOIN status_changes sc ON sc.opportunity_id = o.id
		 WHERE sc.changed_by = ?
		 ORDER BY o.updated_at DESC, o.id
		 LIMIT ? OFFSET ?`
	return db.queryOpportunities(ctx, query, userID, limit, offset)
}

// CountChangedBy returns the number of opportunities with at least one
// history entry made by userID.
func (db *DB) CountChangedBy(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT opportunity_id) FROM status_changes WHERE changed_by = ?`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count changed opportunities: %w", err)
	}
	return count, nil
}

// UpdateStatus moves an opportunity from expected to target and appends the
// history entry, in one transaction. The UPDATE is conditional on the row
// still carrying expected, which makes concurrent transitions race-free.
//
// Returns ErrNotFound for unknown IDs, ErrNoChange when the row already
// carries target, and ErrConflict when a concurrent transition moved the
// row somewhere else.
func (db *DB) UpdateStatus(ctx context.Context, id string, expected, target models.Status, changedBy string) (*models.StatusChange, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE opportunities SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(target), now, id, string(expected))
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		// The row moved under us or never existed. Re-read to tell the
		// three cases apart.
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM opportunities WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to re-read status: %w", err)
		}
		if models.Status(current) == target {
			return nil, ErrNoChange
		}
		return nil, ErrConflict
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO status_changes (opportunity_id, seq, from_status, to_status, changed_by, changed_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM status_changes WHERE opportunity_id = ?), ?, ?, ?, ?)`,
		id, id, string(expected), string(target), changedBy, now)
	if err != nil {
		return nil, fmt.Errorf("failed to append status change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	return &models.StatusChange{
		From:      expected,
		To:        target,
		ChangedBy: changedBy,
		ChangedAt: now,
	}, nil
}

// queryOpportunities runs a multi-row opportunity query and attaches
// review history to each result.
func (db *DB) queryOpportunities(ctx context.Context, query string, args ...any) ([]*models.Opportunity, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		opps []*models.Opportunity
		ids  []string
	)
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		opps = append(opps, opp)
		ids = append(ids, opp.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate opportunities: %w", err)
	}

	if len(ids) > 0 {
		history, err := db.loadHistory(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, opp := range opps {
			attachHistory(opp, history[opp.ID])
		}
	}

	return opps, nil
}

// loadHistory fetches status changes for the given IDs, ordered oldest
// first per opportunity.
func (db *DB) loadHistory(ctx context.Context, ids []string) (map[string][]models.StatusChange, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT opportunity_id, from_status, to_status, changed_by, changed_at
		 FROM status_changes
		 WHERE opportunity_id IN (`+placeholders+`)
		 ORDER BY opportunity_id, seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	history := make(map[string][]models.StatusChange, len(ids))
	for rows.Next() {
		var (
			oppID, from, to, changedBy string
			changedAt                  time.Time
		)
		if err := rows.Scan(&oppID, &from, &to, &changedBy, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		history[oppID] = append(history[oppID], models.StatusChange{
			From:      models.Status(from),
			To:        models.Status(to),
			ChangedBy: changedBy,
			ChangedAt: changedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status history: %w", err)
	}
	return history, nil
}

// attachHistory denormalizes the history slice onto the document.
func attachHistory(opp *models.Opportunity, history []models.StatusChange) {
	if history == nil {
		history = []models.StatusChange{}
	}
	opp.StatusHistory = history
	if len(history) > 0 {
		last := history[len(history)-1]
		opp.LastStatusChange = &last
	}
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanOpportunity reads one opportunity row, decoding the JSON payload.
func scanOpportunity(row rowScanner) (*models.Opportunity, error) {
	var (
		opp                  models.Opportunity
		payload, status      string
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&opp.ID, &opp.EventType, &payload, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &opp.Data); err != nil {
		return nil, fmt.Errorf("failed to decode payload for %s: %w", opp.ID, err)
	}
	opp.Status = models.Status(status)
	opp.CreatedAt = createdAt.UTC()
	opp.UpdatedAt = updatedAt.UTC()
	return &opp, nil
}
