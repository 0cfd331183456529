package sqlite

import (
	"context"
	"errors"
	"time"

	"share_runner/internal/model"
)

func (s *Store) UpsertSweep(ctx context.Context, sw model.SweepState) error {
	if sw.ID == "" {
		return errors.New("sweep id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sweeps (id, started_at, finished_at, accounts, completed, shared, failed, refreshed, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			accounts = excluded.accounts,
			completed = excluded.completed,
			shared = excluded.shared,
			failed = excluded.failed,
			refreshed = excluded.refreshed,
			last_error = excluded.last_error
	`, sw.ID, sw.StartedAtMs, sw.FinishedAtMs, sw.Accounts, sw.Completed, sw.Shared, sw.Failed, sw.Refreshed, sw.LastError)
	return err
}

func (s *Store) ListSweeps(ctx context.Context, limit int) ([]model.SweepState, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, accounts, completed, shared, failed, refreshed, last_error
		FROM sweeps ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SweepState
	for rows.Next() {
		var sw model.SweepState
		if err := rows.Scan(&sw.ID, &sw.StartedAtMs, &sw.FinishedAtMs, &sw.Accounts, &sw.Completed, &sw.Shared, &sw.Failed, &sw.Refreshed, &sw.LastError); err != nil {
			return nil, err
		}
		out = append(out, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type ShareRecord struct {
	SweepID   string  `json:"sweepId"`
	TokenHash string  `json:"-"`
	Quality   int     `json:"quality"`
	Points    float64 `json:"points"`
	Attempts  int     `json:"attempts"`
	OK        bool    `json:"ok"`
	Message   string  `json:"message,omitempty"`
	CreatedAt int64   `json:"createdAtMs"`
}

func (s *Store) RecordShare(ctx context.Context, r ShareRecord) error {
	if r.CreatedAt <= 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	ok := 0
	if r.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shares (sweep_id, token_hash, quality, points, attempts, ok, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.SweepID, r.TokenHash, r.Quality, r.Points, r.Attempts, ok, r.Message, r.CreatedAt)
	return err
}

func (s *Store) ListShares(ctx context.Context, tokenHash string, limit int) ([]ShareRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sweep_id, token_hash, quality, points, attempts, ok, message, created_at
		FROM shares WHERE token_hash = ? ORDER BY id DESC LIMIT ?
	`, tokenHash, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ShareRecord
	for rows.Next() {
		var (
			r  ShareRecord
			ok int
		)
		if err := rows.Scan(&r.SweepID, &r.TokenHash, &r.Quality, &r.Points, &r.Attempts, &ok, &r.Message, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.OK = ok == 1
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type MissionCompletion struct {
	SweepID   string `json:"sweepId"`
	TokenHash string `json:"-"`
	MissionID string `json:"missionId"`
	Message   string `json:"message,omitempty"`
	CreatedAt int64  `json:"createdAtMs"`
}

func (s *Store) RecordMissionCompletion(ctx context.Context, m MissionCompletion) error {
	if m.MissionID == "" {
		return errors.New("mission id is required")
	}
	if m.CreatedAt <= 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mission_completions (sweep_id, token_hash, mission_id, message, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.SweepID, m.TokenHash, m.MissionID, m.Message, m.CreatedAt)
	return err
}

func (s *Store) ListMissionCompletions(ctx context.Context, limit int) ([]MissionCompletion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sweep_id, token_hash, mission_id, message, created_at
		FROM mission_completions ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MissionCompletion
	for rows.Next() {
		var m MissionCompletion
		if err := rows.Scan(&m.SweepID, &m.TokenHash, &m.MissionID, &m.Message, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
