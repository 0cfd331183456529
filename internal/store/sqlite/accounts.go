package sqlite

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"

	"share_runner/internal/model"
)

// TokenHash 账号在库里的主键；库里不保存完整 token。
func TokenHash(token string) string {
	sum := sha1.Sum([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *Store) UpsertAccountState(ctx context.Context, tokenHash string, st model.AccountState) error {
	if tokenHash == "" {
		return errors.New("token hash is required")
	}
	if st.UpdatedAtMs <= 0 {
		st.UpdatedAtMs = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (token_hash, token_prefix, idx, proxy, phase, points, quality, missions_completed, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token_hash) DO UPDATE SET
			token_prefix = excluded.token_prefix,
			idx = excluded.idx,
			proxy = excluded.proxy,
			phase = excluded.phase,
			points = CASE WHEN excluded.points > 0 THEN excluded.points ELSE accounts.points END,
			quality = CASE WHEN excluded.quality > 0 THEN excluded.quality ELSE accounts.quality END,
			missions_completed = accounts.missions_completed + excluded.missions_completed,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, tokenHash, st.TokenPrefix, st.Index, st.Proxy, string(st.Phase), st.Points, st.Quality, st.MissionsCompleted, st.LastError, st.UpdatedAtMs)
	return err
}

// ListAccountStates MissionsCompleted 为累计值。
func (s *Store) ListAccountStates(ctx context.Context) ([]model.AccountState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token_prefix, idx, proxy, phase, points, quality, missions_completed, last_error, updated_at
		FROM accounts ORDER BY idx ASC, updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AccountState
	for rows.Next() {
		var (
			st    model.AccountState
			phase string
		)
		if err := rows.Scan(&st.TokenPrefix, &st.Index, &st.Proxy, &phase, &st.Points, &st.Quality, &st.MissionsCompleted, &st.LastError, &st.UpdatedAtMs); err != nil {
			return nil, err
		}
		st.Phase = model.AccountPhase(phase)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
