package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"share_runner/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAccountState_UpsertAccumulatesMissions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	h := TokenHash("token-aaaaaaaaaaaa")

	if err := s.UpsertAccountState(ctx, h, model.AccountState{Index: 1, TokenPrefix: "token-aaaa", Points: 10, Quality: 70, MissionsCompleted: 2, Phase: model.PhaseIdle}); err != nil {
		t.Fatal(err)
	}
	// 分享失败时 points/quality 为 0，不应覆盖上一次的值
	if err := s.UpsertAccountState(ctx, h, model.AccountState{Index: 1, TokenPrefix: "token-aaaa", MissionsCompleted: 1, LastError: "max retries", Phase: model.PhaseIdle}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListAccountStates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
	st := got[0]
	if st.Points != 10 || st.Quality != 70 || st.MissionsCompleted != 3 || st.LastError != "max retries" {
		t.Fatalf("state = %+v", st)
	}
	if st.UpdatedAtMs <= 0 {
		t.Fatal("updatedAt not set")
	}
}

func TestSweeps_UpsertAndList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.UpsertSweep(ctx, model.SweepState{ID: "a", StartedAtMs: 1, Accounts: 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertSweep(ctx, model.SweepState{ID: "a", StartedAtMs: 1, FinishedAtMs: 5, Accounts: 2, Shared: 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertSweep(ctx, model.SweepState{ID: "b", StartedAtMs: 10}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertSweep(ctx, model.SweepState{}); err == nil {
		t.Fatal("expected error for empty id")
	}

	got, err := s.ListSweeps(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].FinishedAtMs != 5 || got[1].Shared != 2 {
		t.Fatalf("sweeps = %+v", got)
	}
}

func TestSharesAndMissions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	h := TokenHash("tok")

	if err := s.RecordShare(ctx, ShareRecord{SweepID: "a", TokenHash: h, Quality: 88, Points: 3, Attempts: 2, OK: true}); err != nil {
		t.Fatal(err)
	}
	shares, err := s.ListShares(ctx, h, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(shares) != 1 || !shares[0].OK || shares[0].Attempts != 2 || shares[0].CreatedAt <= 0 {
		t.Fatalf("shares = %+v", shares)
	}

	if err := s.RecordMissionCompletion(ctx, MissionCompletion{SweepID: "a", TokenHash: h, MissionID: "m1", Message: "done"}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordMissionCompletion(ctx, MissionCompletion{SweepID: "a", TokenHash: h}); err == nil {
		t.Fatal("expected error for empty mission id")
	}
	missions, err := s.ListMissionCompletions(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(missions) != 1 || missions[0].MissionID != "m1" {
		t.Fatalf("missions = %+v", missions)
	}
}

func TestTokenHash_Stable(t *testing.T) {
	if TokenHash("x") != TokenHash("x") || TokenHash("x") == TokenHash("y") {
		t.Fatal("hash should be deterministic and distinct")
	}
	if len(TokenHash("x")) != 40 {
		t.Fatalf("len = %d", len(TokenHash("x")))
	}
}
