package provider

import (
	"context"

	"share_runner/internal/model"
)

type Provider interface {
	Name() string

	CheckMissions(ctx context.Context, account model.Account) ([]model.Mission, error)
	CompleteMission(ctx context.Context, account model.Account, missionID string) (model.CompleteResult, error)
	ShareBandwidth(ctx context.Context, account model.Account, report model.ShareReport) (model.ShareResult, error)
	Login(ctx context.Context, cred model.Credential, proxy string) (string, error)
}
