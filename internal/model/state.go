package model

type AccountPhase string

const (
	PhaseCheckingMissions   AccountPhase = "checking_missions"
	PhaseRefreshingToken    AccountPhase = "refreshing_token"
	PhaseCompletingMissions AccountPhase = "completing_missions"
	PhaseSharingBandwidth   AccountPhase = "sharing_bandwidth"
	PhaseIdle               AccountPhase = "idle"
)

type AccountState struct {
	Index             int          `json:"index"`
	TokenPrefix       string       `json:"tokenPrefix"`
	Proxy             string       `json:"proxy,omitempty"`
	Phase             AccountPhase `json:"phase"`
	Points            float64      `json:"points"`
	Quality           int          `json:"quality,omitempty"`
	MissionsCompleted int          `json:"missionsCompleted"`
	LastError         string       `json:"lastError,omitempty"`
	UpdatedAtMs       int64        `json:"updatedAtMs"`
}

type SweepState struct {
	ID           string `json:"id"`
	StartedAtMs  int64  `json:"startedAtMs"`
	FinishedAtMs int64  `json:"finishedAtMs,omitempty"`
	Accounts     int    `json:"accounts"`
	Completed    int    `json:"completed"`
	Shared       int    `json:"shared"`
	Failed       int    `json:"failed"`
	Refreshed    int    `json:"refreshed"`
	LastError    string `json:"lastError,omitempty"`
}

type EngineState struct {
	Running  bool           `json:"running"`
	Sweep    *SweepState    `json:"sweep,omitempty"`
	Accounts []AccountState `json:"accounts"`
}
