package model

type MissionStatus string

const MissionStatusAvailable MissionStatus = "available"

type Mission struct {
	ID     string        `json:"missionId"`
	Status MissionStatus `json:"status"`
}

func (m Mission) Available() bool {
	return m.Status == MissionStatusAvailable
}

// AvailableMissionIDs 保持服务端返回的顺序。
func AvailableMissionIDs(missions []Mission) []string {
	out := make([]string, 0, len(missions))
	for _, m := range missions {
		if m.Available() {
			out = append(out, m.ID)
		}
	}
	return out
}

type CompleteResult struct {
	Message string `json:"message"`
}
