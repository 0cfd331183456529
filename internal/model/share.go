package model

import "math/rand"

const (
	MinQuality = 60
	MaxQuality = 99
)

type ShareReport struct {
	Quality int `json:"quality"`
}

// NewShareReport 在 [MinQuality, MaxQuality] 内均匀取值。
func NewShareReport(r *rand.Rand) ShareReport {
	span := MaxQuality - MinQuality + 1
	var n int
	if r != nil {
		n = r.Intn(span)
	} else {
		n = rand.Intn(span)
	}
	return ShareReport{Quality: MinQuality + n}
}

type ShareResult struct {
	Message string  `json:"message"`
	Points  float64 `json:"points"`
}
