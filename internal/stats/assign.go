package stats

import (
	"unicode/utf16"

	"github.com/adflow/adflow/internal/flow"
)

// HashSessionID maps a session ID to a bucket in [0, 100). It runs the
// classic 31-multiplier string hash over UTF-16 code units with 32-bit
// signed overflow, so buckets match what the browser widget computes.
func HashSessionID(sessionID string) int {
	var h int32
	for _, unit := range utf16.Encode([]rune(sessionID)) {
		h = (h << 5) - h + int32(unit)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return int(abs % 100)
}

// Assign deterministically picks the flow type for a session. Progressive
// owns buckets [0, p), minimal [p, p+m) and front_loaded the rest.
func Assign(sessionID string, split flow.TrafficSplit) flow.Type {
	bucket := HashSessionID(sessionID)
	p, m := split.Buckets()

	switch {
	case bucket < p:
		return flow.TypeProgressive
	case bucket < p+m:
		return flow.TypeMinimal
	default:
		return flow.TypeFrontLoaded
	}
}
