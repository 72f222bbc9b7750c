package engine

import (
	"fmt"
	"time"
)

var kst = time.FixedZone("KST", 9*60*60)

// nextReset returns the next wall-clock occurrence of hhmm ("15:04") in KST.
func nextReset(now time.Time, hhmm string) (time.Time, error) {
	at, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reset time %q: %w", hhmm, err)
	}
	local := now.In(kst)
	next := time.Date(local.Year(), local.Month(), local.Day(), at.Hour(), at.Minute(), 0, 0, kst)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

func ptr(v float64) *float64 { return &v }
