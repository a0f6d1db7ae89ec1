package cmd

import "time"

var base = time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)

func timeMinutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
