package ratelimit

import "time"

// Snapshot is the vendor's view of the remaining request budget. It is
// fetched on demand and never cached.
type Snapshot struct {
	RemainingIPHits    int `json:"remaining_ip_hits"`
	RemainingUserHits  int `json:"remaining_user_hits"`
	ResetTimeInSeconds int `json:"reset_time_in_seconds"`
	IPLimit            int `json:"ip_limit,omitempty"`
	UserLimit          int `json:"user_limit,omitempty"`
}

// HasHeadroom reports whether both budgets still allow more than one call.
// When true the rate limit was per-resource and a short pause suffices.
func (s Snapshot) HasHeadroom() bool {
	return s.RemainingIPHits > 1 && s.RemainingUserHits > 1
}

// ResetIn returns the time until the budget window resets
func (s Snapshot) ResetIn() time.Duration {
	if s.ResetTimeInSeconds <= 0 {
		return 0
	}
	return time.Duration(s.ResetTimeInSeconds) * time.Second
}

// UntilNextWindow returns the time from now to the top of the next hour in
// now's location. Vendor quotas are hourly and aligned to wall-clock hours.
func UntilNextWindow(now time.Time) time.Duration {
	top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	return top.Add(time.Hour).Sub(now)
}
