package domain

import (
	"time"
)

// UsageCounter tracks one product's consumption within the current day
// bucket. Used is monotonically increasing within the bucket; a new
// bucket is created, not mutated in place, once the reset time passes.
type UsageCounter struct {
	UserID    string    `json:"user_id"`
	ProductID ProductID `json:"product_id"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}

// Remaining returns the actions left in the current bucket
func (u UsageCounter) Remaining() int {
	if u.Used >= u.Limit {
		return 0
	}
	return u.Limit - u.Used
}

// Percentage returns the consumed share of the quota, capped at 100
func (u UsageCounter) Percentage() float64 {
	if u.Limit <= 0 {
		return 0
	}
	pct := float64(u.Used) / float64(u.Limit) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// Exhausted reports whether the quota is fully consumed
func (u UsageCounter) Exhausted() bool {
	return u.Used >= u.Limit
}
