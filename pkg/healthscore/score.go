// Package healthscore ranks accounts by their fitness to receive a publish
// attempt now. The score only affects dispatch order, never eligibility.
package healthscore

import (
	"time"

	"github.com/storylinehq/publisher/domains/account"
)

const (
	base = 100.0

	tokenExpiryPenalty = 25.0

	quotaHighPenalty   = 15.0 // above 70% usage
	quotaSeverePenalty = 30.0 // above 90% usage

	failurePenaltyStep = 10.0 // per failure beyond the second
	failurePenaltyCap  = 30.0

	inactivityPenaltyPerDay = 1.0
	inactivitySevereDays    = 30

	engagementPenalty   = 5.0
	engagementMinVolume = 10
	engagementFloor     = 0.01
)

// RecentOutcome is a trimmed view of a publish record for this account.
type RecentOutcome struct {
	Success   bool
	Timestamp time.Time
}

type Options struct {
	// ExpiryWindow is the full-penalty window for near-expiring tokens.
	ExpiryWindow time.Duration
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ExpiryWindow <= 0 {
		o.ExpiryWindow = 7 * 24 * time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Score computes the composite health score for one account, clamped to
// [0,100]. Penalties are additive from a base of 100.
func Score(acc account.Account, recent []RecentOutcome, opts Options) float64 {
	opts = opts.withDefaults()
	now := opts.Now()

	score := base
	score -= tokenPenalty(acc, now, opts.ExpiryWindow)
	score -= quotaPenalty(acc)
	score -= failurePenalty(recent)
	score -= inactivityPenalty(acc, now)
	score -= qualityPenalty(acc)

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func tokenPenalty(acc account.Account, now time.Time, window time.Duration) float64 {
	if acc.TokenExpiresWithin(now, window) {
		return tokenExpiryPenalty
	}
	return 0
}

func quotaPenalty(acc account.Account) float64 {
	usage := quotaUsage(acc.DailyUsed, acc.DailyLimit)
	if monthly := quotaUsage(acc.MonthlyUsed, acc.MonthlyLimit); monthly > usage {
		usage = monthly
	}
	switch {
	case usage > 0.9:
		return quotaSeverePenalty
	case usage > 0.7:
		return quotaHighPenalty
	}
	return 0
}

// quotaUsage tolerates zero, negative, or missing limits.
func quotaUsage(used, limit int) float64 {
	if limit <= 0 || used < 0 {
		return 0
	}
	return float64(used) / float64(limit)
}

func failurePenalty(recent []RecentOutcome) float64 {
	failures := 0
	for _, r := range recent {
		if !r.Success {
			failures++
		}
	}
	if failures < 3 {
		return 0
	}
	penalty := float64(failures-2) * failurePenaltyStep
	if penalty > failurePenaltyCap {
		return failurePenaltyCap
	}
	return penalty
}

func inactivityPenalty(acc account.Account, now time.Time) float64 {
	if acc.LastPublishAt == nil || acc.LastPublishAt.IsZero() {
		return 0
	}
	days := int(now.Sub(*acc.LastPublishAt).Hours() / 24)
	if days <= 0 {
		return 0
	}
	if days > inactivitySevereDays {
		days = inactivitySevereDays
	}
	return float64(days) * inactivityPenaltyPerDay
}

// qualityPenalty applies a small penalty when the account posts at meaningful
// volume but sees near-zero engagement.
func qualityPenalty(acc account.Account) float64 {
	if acc.MonthlyUsed >= engagementMinVolume && acc.AvgEngagement < engagementFloor {
		return engagementPenalty
	}
	return 0
}
