package segment

import (
	"studyCafeCRM/pkg/config"
	"studyCafeCRM/pkg/logger"
)

// Thresholds drive the visit segment rules. All values are whole days or
// visit counts.
type Thresholds struct {
	ChurnDays        int
	AtRiskDays       int
	NewCustomerDays  int
	RecentWindowDays int
	FrequentVisits   int
	RegularVisits    int
}

const (
	defaultChurnDays        = 30
	defaultAtRiskDays       = 7
	defaultNewCustomerDays  = 7
	defaultRecentWindowDays = 30
	defaultFrequentVisits   = 20
	defaultRegularVisits    = 10
)

func DefaultThresholds() Thresholds {
	return Thresholds{
		ChurnDays:        defaultChurnDays,
		AtRiskDays:       defaultAtRiskDays,
		NewCustomerDays:  defaultNewCustomerDays,
		RecentWindowDays: defaultRecentWindowDays,
		FrequentVisits:   defaultFrequentVisits,
		RegularVisits:    defaultRegularVisits,
	}
}

// ThresholdsFromConfig starts from the defaults and takes every positive
// override from cfg.
func ThresholdsFromConfig(cfg config.SegmentConfig) Thresholds {
	t := DefaultThresholds()

	if cfg.ChurnDays > 0 {
		t.ChurnDays = cfg.ChurnDays
	}
	if cfg.AtRiskDays > 0 {
		t.AtRiskDays = cfg.AtRiskDays
	}
	if cfg.NewCustomerDays > 0 {
		t.NewCustomerDays = cfg.NewCustomerDays
	}
	if cfg.RecentWindowDays > 0 {
		t.RecentWindowDays = cfg.RecentWindowDays
	}
	if cfg.FrequentVisits > 0 {
		t.FrequentVisits = cfg.FrequentVisits
	}
	if cfg.RegularVisits > 0 {
		t.RegularVisits = cfg.RegularVisits
	}

	// at-risk must stay inside the churn window or churned shadows it
	if t.AtRiskDays >= t.ChurnDays {
		logger.Warn("segment_thresholds_ignored",
			"reason", "SEGMENT_AT_RISK_DAYS must be below SEGMENT_CHURN_DAYS",
			"at_risk_days", t.AtRiskDays,
			"churn_days", t.ChurnDays,
		)
		t.AtRiskDays = defaultAtRiskDays
		t.ChurnDays = defaultChurnDays
	}
	if t.RegularVisits >= t.FrequentVisits {
		logger.Warn("segment_thresholds_ignored",
			"reason", "SEGMENT_REGULAR_VISITS must be below SEGMENT_FREQUENT_VISITS",
			"regular_visits", t.RegularVisits,
			"frequent_visits", t.FrequentVisits,
		)
		t.RegularVisits = defaultRegularVisits
		t.FrequentVisits = defaultFrequentVisits
	}

	return t
}
