package targeting

import (
	"context"
	"fmt"
	"time"

	"studyCafeCRM/pkg/logger"
)

// ActionLogReader returns the phones a flow acted on at or after since.
// Entries whose outcome is failed must not be returned.
type ActionLogReader interface {
	ActedPhonesSince(ctx context.Context, flowID uint, since time.Time) ([]string, error)
}

// Guard keeps a flow from hitting the same customer twice inside its
// deduplicate window. Windows are per flow.
type Guard struct {
	logs ActionLogReader
}

func NewGuard(logs ActionLogReader) *Guard {
	return &Guard{logs: logs}
}

// Apply splits candidates into accepted and skipped, both in input order.
// A nil or non-positive dedupDays accepts everything.
func (g *Guard) Apply(
	ctx context.Context,
	flowID uint,
	candidates []string,
	dedupDays *int,
	now time.Time,
) (accepted, skipped []string, err error) {
	accepted = make([]string, 0, len(candidates))
	skipped = []string{}

	if dedupDays == nil || *dedupDays <= 0 || len(candidates) == 0 {
		accepted = append(accepted, candidates...)
		return accepted, skipped, nil
	}

	since := WindowStart(now, *dedupDays)
	acted, err := g.logs.ActedPhonesSince(ctx, flowID, since)
	if err != nil {
		return nil, nil, fmt.Errorf("load action log of flow %d: %w", flowID, err)
	}

	recent := setOf(acted)
	for _, p := range candidates {
		if _, hit := recent[p]; hit {
			skipped = append(skipped, p)
			continue
		}
		accepted = append(accepted, p)
	}

	if len(skipped) > 0 {
		DedupSkipped.Add(float64(len(skipped)))
		logger.InfoCtx(ctx, "dedup_skipped",
			"flow_id", flowID,
			"window_days", *dedupDays,
			"skipped", len(skipped),
			"accepted", len(accepted),
		)
	}

	return accepted, skipped, nil
}

// WindowStart is the earliest instant that still counts as recent for a
// window of days. The window slides with now and ignores calendar days.
func WindowStart(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}
