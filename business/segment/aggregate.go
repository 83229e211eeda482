package segment

import (
	"sort"
	"time"

	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/timeutil"
)

// Aggregate reduces one customer's raw history into CustomerStats. Input
// order does not matter; calendar questions are answered in loc.
func Aggregate(visits []domain.Visit, purchases []domain.Purchase, loc *time.Location) domain.CustomerStats {
	if loc == nil {
		loc = timeutil.LoadLocation("")
	}

	vs := sortedVisits(visits)
	ps := sortedPurchases(purchases)

	stats := domain.CustomerStats{
		TotalVisits: len(vs),
	}

	if len(vs) > 0 {
		first := vs[0].VisitedAt
		last := vs[len(vs)-1].VisitedAt
		stats.FirstVisitAt = &first
		stats.LastVisitAt = &last
	}

	stats.AvgDurationMinutes = avgDuration(vs)
	stats.PeakHour = peakHour(vs, loc)

	visitTimes := make([]time.Time, 0, len(vs))
	seats := make([]string, 0, len(vs))
	for _, v := range vs {
		visitTimes = append(visitTimes, v.VisitedAt)
		if v.SeatID != nil && *v.SeatID != "" {
			seats = append(seats, *v.SeatID)
		}
	}
	stats.VisitCycleDays = cycleDays(visitTimes, loc)
	if seat, ok := mostFrequent(seats); ok {
		stats.FavoriteSeat = &seat
	}

	purchaseTimes := make([]time.Time, 0, len(ps))
	tickets := make([]string, 0, len(ps))
	for _, p := range ps {
		purchaseTimes = append(purchaseTimes, p.PurchasedAt)
		stats.TotalSpent += p.Amount
		stats.TotalPointsUsed += p.PointsUsed
		// refunds and zero-cost grants do not express a preference
		if p.Amount > 0 && p.TicketName != "" {
			tickets = append(tickets, p.TicketName)
		}
	}
	stats.PurchaseCycleDays = cycleDays(purchaseTimes, loc)
	stats.MonthlyAvgSpent = monthlyAvgSpent(ps, stats.TotalSpent, loc)
	if ticket, ok := mostFrequent(tickets); ok {
		ticketType := InferTicketType(ticket)
		stats.FavoriteTicket = &ticket
		stats.FavoriteTicketType = &ticketType
	}

	return stats
}

// CountVisitsSince counts visits in [since, until].
func CountVisitsSince(visits []domain.Visit, since, until time.Time) int {
	n := 0
	for _, v := range visits {
		if !v.VisitedAt.Before(since) && !v.VisitedAt.After(until) {
			n++
		}
	}
	return n
}

func sortedVisits(visits []domain.Visit) []domain.Visit {
	out := make([]domain.Visit, len(visits))
	copy(out, visits)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].VisitedAt.Before(out[j].VisitedAt)
	})
	return out
}

func sortedPurchases(purchases []domain.Purchase) []domain.Purchase {
	out := make([]domain.Purchase, len(purchases))
	copy(out, purchases)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PurchasedAt.Before(out[j].PurchasedAt)
	})
	return out
}

// avgDuration ignores untracked and non-positive durations.
func avgDuration(visits []domain.Visit) *float64 {
	total, n := 0, 0
	for _, v := range visits {
		if v.DurationMinutes != nil && *v.DurationMinutes > 0 {
			total += *v.DurationMinutes
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := float64(total) / float64(n)
	return &avg
}

func peakHour(visits []domain.Visit, loc *time.Location) *int {
	hours := make([]int, 0, len(visits))
	for _, v := range visits {
		hours = append(hours, v.VisitedAt.In(loc).Hour())
	}
	h, ok := mostFrequent(hours)
	if !ok {
		return nil
	}
	return &h
}

// cycleDays averages the positive calendar-day gaps between consecutive
// events. Same-day repeats are skipped rather than counted as zero.
func cycleDays(sorted []time.Time, loc *time.Location) *float64 {
	total, n := 0, 0
	for i := 1; i < len(sorted); i++ {
		gap := timeutil.CalendarDaysBetween(sorted[i-1], sorted[i], loc)
		if gap > 0 {
			total += gap
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := float64(total) / float64(n)
	return &avg
}

func monthlyAvgSpent(sorted []domain.Purchase, total float64, loc *time.Location) *float64 {
	if len(sorted) == 0 {
		return nil
	}
	months := timeutil.InclusiveMonthSpan(sorted[0].PurchasedAt, sorted[len(sorted)-1].PurchasedAt, loc)
	avg := total / float64(months)
	return &avg
}

// mostFrequent returns the value with the highest count; on a tie the value
// seen first wins.
func mostFrequent[T comparable](values []T) (T, bool) {
	var zero T
	if len(values) == 0 {
		return zero, false
	}

	counts := make(map[T]int, len(values))
	order := make([]T, 0, len(values))
	for _, v := range values {
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}

	best := order[0]
	for _, v := range order[1:] {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best, true
}
