package segment

import (
	"regexp"
	"strconv"
	"strings"

	"studyCafeCRM/domain"
)

const maxDayTicketHours = 12

var (
	fixedKeywords = []string{"고정", "지정석", "fixed"}
	termKeywords  = []string{"기간", "정기", "주간", "월간", "개월", "weekly", "monthly"}
	dayKeywords   = []string{"당일", "일일", "하루", "1일", "daily", "day"}

	termPattern = regexp.MustCompile(`\d+\s*주`)
	hourPattern = regexp.MustCompile(`(\d+)\s*(?:시간|hours?|hrs?|h)`)
)

// InferTicketType guesses the ticket subtype from a free-text ticket name.
// Checks run fixed, term, hour count, day keywords; anything unmatched is a
// time ticket.
func InferTicketType(name string) domain.TicketType {
	n := strings.ToLower(strings.TrimSpace(name))

	if containsAny(n, fixedKeywords) {
		return domain.TicketTypeFixed
	}

	if containsAny(n, termKeywords) || termPattern.MatchString(n) {
		return domain.TicketTypeTerm
	}

	if m := hourPattern.FindStringSubmatch(n); m != nil {
		if hours, err := strconv.Atoi(m[1]); err == nil && hours <= maxDayTicketHours {
			return domain.TicketTypeDay
		}
	}

	if containsAny(n, dayKeywords) {
		return domain.TicketTypeDay
	}

	return domain.TicketTypeTime
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
