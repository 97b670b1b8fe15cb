package registry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is a calendar offset such as "3 days" or "1 month".
type Period struct {
	Years  int
	Months int
	Days   int
}

// IsZero reports whether the period adds nothing.
func (p Period) IsZero() bool {
	return p.Years == 0 && p.Months == 0 && p.Days == 0
}

// AddTo returns t shifted by the period.
func (p Period) AddTo(t time.Time) time.Time {
	return t.AddDate(p.Years, p.Months, p.Days)
}

// String formats the period the way ParsePeriod reads it.
func (p Period) String() string {
	var parts []string
	if p.Years != 0 {
		parts = append(parts, fmt.Sprintf("%+d years", p.Years))
	}
	if p.Months != 0 {
		parts = append(parts, fmt.Sprintf("%+d months", p.Months))
	}
	if p.Days != 0 {
		parts = append(parts, fmt.Sprintf("%+d days", p.Days))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

// ParsePeriod parses text like "+3 days", "1 week" or "2 months 1 day".
// Empty text and "none" yield the zero Period.
func ParsePeriod(text string) (Period, error) {
	var p Period
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(fields) == 0 || (len(fields) == 1 && fields[0] == "none") {
		return p, nil
	}
	if len(fields)%2 != 0 {
		return p, fmt.Errorf("%w: %q", ErrInvalidPeriod, text)
	}

	for i := 0; i < len(fields); i += 2 {
		n, err := strconv.Atoi(fields[i])
		if err != nil {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, text)
		}
		switch strings.TrimSuffix(fields[i+1], "s") {
		case "day":
			p.Days += n
		case "week":
			p.Days += 7 * n
		case "month":
			p.Months += n
		case "year":
			p.Years += n
		default:
			return Period{}, fmt.Errorf("%w: unknown unit in %q", ErrInvalidPeriod, text)
		}
	}
	return p, nil
}
