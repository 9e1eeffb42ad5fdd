package registry

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRetention is returned for retention periods that are not ISO-8601
// date durations.
var ErrInvalidRetention = errors.New("invalid retention period")

// maxRetentionDays bounds a retention period at about 10000 years.
const maxRetentionDays = 10000 * 366

var retentionPattern = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?$`)

// Retention is a calendar duration with no time component, e.g. P1Y6M.
type Retention struct {
	Years  int
	Months int
	Days   int
}

// ParseRetention parses an ISO-8601 duration made of years, months, weeks and days.
// Weeks are folded into days.
func ParseRetention(s string) (Retention, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if strings.Contains(s, "T") {
		return Retention{}, fmt.Errorf("%w: %q has a time component", ErrInvalidRetention, s)
	}
	m := retentionPattern.FindStringSubmatch(s)
	if m == nil || s == "P" {
		return Retention{}, fmt.Errorf("%w: %q", ErrInvalidRetention, s)
	}

	var parts [4]int
	for i := range parts {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Retention{}, fmt.Errorf("%w: %q", ErrInvalidRetention, s)
		}
		if n > maxRetentionDays {
			return Retention{}, fmt.Errorf("%w: %q is too long", ErrInvalidRetention, s)
		}
		parts[i] = n
	}
	if parts[0]*366+parts[1]*31+parts[2]*7+parts[3] > maxRetentionDays {
		return Retention{}, fmt.Errorf("%w: %q is too long", ErrInvalidRetention, s)
	}
	return Retention{Years: parts[0], Months: parts[1], Days: parts[2]*7 + parts[3]}, nil
}

// MustParseRetention is like ParseRetention but panics on error.
func MustParseRetention(s string) Retention {
	r, err := ParseRetention(s)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the canonical ISO-8601 form. The zero retention is "P0D".
func (r Retention) String() string {
	if r.IsZero() {
		return "P0D"
	}
	var b strings.Builder
	b.WriteByte('P')
	if r.Years > 0 {
		b.WriteString(strconv.Itoa(r.Years) + "Y")
	}
	if r.Months > 0 {
		b.WriteString(strconv.Itoa(r.Months) + "M")
	}
	if r.Days > 0 {
		b.WriteString(strconv.Itoa(r.Days) + "D")
	}
	return b.String()
}

// IsZero reports whether the retention is empty.
func (r Retention) IsZero() bool {
	return r.Years == 0 && r.Months == 0 && r.Days == 0
}

// AddTo returns t plus the retention period, using calendar arithmetic.
func (r Retention) AddTo(t time.Time) time.Time {
	return t.AddDate(r.Years, r.Months, r.Days)
}

// SubtractFrom returns t minus the retention period.
func (r Retention) SubtractFrom(t time.Time) time.Time {
	return t.AddDate(-r.Years, -r.Months, -r.Days)
}

// Expired reports whether a retention period that started at since has run out at now.
// The boundary is inclusive.
func (r Retention) Expired(since, now time.Time) bool {
	return !now.Before(r.AddTo(since))
}

// MarshalText implements encoding.TextMarshaler.
func (r Retention) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Retention) UnmarshalText(text []byte) error {
	parsed, err := ParseRetention(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
