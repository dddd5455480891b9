package period

import (
	"fmt"
	"time"
)

// Keys derives the accounting buckets a transaction falls into for the
// organization's local calendar. dailyKey is the local date (YYYY-MM-DD) and
// monthlyKey the local year-month (YYYY-MM). Two transactions at the same UTC
// instant may land in different buckets for organizations in different
// timezones.
func Keys(at time.Time, timezone string) (dailyKey, monthlyKey string, err error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return "", "", fmt.Errorf("unknown timezone %q: %w", timezone, err)
	}

	local := at.In(loc)
	return local.Format("2006-01-02"), local.Format("2006-01"), nil
}
