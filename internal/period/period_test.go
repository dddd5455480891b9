package period

import (
	"testing"
	"time"
)

func TestKeys(t *testing.T) {
	cases := []struct {
		name     string
		utc      string
		timezone string
		daily    string
		monthly  string
	}{
		{
			name:     "utc stays on the same date",
			utc:      "2025-09-04T12:00:00Z",
			timezone: "UTC",
			daily:    "2025-09-04",
			monthly:  "2025-09",
		},
		{
			name:     "chicago evening is the previous local date",
			utc:      "2025-01-01T03:00:00Z",
			timezone: "America/Chicago",
			daily:    "2024-12-31",
			monthly:  "2024-12",
		},
		{
			name:     "tokyo morning is the next local date",
			utc:      "2025-09-04T20:30:00Z",
			timezone: "Asia/Tokyo",
			daily:    "2025-09-05",
			monthly:  "2025-09",
		},
		{
			name:     "half hour offset zone",
			utc:      "2025-03-31T18:45:00Z",
			timezone: "Asia/Kolkata",
			daily:    "2025-04-01",
			monthly:  "2025-04",
		},
		{
			name:     "during us dst spring forward",
			utc:      "2025-03-09T08:30:00Z",
			timezone: "America/Chicago",
			daily:    "2025-03-09",
			monthly:  "2025-03",
		},
		{
			name:     "just before dst fall back midnight",
			utc:      "2025-11-02T05:59:00Z",
			timezone: "America/Chicago",
			daily:    "2025-11-01",
			monthly:  "2025-11",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			at, err := time.Parse(time.RFC3339, tc.utc)
			if err != nil {
				t.Fatalf("parse instant: %v", err)
			}

			daily, monthly, err := Keys(at, tc.timezone)
			if err != nil {
				t.Fatalf("keys failed: %v", err)
			}
			if daily != tc.daily {
				t.Fatalf("daily key: expected %s got %s", tc.daily, daily)
			}
			if monthly != tc.monthly {
				t.Fatalf("monthly key: expected %s got %s", tc.monthly, monthly)
			}
		})
	}
}

func TestKeysUnknownTimezone(t *testing.T) {
	if _, _, err := Keys(time.Now().UTC(), "Mars/Olympus_Mons"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestKeysSameInstantDifferentZones(t *testing.T) {
	at, err := time.Parse(time.RFC3339, "2025-07-01T02:00:00Z")
	if err != nil {
		t.Fatalf("parse instant: %v", err)
	}

	chicagoDaily, _, err := Keys(at, "America/Chicago")
	if err != nil {
		t.Fatalf("chicago keys: %v", err)
	}
	sydneyDaily, _, err := Keys(at, "Australia/Sydney")
	if err != nil {
		t.Fatalf("sydney keys: %v", err)
	}

	if chicagoDaily == sydneyDaily {
		t.Fatalf("expected different daily keys, both were %s", chicagoDaily)
	}
	if chicagoDaily != "2025-06-30" {
		t.Fatalf("chicago daily: expected 2025-06-30 got %s", chicagoDaily)
	}
	if sydneyDaily != "2025-07-01" {
		t.Fatalf("sydney daily: expected 2025-07-01 got %s", sydneyDaily)
	}
}
