package match

import (
	"strings"
	"time"

	"github.com/lysyi3m/match-watch/app/database"
)

var kickoffLayouts = []string{
	"02.01.06 15:04",
	"02.01.2006 15:04",
	"2006-01-02 15:04",
}

// Kickoff returns the scheduled start of a match in loc. Records without a
// usable date or time report false.
func Kickoff(m *database.Match, loc *time.Location) (time.Time, bool) {
	date := strings.TrimSpace(m.Date)
	clock := strings.TrimSpace(m.Time)
	if date == "" || clock == "" {
		return time.Time{}, false
	}

	value := date + " " + clock
	for _, layout := range kickoffLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
