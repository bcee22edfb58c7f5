package session

import "fmt"

// usZones maps whole-hour UTC offsets to US abbreviations: standard, daylight.
var usZones = map[int][2]string{
	-5:  {"EST", "EDT"},
	-6:  {"CST", "CDT"},
	-7:  {"MST", "MDT"},
	-8:  {"PST", "PDT"},
	-9:  {"AKST", "AKDT"},
	-10: {"HST", "HST"},
}

// Zone derives the display zone from a browser-reported offset.
//
// tzOffset follows JavaScript's Date.getTimezoneOffset: minutes, positive
// west of UTC (New York in winter reports 300). name is a fixed offset such
// as "UTC-05:00"; abbrev is the US abbreviation for whole-hour offsets the
// table knows and "UTC±h" otherwise.
func Zone(tzOffset int, dst bool) (name, abbrev string) {
	return zoneName(tzOffset), zoneAbbrev(-tzOffset/60, dst)
}

func zoneName(tzOffset int) string {
	minutes := -tzOffset
	sign := '+'
	if minutes < 0 {
		sign = '-'
		minutes = -minutes
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, minutes/60, minutes%60)
}

func zoneAbbrev(hours int, dst bool) string {
	if names, ok := usZones[hours]; ok {
		if dst {
			return names[1]
		}
		return names[0]
	}
	if hours == 0 {
		return "UTC"
	}
	return fmt.Sprintf("UTC%+d", hours)
}
