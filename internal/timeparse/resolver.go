// Package timeparse turns free-form Spanish or English date/time text into
// absolute UTC instants, interpreting everything as wall-clock time in the
// business timezone.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnparseable is returned when no date or time can be extracted.
var ErrUnparseable = errors.New("timeparse: no date or time found")

// Resolution is the outcome of parsing one user phrase.
type Resolution struct {
	// UTC is the resolved start instant.
	UTC time.Time
	// Rollover is true when the phrase named a calendar date that already
	// passed this year and UTC holds the same date one year later. The
	// caller must confirm with the user before treating it as final.
	Rollover bool
}

// Resolver parses user text against a business timezone and hours.
type Resolver struct {
	loc       *time.Location
	openHour  int
	closeHour int
}

// NewResolver builds a resolver for the given business location and
// nominal opening hours (e.g. 9 and 18).
func NewResolver(loc *time.Location, openHour, closeHour int) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if openHour <= 0 && closeHour <= 0 {
		openHour, closeHour = 9, 18
	}
	return &Resolver{loc: loc, openHour: openHour, closeHour: closeHour}
}

// Location returns the business timezone the resolver interprets text in.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// defaultHour is the assumed start when the user gives no usable time.
// Mid-afternoon avoids booking 01:00 appointments out of "at 1".
const defaultHour = 13

type dateKind int

const (
	dateNone dateKind = iota
	// dateCalendar is an explicit day (and optionally month/year); a past
	// result rolls over to the next year.
	dateCalendar
	// dateRelative covers hoy/mañana/weekday phrasing; a past result
	// prefers the next future occurrence instead of rolling over.
	dateRelative
)

type dateSpec struct {
	kind      dateKind
	day       int
	month     time.Month
	year      int // 0 when the user gave none
	deltaDays int // for dateRelative
	weekday   time.Weekday
	isWeekday bool
}

type clockSpec struct {
	found    bool
	hour     int
	minute   int
	meridiem bool // an explicit am/pm indicator was present
}

// Resolve parses text as a local wall-clock date/time relative to now and
// returns the equivalent UTC instant.
func (r *Resolver) Resolve(text string, now time.Time) (Resolution, error) {
	folded := foldText(text)
	clock, rest := extractClock(folded)
	nowLocal := now.In(r.loc)
	date := extractDate(rest)

	if date.kind == dateNone && !clock.found {
		return Resolution{}, ErrUnparseable
	}

	hour, minute := defaultHour, 0
	if clock.found {
		hour, minute = clock.hour, clock.minute
		if !clock.meridiem && (hour < r.openHour || hour >= r.closeHour) {
			// "at 1" means 13:00, not an 01:00 artifact of 12-hour input.
			hour, minute = defaultHour, 0
		}
	}

	year, month, day := nowLocal.Year(), nowLocal.Month(), nowLocal.Day()
	switch date.kind {
	case dateCalendar:
		day = date.day
		if date.month != 0 {
			month = date.month
		}
		if date.year != 0 {
			year = date.year
		}
	case dateRelative:
		if date.isWeekday {
			date.deltaDays = int((date.weekday - nowLocal.Weekday() + 7) % 7)
		}
		target := nowLocal.AddDate(0, 0, date.deltaDays)
		year, month, day = target.Year(), target.Month(), target.Day()
	}

	local := time.Date(year, month, day, hour, minute, 0, 0, r.loc)
	resolved := local.UTC()
	if !resolved.Before(now.UTC()) {
		return Resolution{UTC: resolved}, nil
	}

	switch date.kind {
	case dateCalendar:
		// The date already passed; propose the same month/day in the year
		// after now and let the caller ask for confirmation. The candidate
		// year comes from now, not from the parsed text, so an explicit
		// stale year can never produce a candidate that is itself past.
		next := time.Date(nowLocal.Year()+1, month, day, hour, minute, 0, 0, r.loc)
		return Resolution{UTC: next.UTC(), Rollover: true}, nil
	default:
		// Ambiguous phrases prefer the next future occurrence.
		step := 1
		if date.kind == dateRelative && date.isWeekday {
			step = 7
		}
		next := time.Date(year, month, day+step, hour, minute, 0, 0, r.loc)
		return Resolution{UTC: next.UTC()}, nil
	}
}

// DayWindow returns the business-hours window of the local day containing
// utc, expressed back in UTC.
func (r *Resolver) DayWindow(utc time.Time) (time.Time, time.Time) {
	local := utc.In(r.loc)
	open := time.Date(local.Year(), local.Month(), local.Day(), r.openHour, 0, 0, 0, r.loc)
	close := time.Date(local.Year(), local.Month(), local.Day(), r.closeHour, 0, 0, 0, r.loc)
	return open.UTC(), close.UTC()
}

var spanishDays = [...]string{"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado"}

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// FormatLocal renders a UTC instant as a Spanish display string in the
// business timezone ("Jueves 03 de julio a las 04:00 PM"). Display only;
// never stored or compared.
func (r *Resolver) FormatLocal(utc time.Time) string {
	local := utc.In(r.loc)
	hour12 := local.Hour() % 12
	if hour12 == 0 {
		hour12 = 12
	}
	meridiem := "AM"
	if local.Hour() >= 12 {
		meridiem = "PM"
	}
	return fmt.Sprintf("%s %02d de %s a las %02d:%02d %s",
		spanishDays[local.Weekday()], local.Day(), spanishMonths[local.Month()-1],
		hour12, local.Minute(), meridiem)
}

// FormatLocalTime renders only the clock portion ("04:15 PM") in the
// business timezone, used when listing same-day alternatives.
func (r *Resolver) FormatLocalTime(utc time.Time) string {
	local := utc.In(r.loc)
	hour12 := local.Hour() % 12
	if hour12 == 0 {
		hour12 = 12
	}
	meridiem := "AM"
	if local.Hour() >= 12 {
		meridiem = "PM"
	}
	return fmt.Sprintf("%02d:%02d %s", hour12, local.Minute(), meridiem)
}

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u", "Ñ", "n",
)

func foldText(text string) string {
	return accentFolder.Replace(strings.ToLower(strings.TrimSpace(text)))
}

var (
	meridiemWordRE = regexp.MustCompile(`(?:de|en|por)\s+la\s+(manana|madrugada|tarde|noche)`)
	clockColonRE   = regexp.MustCompile(`\b(\d{1,2})[:.](\d{2})\s*(a\.?m\.?|p\.?m\.?)?`)
	clockAmPmRE    = regexp.MustCompile(`\b(\d{1,2})\s*(a\.?m\.?|p\.?m\.?)`)
	clockPrepRE    = regexp.MustCompile(`\b(?:a\s+las?|at)\s+(\d{1,2})\b`)
)

// extractClock pulls a time of day out of the text and returns the text
// with the matched fragments removed so digits are not reused as days.
func extractClock(text string) (clockSpec, string) {
	var spec clockSpec

	wordMeridiem := ""
	if m := meridiemWordRE.FindStringSubmatch(text); m != nil {
		wordMeridiem = m[1]
		text = strings.Replace(text, m[0], " ", 1)
	}

	switch {
	case strings.Contains(text, "mediodia") || strings.Contains(text, "noon"):
		return clockSpec{found: true, hour: 12, meridiem: true}, text
	case strings.Contains(text, "medianoche") || strings.Contains(text, "midnight"):
		return clockSpec{found: true, hour: 0, meridiem: true}, text
	}

	if m := clockColonRE.FindStringSubmatch(text); m != nil {
		spec.found = true
		spec.hour, _ = strconv.Atoi(m[1])
		spec.minute, _ = strconv.Atoi(m[2])
		spec.meridiem = m[3] != ""
		spec.applyMeridiem(m[3])
		text = strings.Replace(text, m[0], " ", 1)
	} else if m := clockAmPmRE.FindStringSubmatch(text); m != nil {
		spec.found = true
		spec.hour, _ = strconv.Atoi(m[1])
		spec.meridiem = true
		spec.applyMeridiem(m[2])
		text = strings.Replace(text, m[0], " ", 1)
	} else if m := clockPrepRE.FindStringSubmatch(text); m != nil {
		spec.found = true
		spec.hour, _ = strconv.Atoi(m[1])
		text = strings.Replace(text, m[0], " ", 1)
	}

	if spec.found && !spec.meridiem && wordMeridiem != "" {
		spec.meridiem = true
		switch wordMeridiem {
		case "tarde", "noche":
			if spec.hour < 12 {
				spec.hour += 12
			}
		default: // manana, madrugada
			if spec.hour == 12 {
				spec.hour = 0
			}
		}
	}
	if spec.hour > 23 {
		spec.found = false
	}
	return spec, text
}

func (c *clockSpec) applyMeridiem(raw string) {
	switch strings.ReplaceAll(raw, ".", "") {
	case "pm":
		if c.hour < 12 {
			c.hour += 12
		}
	case "am":
		if c.hour == 12 {
			c.hour = 0
		}
	}
}

var monthNames = map[string]time.Month{
	"enero": time.January, "january": time.January, "jan": time.January, "ene": time.January,
	"febrero": time.February, "february": time.February, "feb": time.February,
	"marzo": time.March, "march": time.March, "mar": time.March,
	"abril": time.April, "april": time.April, "abr": time.April, "apr": time.April,
	"mayo": time.May, "may": time.May,
	"junio": time.June, "june": time.June, "jun": time.June,
	"julio": time.July, "july": time.July, "jul": time.July,
	"agosto": time.August, "august": time.August, "ago": time.August, "aug": time.August,
	"septiembre": time.September, "september": time.September, "sep": time.September, "sept": time.September,
	"octubre": time.October, "october": time.October, "oct": time.October,
	"noviembre": time.November, "november": time.November, "nov": time.November,
	"diciembre": time.December, "december": time.December, "dic": time.December, "dec": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"domingo": time.Sunday, "sunday": time.Sunday,
	"lunes": time.Monday, "monday": time.Monday,
	"martes": time.Tuesday, "tuesday": time.Tuesday,
	"miercoles": time.Wednesday, "wednesday": time.Wednesday,
	"jueves": time.Thursday, "thursday": time.Thursday,
	"viernes": time.Friday, "friday": time.Friday,
	"sabado": time.Saturday, "saturday": time.Saturday,
}

var (
	dayMonthRE  = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:de\s+)?([a-z]{3,10})\.?(?:\s+(?:de|del)\s+(\d{4})|\s+(\d{4}))?`)
	monthDayRE  = regexp.MustCompile(`\b([a-z]{3,10})\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:\s*,?\s*(\d{4}))?`)
	numericRE   = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})(?:[/-](\d{2,4}))?\b`)
	bareDayRE   = regexp.MustCompile(`\b(?:el\s+|dia\s+)?(\d{1,2})\b`)
	weekdayRE   = regexp.MustCompile(`\b(domingo|sunday|lunes|monday|martes|tuesday|miercoles|wednesday|jueves|thursday|viernes|friday|sabado|saturday)\b`)
	relativeMap = []struct {
		token string
		delta int
	}{
		{"pasado manana", 2}, {"day after tomorrow", 2},
		{"manana", 1}, {"tomorrow", 1},
		{"hoy", 0}, {"today", 0},
	}
)

// extractDate finds a date in text that has already had clock fragments
// removed. Bare day numbers resolve within the current month.
func extractDate(text string) dateSpec {
	for _, rel := range relativeMap {
		if strings.Contains(text, rel.token) {
			return dateSpec{kind: dateRelative, deltaDays: rel.delta}
		}
	}
	if m := weekdayRE.FindStringSubmatch(text); m != nil {
		return dateSpec{kind: dateRelative, isWeekday: true, weekday: weekdayNames[m[1]]}
	}
	if m := dayMonthRE.FindStringSubmatch(text); m != nil {
		if month, ok := monthNames[m[2]]; ok {
			return calendarSpec(m[1], month, m[3]+m[4])
		}
	}
	if m := monthDayRE.FindStringSubmatch(text); m != nil {
		if month, ok := monthNames[m[1]]; ok {
			return calendarSpec(m[2], month, m[3])
		}
	}
	if m := numericRE.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if day >= 1 && day <= 31 && month >= 1 && month <= 12 {
			spec := dateSpec{kind: dateCalendar, day: day, month: time.Month(month)}
			if m[3] != "" {
				spec.year = normalizeYear(m[3])
			}
			return spec
		}
	}
	if m := bareDayRE.FindStringSubmatch(text); m != nil {
		if day, _ := strconv.Atoi(m[1]); day >= 1 && day <= 31 {
			return dateSpec{kind: dateCalendar, day: day}
		}
	}
	return dateSpec{}
}

func calendarSpec(dayRaw string, month time.Month, yearRaw string) dateSpec {
	day, _ := strconv.Atoi(dayRaw)
	if day < 1 || day > 31 {
		return dateSpec{}
	}
	spec := dateSpec{kind: dateCalendar, day: day, month: month}
	if yearRaw = strings.TrimSpace(yearRaw); yearRaw != "" {
		spec.year = normalizeYear(yearRaw)
	}
	return spec
}

func normalizeYear(raw string) int {
	year, _ := strconv.Atoi(raw)
	if year < 100 {
		year += 2000
	}
	return year
}
