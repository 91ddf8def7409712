package onboarding

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	time12hRe = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
	time24hRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// ParseTime переводит время из свободного текста в формат ЧЧ:ММ:00.
// Понимает 12-часовой ("8am", "7:30 PM") и 24-часовой ("21:30") форматы.
// Часовой пояс здесь не учитывается.
func ParseTime(text string) (string, bool) {
	text = strings.TrimSpace(text)

	if m := time12hRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return "", false
		}
		switch meridiem := strings.ToLower(m[3]); {
		case meridiem == "pm" && hour != 12:
			hour += 12
		case meridiem == "am" && hour == 12:
			hour = 0
		}
		return formatTime(hour, minute), true
	}

	if m := time24hRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return "", false
		}
		return formatTime(hour, minute), true
	}

	return "", false
}

// FormatDisplayTime показывает сохранённое время ЧЧ:ММ:00 в 12-часовом виде, например "8:00 AM".
func FormatDisplayTime(canonical string) string {
	var hour, minute int
	if _, err := fmt.Sscanf(canonical, "%d:%d", &hour, &minute); err != nil {
		return canonical
	}
	meridiem := "AM"
	if hour >= 12 {
		meridiem = "PM"
	}
	h12 := hour % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, minute, meridiem)
}

func formatTime(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d:00", hour, minute)
}
