package service

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// TitleLimit is the longest title rendered unshortened
	TitleLimit = 70

	truncatedMarker = "\n…(truncated)"
	truncateReserve = 20

	timestampLayout = "2006-01-02 15:04:05 MST"
	updatedLayout   = "2006-01-02 15:04"
)

// ShortenTitle cuts titles over TitleLimit runes to TitleLimit-1 runes plus an ellipsis
func ShortenTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= TitleLimit {
		return title
	}
	return string(runes[:TitleLimit-1]) + "…"
}

// RuneLength measures content in runes
func RuneLength(content string) int {
	return utf8.RuneCountInString(content)
}

// Truncate bounds content to limit runes. Longer content is cut to
// limit-20 runes and gets a fixed marker.
func Truncate(content string, limit int) string {
	return TruncateMeasured(content, limit, RuneLength)
}

// TruncateMeasured bounds content to limit as counted by measure. Longer
// content is cut to at most limit-20 and gets a fixed marker.
func TruncateMeasured(content string, limit int, measure func(string) int) string {
	if measure(content) <= limit {
		return content
	}
	budget := max(limit-truncateReserve, 0)
	runes := []rune(content)
	n := min(len(runes), budget)
	for n > 0 {
		excess := measure(string(runes[:n])) - budget
		if excess <= 0 {
			break
		}
		// each rune counts for at most two units
		n -= max((excess+1)/2, 1)
	}
	return string(runes[:max(n, 0)]) + truncatedMarker
}

// RelativeTime describes how long ago t was, seen from now
func RelativeTime(t, now time.Time) string {
	delta := now.Sub(t)
	if delta < 0 {
		return "future"
	}
	if days := int(delta.Hours() / 24); days > 0 {
		return plural(days, "day") + " ago"
	}
	if hours := int(delta.Hours()); hours > 0 {
		return plural(hours, "hour") + " ago"
	}
	if minutes := int(delta.Minutes()); minutes > 0 {
		return plural(minutes, "minute") + " ago"
	}
	return "just now"
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// DeepLink builds the tracker search URL listing the open issues of a filter set
func DeepLink(webURL, repo string, filters []string) string {
	var q strings.Builder
	q.WriteString("repo:" + repo + " is:issue is:open")
	for _, f := range filters {
		if strings.ContainsAny(f, " \t") {
			f = `"` + f + `"`
		}
		q.WriteString(" label:" + f)
	}
	return strings.TrimSuffix(webURL, "/") + "/" + repo + "/issues?q=" + url.QueryEscape(q.String())
}
