package telegram

import (
	"strings"
	"unicode/utf16"

	"github.com/go-telegram/bot/models"
)

// FormatEntities strips **bold** and `code` markers from text and returns
// the plain text with matching Telegram entities. Offsets are in UTF-16
// code units. Markers without a closing partner are kept as literal text.
func FormatEntities(text string) (string, []models.MessageEntity) {
	var (
		out      strings.Builder
		entities []models.MessageEntity
		offset   int
	)
	write := func(s string) {
		out.WriteString(s)
		for _, r := range s {
			offset += utf16.RuneLen(r)
		}
	}

	for i := 0; i < len(text); {
		marker, kind := markerAt(text, i)
		if marker == "" {
			end := nextMarker(text, i+1)
			write(text[i:end])
			i = end
			continue
		}

		start := i + len(marker)
		closing := strings.Index(text[start:], marker)
		if closing <= 0 {
			write(marker)
			i = start
			continue
		}

		inner := text[start : start+closing]
		entityOffset := offset
		write(inner)
		entities = append(entities, models.MessageEntity{
			Type:   kind,
			Offset: entityOffset,
			Length: offset - entityOffset,
		})
		i = start + closing + len(marker)
	}
	return out.String(), entities
}

// MessageLength is the size Telegram counts for content: UTF-16 code units
// of the text left once markers become entities
func MessageLength(content string) int {
	text, _ := FormatEntities(content)
	return len(utf16.Encode([]rune(text)))
}

func markerAt(text string, i int) (string, models.MessageEntityType) {
	switch {
	case strings.HasPrefix(text[i:], "**"):
		return "**", models.MessageEntityTypeBold
	case text[i] == '`':
		return "`", models.MessageEntityTypeCode
	default:
		return "", ""
	}
}

func nextMarker(text string, from int) int {
	if from >= len(text) {
		return len(text)
	}
	idx := strings.IndexAny(text[from:], "*`")
	for idx >= 0 {
		pos := from + idx
		if text[pos] == '`' || strings.HasPrefix(text[pos:], "**") {
			return pos
		}
		next := strings.IndexAny(text[pos+1:], "*`")
		if next < 0 {
			break
		}
		idx = pos + 1 + next - from
	}
	return len(text)
}
