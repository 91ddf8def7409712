package instagram

import "strings"

const messageLimit = 1000

// SplitMessage режет текст на части в пределах лимита сообщения Direct.
// Предпочитает резать по переводам строк, чтобы абзацы не разрывались.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= messageLimit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + messageLimit
		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		split := lastBreak(runes, start, end, '\n')
		if split == -1 {
			split = lastBreak(runes, start, end, ' ')
		}
		if split == -1 {
			split = end
		}

		if chunk := strings.TrimSpace(string(runes[start:split])); chunk != "" {
			parts = append(parts, chunk)
		}

		start = split
		for start < len(runes) && (runes[start] == '\n' || runes[start] == ' ') {
			start++
		}
	}
	return parts
}

func lastBreak(runes []rune, start, end int, sep rune) int {
	for i := end; i > start; i-- {
		if runes[i-1] == sep {
			return i
		}
	}
	return -1
}
