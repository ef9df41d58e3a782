package telegram

import "strings"

// MessageLimit — максимальная длина текстового сообщения Telegram в символах.
const MessageLimit = 4096

// SplitMessage делит текст на части не длиннее limit символов.
// Разрез ищется сначала по пустой строке, затем по переводу строки, затем по пробелу,
// чтобы абзацы и HTML-теги в пределах строки не разрывались.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MessageLimit
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	runes := []rune(trimmed)
	var parts []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			parts = appendPart(parts, runes)
			break
		}
		cut := cutPoint(runes, limit)
		parts = appendPart(parts, runes[:cut])
		runes = []rune(strings.TrimLeft(string(runes[cut:]), "\n "))
	}
	return parts
}

func cutPoint(runes []rune, limit int) int {
	window := string(runes[:limit])
	for _, sep := range []string{"\n\n", "\n", " "} {
		if idx := strings.LastIndex(window, sep); idx > 0 {
			return len([]rune(window[:idx]))
		}
	}
	return limit
}

func appendPart(parts []string, runes []rune) []string {
	if chunk := strings.TrimSpace(string(runes)); chunk != "" {
		parts = append(parts, chunk)
	}
	return parts
}
