package scoring

import (
	"strings"
	"unicode/utf8"
)

// DefaultHeuristicFullLength — длина сообщения, при которой эвристика даёт максимальную оценку.
const DefaultHeuristicFullLength = 500

// Heuristic оценивает важность по длине текста без внешних зависимостей.
// Ключевые слова учитываются позже правилами корректировки.
func Heuristic(text string, fullLength int) float64 {
	if fullLength <= 0 {
		fullLength = DefaultHeuristicFullLength
	}
	runes := utf8.RuneCountInString(strings.TrimSpace(text))
	return clamp(float64(runes) / float64(fullLength))
}
