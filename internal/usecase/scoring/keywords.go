package scoring

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokenize разбивает текст на токены: нижний регистр, NFKD без диакритики, разделители — всё,
// что не буква и не цифра. Диакритика снимается одинаково в тексте и ключевых словах,
// поэтому «ё» совпадает с «е».
func Tokenize(text string) []string {
	// Цепочка трансформаций хранит состояние, поэтому создаётся на каждый вызов.
	normFunc := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	lower := strings.ToLower(text)
	normalized, _, err := transform.String(normFunc, lower)
	if err != nil {
		normalized = lower
	}
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Matcher проверяет вхождение ключевых фраз в нормализованный текст.
// Фраза совпадает, если её токены идут подряд с границы токена, а последний токен
// фразы может быть префиксом токена текста: «срочно» находит «срочное».
type Matcher struct {
	tokens []string
}

// NewMatcher подготавливает текст к поиску ключевых слов.
func NewMatcher(text string) Matcher {
	return Matcher{tokens: Tokenize(text)}
}

// Any сообщает, встречается ли хотя бы одна из фраз.
func (m Matcher) Any(phrases []string) (string, bool) {
	for _, phrase := range phrases {
		if m.Contains(phrase) {
			return phrase, true
		}
	}
	return "", false
}

// Contains сообщает, встречается ли фраза.
func (m Matcher) Contains(phrase string) bool {
	needle := Tokenize(phrase)
	if len(needle) == 0 || len(needle) > len(m.tokens) {
		return false
	}
	last := len(needle) - 1
	for i := 0; i+len(needle) <= len(m.tokens); i++ {
		matched := true
		for j, tok := range needle {
			hay := m.tokens[i+j]
			if j == last {
				if !strings.HasPrefix(hay, tok) {
					matched = false
				}
				break
			}
			if hay != tok {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}
