package scoring

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("ВАЖНО!!! Ёлка, café — 2025/03")
	want := []string{"важно", "елка", "cafe", "2025", "03"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize: ожидали %v, получили %v", want, got)
	}
}

func TestMatcherContains(t *testing.T) {
	m := NewMatcher("Срочное сообщение: отключение воды завтра утром")
	tests := []struct {
		phrase string
		want   bool
	}{
		{"срочно", true},
		{"СРОЧНО", true},
		{"отключение воды", true},
		{"отключение света", false},
		{"общение", false},
		{"воды завтра утром", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := m.Contains(tt.phrase); got != tt.want {
			t.Fatalf("Contains(%q) = %v, want %v", tt.phrase, got, tt.want)
		}
	}
}

func TestMatcherAnyReturnsPhrase(t *testing.T) {
	m := NewMatcher("Это реклама курса")
	phrase, ok := m.Any([]string{"спам", "реклама"})
	if !ok || phrase != "реклама" {
		t.Fatalf("ожидали совпадение «реклама», получили %q %v", phrase, ok)
	}
}
