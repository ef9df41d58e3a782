package dispatch

import (
	"strings"
	"testing"
	"time"

	"tg-importance-bot/internal/domain"
)

func TestFormatPublication(t *testing.T) {
	date := time.Date(2025, 3, 14, 9, 5, 0, 0, time.UTC)
	msg := &domain.Message{SourceTitle: "Новости <города>", Link: "https://t.me/city/1", Date: date}
	score := &domain.ImportanceScore{Origin: domain.ScoreOriginOracle, Final: 0.8123}
	p := domain.NewPost("p1", "Перекрыт мост & объезд", 0, msg, score, date.Add(time.Minute))

	formatted := FormatPublication(p)

	mustContain(t, formatted, "Перекрыт мост &amp; объезд")
	mustContain(t, formatted, "📌 <i>Источник: <a href=\"https://t.me/city/1\">Новости &lt;города&gt;</a></i>")
	mustContain(t, formatted, "⭐ <i>Важность: 0.81</i>")
	mustContain(t, formatted, "🕐 <i>14.03.2025 09:05</i>")
}

func TestFormatPublicationManualPost(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC)
	formatted := FormatPublication(domain.NewPost("p2", "текст", 5, nil, nil, at))
	if strings.Contains(formatted, "Источник") || strings.Contains(formatted, "Важность") {
		t.Fatalf("ручной пост без источника и оценки: %q", formatted)
	}
	mustContain(t, formatted, "🕐 <i>02.01.2025 03:04</i>")
}

func TestFormatAdminNewPostPreview(t *testing.T) {
	long := strings.Repeat("я", 600)
	p := domain.NewPost("p3", long, 42, nil, nil, time.Now())
	formatted := FormatAdminNewPost(p)

	mustContain(t, formatted, "<code>p3</code>")
	mustContain(t, formatted, "От пользователя:</b> 42")
	mustContain(t, formatted, strings.Repeat("я", 500)+"...")
	if strings.Contains(formatted, strings.Repeat("я", 501)) {
		t.Fatalf("превью должно обрезаться до 500 символов")
	}
}

func TestFormatDecisionRejectReason(t *testing.T) {
	p := domain.NewPost("p4", "текст", 5, nil, nil, time.Now())
	p.State = domain.PostStateRejected
	p.Decision = &domain.DecisionMeta{Verdict: domain.VerdictReject, Reason: "не по теме"}
	formatted := FormatDecision(p)

	mustContain(t, formatted, "Ваш пост отклонён")
	mustContain(t, formatted, "Причина:</b> не по теме")
}

func mustContain(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Fatalf("ожидали найти подстроку %q в %q", substr, s)
	}
}
