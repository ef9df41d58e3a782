package dispatch

import (
	"fmt"
	"html"
	"strings"
	"time"

	"tg-importance-bot/internal/domain"
)

const (
	previewLimit = 500
	dateLayout   = "02.01.2006 15:04"
)

// FormatPublication формирует текст поста для публикации в канал.
func FormatPublication(p domain.Post) string {
	var b strings.Builder
	b.WriteString(escapeHTML(strings.TrimSpace(p.Text)))

	var meta []string
	if source := p.SourceLabel(); source != "" {
		meta = append(meta, "📌 <i>Источник: "+sourceLink(source, p.Message)+"</i>")
	}
	if p.Score != nil && !p.Score.Rejected() {
		meta = append(meta, fmt.Sprintf("⭐ <i>Важность: %.2f</i>", p.Score.Final))
	}
	meta = append(meta, "🕐 <i>"+postDate(p).Format(dateLayout)+"</i>")

	b.WriteString("\n\n")
	b.WriteString(strings.Join(meta, "\n"))
	return b.String()
}

// FormatImportantMessage формирует уведомление подписчику о важном сообщении.
func FormatImportantMessage(msg domain.Message, score float64, reason string) string {
	var b strings.Builder
	b.WriteString("🔔 <b>Важное сообщение</b>\n\n")
	if source := msg.SourceLabel(); source != "" {
		b.WriteString("📌 <b>Источник:</b> " + sourceLink(source, &msg) + "\n")
	}
	fmt.Fprintf(&b, "⭐ <b>Важность:</b> %.2f\n", score)
	if reason = strings.TrimSpace(reason); reason != "" {
		b.WriteString("💬 " + escapeHTML(reason) + "\n")
	}
	b.WriteString("\n" + escapeHTML(preview(msg.Text)))
	return b.String()
}

// FormatAdminNewPost формирует уведомление администраторам о посте в очереди модерации.
func FormatAdminNewPost(p domain.Post) string {
	var b strings.Builder
	b.WriteString("📝 <b>Новый пост на модерации</b>\n\n")
	b.WriteString("🆔 <b>ID:</b> <code>" + escapeHTML(p.ID) + "</code>\n")
	if p.HasSubmitter() {
		fmt.Fprintf(&b, "👤 <b>От пользователя:</b> %d\n", p.SubmitterID)
	}
	b.WriteString("🕐 <b>Время:</b> " + p.SubmittedAt.Format(dateLayout) + "\n")
	if source := p.SourceLabel(); source != "" {
		b.WriteString("📌 <b>Источник:</b> " + escapeHTML(source) + "\n")
	}
	if p.Score != nil && !p.Score.Rejected() {
		fmt.Fprintf(&b, "⭐ <b>Оценка:</b> %.2f (%s)\n", p.Score.Final, p.Score.Origin)
	}
	if p.Decision != nil && p.Decision.Auto {
		b.WriteString("⚠️ Автопубликация не удалась, пост одобрен автоматически\n")
	}
	b.WriteString("\n📄 <b>Текст:</b>\n" + escapeHTML(preview(p.Text)))
	return b.String()
}

// FormatDecision формирует уведомление автору о результате модерации.
func FormatDecision(p domain.Post) string {
	switch p.State {
	case domain.PostStatePublished:
		return "✅ <b>Ваш пост одобрен и опубликован!</b>\n\n" + escapeHTML(preview(p.Text))
	case domain.PostStateRejected:
		text := "❌ <b>Ваш пост отклонён</b>\n\n" + escapeHTML(preview(p.Text))
		if p.Decision != nil && strings.TrimSpace(p.Decision.Reason) != "" {
			text += "\n\n💬 <b>Причина:</b> " + escapeHTML(strings.TrimSpace(p.Decision.Reason))
		}
		return text
	default:
		return fmt.Sprintf("ℹ️ Пост <code>%s</code>: %s", escapeHTML(p.ID), p.State)
	}
}

// FormatStuck формирует предупреждение администраторам о посте, который не удалось опубликовать.
func FormatStuck(p domain.Post) string {
	var b strings.Builder
	b.WriteString("🚫 <b>Пост не удаётся опубликовать</b>\n\n")
	b.WriteString("🆔 <b>ID:</b> <code>" + escapeHTML(p.ID) + "</code>\n")
	fmt.Fprintf(&b, "🔁 <b>Попыток:</b> %d\n", p.Publication.Attempts)
	if p.Publication.LastError != "" {
		b.WriteString("⚠️ <b>Ошибка:</b> " + escapeHTML(p.Publication.LastError) + "\n")
	}
	b.WriteString("\nПовторить: /retry " + escapeHTML(p.ID))
	return b.String()
}

func sourceLink(label string, msg *domain.Message) string {
	if msg != nil {
		if url := strings.TrimSpace(msg.Link); url != "" {
			return fmt.Sprintf("<a href=\"%s\">%s</a>", html.EscapeString(url), escapeHTML(label))
		}
	}
	return escapeHTML(label)
}

func postDate(p domain.Post) time.Time {
	if p.Message != nil && !p.Message.Date.IsZero() {
		return p.Message.Date
	}
	return p.SubmittedAt
}

func preview(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit]) + "..."
}

func escapeHTML(s string) string {
	return html.EscapeString(s)
}
