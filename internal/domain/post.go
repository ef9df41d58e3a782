package domain

import (
	"strings"
	"time"
)

// PostState описывает состояние поста в жизненном цикле модерации.
type PostState string

const (
	PostStateSubmitted     PostState = "submitted"
	PostStatePendingReview PostState = "pending_review"
	PostStateApproved      PostState = "approved"
	PostStateRejected      PostState = "rejected"
	PostStatePublished     PostState = "published"
)

// ParsePostState разбирает строковое представление состояния.
func ParsePostState(raw string) (PostState, bool) {
	state := PostState(strings.ToLower(strings.TrimSpace(raw)))
	switch state {
	case PostStateSubmitted, PostStatePendingReview, PostStateApproved, PostStateRejected, PostStatePublished:
		return state, true
	default:
		return "", false
	}
}

// Verdict описывает решение администратора.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// Decision — команда администратора по посту из очереди модерации.
type Decision struct {
	PostID  string
	Verdict Verdict
	AdminID int64
	Reason  string
}

// DecisionMeta фиксирует принятое по посту решение.
type DecisionMeta struct {
	AdminID   int64     `json:"admin_id"`
	Verdict   Verdict   `json:"verdict"`
	Reason    string    `json:"reason,omitempty"`
	Auto      bool      `json:"auto,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// Publication хранит сведения о попытках публикации поста.
type Publication struct {
	Attempts      int       `json:"attempts"`
	InFlight      bool      `json:"in_flight,omitempty"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	MessageID     int       `json:"message_id,omitempty"`
	PublishedAt   time.Time `json:"published_at,omitempty"`
	Stuck         bool      `json:"stuck,omitempty"`
}

// StateChange — запись истории переходов поста.
type StateChange struct {
	From PostState `json:"from,omitempty"`
	To   PostState `json:"to"`
	At   time.Time `json:"at"`
}

// SystemSubmitter обозначает посты, созданные конвейером автоматически.
const SystemSubmitter int64 = 0

// Post — кандидат на публикацию в канал.
type Post struct {
	ID          string
	Text        string
	Message     *Message
	SubmitterID int64
	Score       *ImportanceScore
	State       PostState
	Decision    *DecisionMeta
	Publication Publication
	History     []StateChange
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// NewPost создаёт пост в начальном состоянии Submitted.
func NewPost(id, text string, submitterID int64, msg *Message, score *ImportanceScore, now time.Time) Post {
	return Post{
		ID:          id,
		Text:        text,
		Message:     msg,
		SubmitterID: submitterID,
		Score:       score,
		State:       PostStateSubmitted,
		History:     []StateChange{{To: PostStateSubmitted, At: now}},
		SubmittedAt: now,
		UpdatedAt:   now,
	}
}

// Clone возвращает глубокую копию поста.
func (p Post) Clone() Post {
	out := p
	if p.Message != nil {
		msg := *p.Message
		out.Message = &msg
	}
	if p.Score != nil {
		score := *p.Score
		score.Adjustments = append([]Adjustment(nil), p.Score.Adjustments...)
		score.Flags = append([]string(nil), p.Score.Flags...)
		out.Score = &score
	}
	if p.Decision != nil {
		decision := *p.Decision
		out.Decision = &decision
	}
	out.History = append([]StateChange(nil), p.History...)
	return out
}

// HasSubmitter сообщает, что пост отправлен пользователем, а не конвейером.
func (p Post) HasSubmitter() bool {
	return p.SubmitterID != SystemSubmitter
}

// SourceLabel возвращает название источника поста.
func (p Post) SourceLabel() string {
	if p.Message == nil {
		return ""
	}
	return p.Message.SourceLabel()
}

// PostFilter задаёт выборку постов.
type PostFilter struct {
	States []PostState
	Stuck  *bool
	Limit  int
}

// Match проверяет соответствие поста фильтру без учёта лимита.
func (f PostFilter) Match(p Post) bool {
	if len(f.States) > 0 {
		found := false
		for _, s := range f.States {
			if p.State == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Stuck != nil && p.Publication.Stuck != *f.Stuck {
		return false
	}
	return true
}
