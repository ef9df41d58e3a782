package domain

import (
	"fmt"
	"time"
)

// transitions перечисляет допустимые переходы жизненного цикла поста.
// Submitted → Approved используется только при неудачной автопубликации.
var transitions = map[PostState][]PostState{
	PostStateSubmitted:     {PostStatePendingReview, PostStatePublished, PostStateApproved},
	PostStatePendingReview: {PostStateApproved, PostStateRejected},
	PostStateApproved:      {PostStatePublished},
}

// Terminal сообщает, что из состояния нет переходов.
func (s PostState) Terminal() bool {
	return len(transitions[s]) == 0
}

// Decided сообщает, что по посту уже принято решение.
func (s PostState) Decided() bool {
	return s == PostStateApproved || s == PostStateRejected
}

// CanTransition проверяет допустимость перехода между состояниями.
func CanTransition(from, to PostState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition переводит пост в новое состояние.
// Переход из терминального состояния и повторное посещение состояния запрещены.
func (p *Post) Transition(to PostState, at time.Time) error {
	if p.State.Terminal() {
		return fmt.Errorf("%w: post %s is %s", ErrLifecycleViolation, p.ID, p.State)
	}
	if !CanTransition(p.State, to) {
		return fmt.Errorf("%w: %s -> %s for post %s", ErrLifecycleViolation, p.State, to, p.ID)
	}
	for _, h := range p.History {
		if h.To == to {
			return fmt.Errorf("%w: post %s already visited %s", ErrLifecycleViolation, p.ID, to)
		}
	}
	p.History = append(p.History, StateChange{From: p.State, To: to, At: at})
	p.State = to
	p.UpdatedAt = at
	return nil
}

// ApplyDecision применяет решение администратора к посту в состоянии PendingReview.
// Для уже решённого поста возвращается ErrAlreadyDecided, состояние не меняется.
// Решение по опубликованному посту, прошедшему модерацию, оборачивает и ErrAlreadyDecided, и ErrLifecycleViolation.
func (p *Post) ApplyDecision(d Decision, at time.Time) error {
	switch {
	case p.State == PostStatePublished && p.Decision != nil:
		return fmt.Errorf("%w: %w: post %s is already published", ErrAlreadyDecided, ErrLifecycleViolation, p.ID)
	case p.State.Decided():
		return fmt.Errorf("%w: post %s is %s", ErrAlreadyDecided, p.ID, p.State)
	case p.State != PostStatePendingReview:
		return fmt.Errorf("%w: post %s is %s, not pending review", ErrLifecycleViolation, p.ID, p.State)
	}
	var to PostState
	switch d.Verdict {
	case VerdictApprove:
		to = PostStateApproved
	case VerdictReject:
		to = PostStateRejected
	default:
		return fmt.Errorf("%w: unknown verdict %q", ErrInvalidOption, d.Verdict)
	}
	if err := p.Transition(to, at); err != nil {
		return err
	}
	p.Decision = &DecisionMeta{AdminID: d.AdminID, Verdict: d.Verdict, Reason: d.Reason, DecidedAt: at}
	return nil
}
