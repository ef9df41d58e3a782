package domain

import "strings"

// Action описывает глобальное решение фильтра для сообщения.
type Action string

const (
	ActionIgnore             Action = "ignore"
	ActionQueueForModeration Action = "queue_for_moderation"
	ActionAutoPublish        Action = "auto_publish"
)

// Disposition — результат фильтра: глобальное действие и список подписчиков для уведомления.
// Уведомления подписчиков не зависят от глобального действия.
type Disposition struct {
	Action Action
	Notify []int64
}

// NotifiesSubscribers сообщает, что есть подписчики для уведомления.
func (d Disposition) NotifiesSubscribers() bool {
	return len(d.Notify) > 0
}

// Promotes сообщает, что сообщение становится постом.
func (d Disposition) Promotes() bool {
	return d.Action == ActionQueueForModeration || d.Action == ActionAutoPublish
}

func (d Disposition) String() string {
	parts := []string{string(d.Action)}
	if d.NotifiesSubscribers() {
		parts = append(parts, "notify_subscribers")
	}
	return strings.Join(parts, "+")
}
