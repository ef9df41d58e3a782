package domain

// EventKind описывает тип уведомления.
type EventKind string

const (
	EventImportantMessage EventKind = "important_message"
	EventPostQueued       EventKind = "post_queued"
	EventPostApproved     EventKind = "post_approved"
	EventPostRejected     EventKind = "post_rejected"
	EventPostPublished    EventKind = "post_published"
	EventPostStuck        EventKind = "post_stuck"
)

// Event — событие для диспетчера уведомлений.
type Event struct {
	Kind    EventKind
	Post    *Post
	Message *Message
	Score   float64
	Reason  string
}
