package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-importance-bot/internal/domain"
)

type stubSender struct {
	mu       sync.Mutex
	failSend int
	sends    []string
	postIDs  []string
	notified map[int64][]string
	prompted map[int64]string
	failFor  map[int64]bool
}

func newStubSender() *stubSender {
	return &stubSender{notified: map[int64][]string{}, prompted: map[int64]string{}, failFor: map[int64]bool{}}
}

func (s *stubSender) Send(ctx context.Context, _ int64, text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := domain.PostIDFromContext(ctx); ok {
		s.postIDs = append(s.postIDs, id)
	}
	if s.failSend > 0 {
		s.failSend--
		return 0, errors.New("telegram 502")
	}
	s.sends = append(s.sends, text)
	return len(s.sends), nil
}

func (s *stubSender) Notify(_ context.Context, userID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[userID] {
		return errors.New("bot was blocked by the user")
	}
	s.notified[userID] = append(s.notified[userID], text)
	return nil
}

type promptingSender struct {
	*stubSender
}

func (s promptingSender) NotifyDecision(_ context.Context, userID int64, _ string, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompted[userID] = postID
	return nil
}

func fastOptions() PublisherOptions {
	return PublisherOptions{Timeout: time.Second, Attempts: 3, Initial: time.Millisecond, Max: time.Millisecond}
}

func TestPublishRetriesUntilSuccess(t *testing.T) {
	sender := newStubSender()
	sender.failSend = 2
	pub := NewPublisher(sender, fastOptions(), zerolog.Nop())
	post := domain.NewPost("p1", "текст", 0, nil, nil, time.Now())

	id, err := pub.Publish(context.Background(), -100, post)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if id != 1 || len(sender.sends) != 1 {
		t.Fatalf("ожидали одну успешную отправку, получили id=%d sends=%d", id, len(sender.sends))
	}
	if len(sender.postIDs) != 3 || sender.postIDs[0] != "p1" {
		t.Fatalf("каждая попытка должна нести идентификатор поста: %v", sender.postIDs)
	}
}

func TestPublishExhaustedIsPublicationFailed(t *testing.T) {
	sender := newStubSender()
	sender.failSend = 10
	pub := NewPublisher(sender, fastOptions(), zerolog.Nop())

	_, err := pub.Publish(context.Background(), -100, domain.NewPost("p1", "т", 0, nil, nil, time.Now()))
	if !errors.Is(err, domain.ErrPublicationFailed) {
		t.Fatalf("ожидали ErrPublicationFailed, получили %v", err)
	}
	if sender.failSend != 7 {
		t.Fatalf("ожидали ровно 3 попытки, осталось отказов %d", sender.failSend)
	}
}

func TestPublishWithoutChannel(t *testing.T) {
	pub := NewPublisher(newStubSender(), fastOptions(), zerolog.Nop())
	if _, err := pub.Publish(context.Background(), 0, domain.Post{ID: "p"}); !errors.Is(err, domain.ErrPublicationFailed) {
		t.Fatalf("ожидали ErrPublicationFailed, получили %v", err)
	}
}

func TestBroadcastIsBestEffort(t *testing.T) {
	sender := newStubSender()
	sender.failFor[2] = true
	n := NewNotifier(sender, time.Second, zerolog.Nop())
	msg := &domain.Message{SourceUsername: "news", Text: "Пожар на складе"}

	delivered := n.Broadcast(context.Background(), []int64{1, 2, 3}, domain.Event{
		Kind: domain.EventImportantMessage, Message: msg, Score: 0.9, Reason: "чрезвычайное происшествие",
	})
	if delivered != 2 {
		t.Fatalf("ожидали 2 доставленных уведомления, получили %d", delivered)
	}
	if len(sender.notified[1]) != 1 || len(sender.notified[3]) != 1 {
		t.Fatalf("уведомления должны дойти до 1 и 3: %v", sender.notified)
	}
	mustContain(t, sender.notified[1][0], "Важность:</b> 0.90")
	mustContain(t, sender.notified[1][0], "чрезвычайное происшествие")
}

func TestNotifyFailureWrapsSentinel(t *testing.T) {
	sender := newStubSender()
	sender.failFor[9] = true
	n := NewNotifier(sender, time.Second, zerolog.Nop())
	err := n.Notify(context.Background(), 9, domain.Event{Kind: domain.EventPostPublished, Post: &domain.Post{ID: "p"}})
	if !errors.Is(err, domain.ErrNotificationFailed) {
		t.Fatalf("ожидали ErrNotificationFailed, получили %v", err)
	}
}

func TestQueuedPostUsesDecisionButtons(t *testing.T) {
	sender := promptingSender{newStubSender()}
	n := NewNotifier(sender, time.Second, zerolog.Nop())
	post := domain.NewPost("p7", "текст", 0, nil, nil, time.Now())

	if err := n.Notify(context.Background(), 100, domain.Event{Kind: domain.EventPostQueued, Post: &post}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sender.prompted[100] != "p7" {
		t.Fatalf("ожидали сообщение с кнопками для p7, получили %v", sender.prompted)
	}
	if len(sender.notified[100]) != 0 {
		t.Fatalf("обычное уведомление не должно отправляться")
	}
}
