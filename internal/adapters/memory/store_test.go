package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"tg-importance-bot/internal/domain"
)

func TestPostsAreCopied(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := domain.NewPost("p1", "текст", 1, &domain.Message{Text: "текст"}, nil, time.Now())
	if err := s.SavePost(ctx, p); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	p.Message.Text = "изменено"
	got, err := s.GetPost(ctx, "p1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.Message.Text != "текст" {
		t.Fatalf("хранилище не должно разделять указатели с вызывающим")
	}
}

func TestListPostsOrderedAndFiltered(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "b", "a"} {
		p := domain.NewPost(id, id, 0, nil, nil, base.Add(time.Duration(i%2)*time.Minute))
		_ = p.Transition(domain.PostStatePendingReview, base)
		_ = s.SavePost(ctx, p)
	}
	_ = s.SavePost(ctx, domain.NewPost("d", "d", 0, nil, nil, base))

	pending, err := s.LoadPendingPosts(ctx)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	var ids []string
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "c" || ids[2] != "b" {
		t.Fatalf("ожидали порядок [a c b], получили %v", ids)
	}
}

func TestGetPostNotFound(t *testing.T) {
	s := New()
	if _, err := s.GetPost(context.Background(), "missing"); !errors.Is(err, domain.ErrPostNotFound) {
		t.Fatalf("ожидали ErrPostNotFound, получили %v", err)
	}
	if err := s.DeletePost(context.Background(), "missing"); !errors.Is(err, domain.ErrPostNotFound) {
		t.Fatalf("ожидали ErrPostNotFound, получили %v", err)
	}
}

func TestScoreJobAttempts(t *testing.T) {
	s := New()
	ctx := context.Background()
	for want := 1; want <= 3; want++ {
		done, attempt, _ := s.EnsureScoreJob(ctx, "job")
		if done || attempt != want {
			t.Fatalf("ожидали попытку %d, получили %d (done=%v)", want, attempt, done)
		}
	}
	_ = s.MarkScoreJobDone(ctx, "job")
	if done, _, _ := s.EnsureScoreJob(ctx, "job"); !done {
		t.Fatalf("задача должна быть завершена")
	}
}

func TestRoles(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.GrantRole(ctx, 1, domain.RoleAdmin)
	_ = s.GrantRole(ctx, 1, domain.RoleAdmin)
	roles, _ := s.ListRoles(ctx)
	if len(roles[1]) != 1 {
		t.Fatalf("роль не должна дублироваться: %v", roles[1])
	}
	_ = s.RevokeRole(ctx, 1, domain.RoleAdmin)
	roles, _ = s.ListRoles(ctx)
	if _, ok := roles[1]; ok {
		t.Fatalf("роль должна быть отозвана")
	}
}
