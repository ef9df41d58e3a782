package subscriptions

import (
	"context"
	"errors"
	"testing"

	"tg-importance-bot/internal/adapters/memory"
	"tg-importance-bot/internal/domain"
)

func TestParseSource(t *testing.T) {
	cases := map[string]string{
		"@Example":              "@example",
		"https://t.me/A":        "",
		"t.me/golang":           "@golang",
		"https://t.me/news_ru/": "@news_ru",
		"-1001234567890":        "-1001234567890",
		"0":                     "",
		"":                      "",
	}
	for input, expected := range cases {
		key, err := ParseSource(input)
		if expected == "" {
			if err == nil {
				t.Fatalf("ожидали ошибку для %q", input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("не ожидали ошибку для %q: %v", input, err)
		}
		if key != expected {
			t.Fatalf("ожидали %s, получили %s", expected, key)
		}
	}
}

func TestMonitorAndForMessage(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New(), 0)

	if _, err := svc.Monitor(ctx, 2, "@news_feed"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := svc.Monitor(ctx, 1, "-100500"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := svc.Monitor(ctx, 1, "t.me/News_Feed"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	msg := domain.Message{SourceID: -100500, SourceUsername: "news_feed", Text: "x"}
	subs := svc.ForMessage(msg)
	if len(subs) != 2 || subs[0].UserID != 1 || subs[1].UserID != 2 {
		t.Fatalf("ожидали подписчиков [1 2] без дублей, получили %+v", subs)
	}

	other := domain.Message{SourceID: 42, Text: "x"}
	if got := svc.ForMessage(other); len(got) != 0 {
		t.Fatalf("ожидали пустой список, получили %+v", got)
	}
}

func TestLimitAndUnmonitor(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New(), 1)

	if _, err := svc.Monitor(ctx, 7, "@first_source"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := svc.Monitor(ctx, 7, "@first_source"); err != nil {
		t.Fatalf("повторное добавление не должно упираться в лимит: %v", err)
	}
	if _, err := svc.Monitor(ctx, 7, "@second_source"); !errors.Is(err, ErrSourceLimit) {
		t.Fatalf("ожидали ErrSourceLimit, получили %v", err)
	}
	if _, err := svc.Unmonitor(ctx, 7, "@second_source"); !errors.Is(err, ErrNotMonitored) {
		t.Fatalf("ожидали ErrNotMonitored, получили %v", err)
	}
	sub, err := svc.Unmonitor(ctx, 7, "@first_source")
	if err != nil || len(sub.Sources) != 0 {
		t.Fatalf("источник должен быть удалён: %+v, %v", sub, err)
	}
}

func TestPersistedAcrossLoad(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	svc := NewService(repo, 0)
	if _, err := svc.Monitor(ctx, 3, "@persisted"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := svc.SetThreshold(ctx, 3, 0.4); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := svc.AddKeywords(ctx, 3, []string{"Выборы", "выборы", "бюджет"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := svc.RemoveKeywords(ctx, 3, []string{"БЮДЖЕТ"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := svc.AddExcludes(ctx, 3, []string{"реклама"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	fresh := NewService(repo, 0)
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	sub := fresh.Get(3)
	if sub.Threshold != 0.4 || len(sub.Keywords) != 1 || sub.Keywords[0] != "выборы" || len(sub.ExcludeKeywords) != 1 {
		t.Fatalf("настройки не восстановлены: %+v", sub)
	}

	if err := fresh.Delete(ctx, 3); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got := fresh.Get(3); got.Threshold != domain.DefaultImportanceThreshold || len(got.Sources) != 0 {
		t.Fatalf("после удаления ожидали значения по умолчанию, получили %+v", got)
	}
}

func TestSetThresholdValidates(t *testing.T) {
	svc := NewService(memory.New(), 0)
	if _, err := svc.SetThreshold(context.Background(), 1, 1.2); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("ожидали ErrInvalidOption, получили %v", err)
	}
}
