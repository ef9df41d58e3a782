package filter

import (
	"reflect"
	"testing"

	"tg-importance-bot/internal/domain"
)

func score(v float64) domain.ImportanceScore {
	return domain.ImportanceScore{Origin: domain.ScoreOriginOracle, Final: v}
}

func TestGlobalActionMatrix(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		auto     bool
		approval bool
		want     domain.Action
	}{
		{name: "below threshold", score: 0.3, auto: true, approval: false, want: domain.ActionIgnore},
		{name: "tie counts as meeting", score: 0.7, auto: false, approval: false, want: domain.ActionQueueForModeration},
		{name: "auto disabled queues", score: 0.9, auto: false, approval: true, want: domain.ActionQueueForModeration},
		{name: "auto without approval publishes", score: 0.8, auto: true, approval: false, want: domain.ActionAutoPublish},
		{name: "auto with approval queues", score: 0.9, auto: true, approval: true, want: domain.ActionQueueForModeration},
		{name: "tie with auto publishes", score: 0.7, auto: true, approval: false, want: domain.ActionAutoPublish},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := domain.DefaultCriteria()
			c.ImportanceThreshold = 0.7
			c.AutoPublishEnabled = tt.auto
			c.RequireAdminApproval = tt.approval
			got := Decide(score(tt.score), c, nil)
			if got.Action != tt.want {
				t.Fatalf("ожидали %s, получили %s", tt.want, got.Action)
			}
		})
	}
}

func TestNotifyIndependentOfGlobal(t *testing.T) {
	c := domain.DefaultCriteria()
	c.ImportanceThreshold = 0.9
	candidates := []Candidate{
		{Criteria: domain.SubscriberCriteria{UserID: 3, Threshold: 0.5}, Score: 0.5},
		{Criteria: domain.SubscriberCriteria{UserID: 1, Threshold: 0.4}, Score: 0.6},
		{Criteria: domain.SubscriberCriteria{UserID: 2, Threshold: 0.8}, Score: 0.6},
		{Criteria: domain.SubscriberCriteria{UserID: 1, Threshold: 0.4}, Score: 0.6},
	}
	got := Decide(score(0.6), c, candidates)
	if got.Action != domain.ActionIgnore {
		t.Fatalf("глобально сообщение должно игнорироваться, получили %s", got.Action)
	}
	if !reflect.DeepEqual(got.Notify, []int64{1, 3}) {
		t.Fatalf("ожидали уведомление подписчикам [1 3], получили %v", got.Notify)
	}
	if !got.NotifiesSubscribers() || got.Promotes() {
		t.Fatalf("неожиданное решение: %s", got)
	}
}

func TestRejectedMessageNeverPromoted(t *testing.T) {
	c := domain.DefaultCriteria()
	c.ImportanceThreshold = 0
	c.AutoPublishEnabled = true
	c.RequireAdminApproval = false
	rejected := domain.ImportanceScore{Origin: domain.ScoreOriginRejected}
	candidates := []Candidate{{Criteria: domain.SubscriberCriteria{UserID: 1, Threshold: 0}, Score: 0}}

	got := Decide(rejected, c, candidates)
	if got.Action != domain.ActionIgnore || got.NotifiesSubscribers() {
		t.Fatalf("отклонённое сообщение не должно продвигаться: %s %v", got, got.Notify)
	}
}

func TestHeuristicScenarioIgnored(t *testing.T) {
	c := domain.DefaultCriteria()
	got := Decide(domain.ImportanceScore{Origin: domain.ScoreOriginHeuristic, Final: 0.3}, c, nil)
	if got.Action != domain.ActionIgnore {
		t.Fatalf("оценка 0.3 при пороге 0.7 должна игнорироваться, получили %s", got.Action)
	}
}
