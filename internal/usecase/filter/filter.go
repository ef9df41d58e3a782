package filter

import (
	"sort"

	"tg-importance-bot/internal/domain"
)

// Candidate — подписчик, отслеживающий источник, и его персональная оценка сообщения.
type Candidate struct {
	Criteria domain.SubscriberCriteria
	Score    float64
}

// Decide определяет судьбу оценённого сообщения.
//
// Подписчик попадает в список уведомлений, если его порог не выше его оценки,
// независимо от глобального решения. Глобально сообщение ниже порога игнорируется,
// а на пороге и выше ставится в очередь модерации либо публикуется автоматически,
// если автопубликация включена и одобрение не требуется. Сообщение, отклонённое
// по длине, всегда игнорируется и никого не уведомляет.
func Decide(score domain.ImportanceScore, global domain.Criteria, candidates []Candidate) domain.Disposition {
	if score.Rejected() {
		return domain.Disposition{Action: domain.ActionIgnore}
	}

	var notify []int64
	seen := make(map[int64]struct{}, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.Criteria.UserID]; ok {
			continue
		}
		if c.Criteria.Threshold <= c.Score {
			seen[c.Criteria.UserID] = struct{}{}
			notify = append(notify, c.Criteria.UserID)
		}
	}
	sort.Slice(notify, func(i, j int) bool { return notify[i] < notify[j] })

	return domain.Disposition{Action: GlobalAction(score.Final, global), Notify: notify}
}

// GlobalAction сравнивает оценку с глобальным порогом. Равенство порогу считается прохождением.
func GlobalAction(score float64, global domain.Criteria) domain.Action {
	if score < global.ImportanceThreshold {
		return domain.ActionIgnore
	}
	if global.AutoPublishEnabled && !global.RequireAdminApproval {
		return domain.ActionAutoPublish
	}
	return domain.ActionQueueForModeration
}
