package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
	sql  sq.StatementBuilderType
}

var (
	_ domain.CriteriaRepo       = (*Postgres)(nil)
	_ domain.PostRepo           = (*Postgres)(nil)
	_ domain.SubscriberRepo     = (*Postgres)(nil)
	_ domain.RoleRepo           = (*Postgres)(nil)
	_ domain.SessionRepo        = (*Postgres)(nil)
	_ domain.ScoreJobStatusRepo = (*Postgres)(nil)
	_ domain.BusinessMetricRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, sql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// LoadCriteria возвращает сохранённые глобальные критерии.
func (p *Postgres) LoadCriteria(ctx context.Context) (domain.Criteria, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var data []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT data FROM criteria WHERE id = 1`).Scan(&data)
	metrics.ObserveNetworkRequest("postgres", "criteria_load", "criteria", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Criteria{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Criteria{}, err
	}
	var c domain.Criteria
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Criteria{}, fmt.Errorf("decode criteria: %w", err)
	}
	return c, nil
}

// SaveCriteria сохраняет глобальные критерии.
func (p *Postgres) SaveCriteria(ctx context.Context, c domain.Criteria) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}
	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO criteria (id, data, updated_at)
VALUES (1, $1, now())
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
`, data)
	metrics.ObserveNetworkRequest("postgres", "criteria_save", "criteria", start, err)
	return err
}

type postColumns struct {
	message     []byte
	score       []byte
	decision    []byte
	publication []byte
	history     []byte
}

func encodePost(post domain.Post) (postColumns, error) {
	var (
		cols postColumns
		err  error
	)
	if post.Message != nil {
		if cols.message, err = json.Marshal(post.Message); err != nil {
			return cols, fmt.Errorf("encode message: %w", err)
		}
	}
	if post.Score != nil {
		if cols.score, err = json.Marshal(post.Score); err != nil {
			return cols, fmt.Errorf("encode score: %w", err)
		}
	}
	if post.Decision != nil {
		if cols.decision, err = json.Marshal(post.Decision); err != nil {
			return cols, fmt.Errorf("encode decision: %w", err)
		}
	}
	if cols.publication, err = json.Marshal(post.Publication); err != nil {
		return cols, fmt.Errorf("encode publication: %w", err)
	}
	if cols.history, err = json.Marshal(post.History); err != nil {
		return cols, fmt.Errorf("encode history: %w", err)
	}
	return cols, nil
}

// SavePost создаёт или перезаписывает пост.
func (p *Postgres) SavePost(ctx context.Context, post domain.Post) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	cols, err := encodePost(post)
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO posts (id, text, submitter_id, state, stuck, message, score, decision, publication, history, submitted_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
    text = EXCLUDED.text,
    state = EXCLUDED.state,
    stuck = EXCLUDED.stuck,
    message = EXCLUDED.message,
    score = EXCLUDED.score,
    decision = EXCLUDED.decision,
    publication = EXCLUDED.publication,
    history = EXCLUDED.history,
    updated_at = EXCLUDED.updated_at
`, post.ID, post.Text, post.SubmitterID, string(post.State), post.Publication.Stuck,
		cols.message, cols.score, cols.decision, cols.publication, cols.history, post.SubmittedAt, post.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "posts_save", "posts", start, err)
	return err
}

const postSelectColumns = "id, text, submitter_id, state, message, score, decision, publication, history, submitted_at, updated_at"

// GetPost возвращает пост по идентификатору.
func (p *Postgres) GetPost(ctx context.Context, id string) (domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+postSelectColumns+` FROM posts WHERE id = $1`, id)
	post, err := scanPost(row)
	metrics.ObserveNetworkRequest("postgres", "posts_get", "posts", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Post{}, fmt.Errorf("%w: %s", domain.ErrPostNotFound, id)
	}
	return post, err
}

// LoadPendingPosts возвращает посты, ожидающие решения администратора.
func (p *Postgres) LoadPendingPosts(ctx context.Context) ([]domain.Post, error) {
	return p.ListPosts(ctx, domain.PostFilter{States: []domain.PostState{domain.PostStatePendingReview}})
}

// ListPosts возвращает посты по фильтру в порядке поступления.
func (p *Postgres) ListPosts(ctx context.Context, f domain.PostFilter) ([]domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := p.listPostsQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build posts query: %w", err)
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "posts_list", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (p *Postgres) listPostsQuery(f domain.PostFilter) sq.SelectBuilder {
	q := p.sql.Select(postSelectColumns).From("posts").OrderBy("submitted_at", "id")
	if len(f.States) > 0 {
		states := make([]string, 0, len(f.States))
		for _, s := range f.States {
			states = append(states, string(s))
		}
		q = q.Where(sq.Eq{"state": states})
	}
	if f.Stuck != nil {
		q = q.Where(sq.Eq{"stuck": *f.Stuck})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return q
}

// DeletePost удаляет пост.
func (p *Postgres) DeletePost(ctx context.Context, id string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "posts_delete", "posts", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrPostNotFound, id)
	}
	return nil
}

func scanPost(row pgx.Row) (domain.Post, error) {
	var (
		post                                        domain.Post
		state                                       string
		message, score, decision, publication, hist []byte
	)
	if err := row.Scan(&post.ID, &post.Text, &post.SubmitterID, &state, &message, &score, &decision, &publication, &hist, &post.SubmittedAt, &post.UpdatedAt); err != nil {
		return domain.Post{}, err
	}
	post.State = domain.PostState(state)
	if len(message) > 0 {
		post.Message = &domain.Message{}
		if err := json.Unmarshal(message, post.Message); err != nil {
			return domain.Post{}, fmt.Errorf("decode post %s message: %w", post.ID, err)
		}
	}
	if len(score) > 0 {
		post.Score = &domain.ImportanceScore{}
		if err := json.Unmarshal(score, post.Score); err != nil {
			return domain.Post{}, fmt.Errorf("decode post %s score: %w", post.ID, err)
		}
	}
	if len(decision) > 0 {
		post.Decision = &domain.DecisionMeta{}
		if err := json.Unmarshal(decision, post.Decision); err != nil {
			return domain.Post{}, fmt.Errorf("decode post %s decision: %w", post.ID, err)
		}
	}
	if len(publication) > 0 {
		if err := json.Unmarshal(publication, &post.Publication); err != nil {
			return domain.Post{}, fmt.Errorf("decode post %s publication: %w", post.ID, err)
		}
	}
	if len(hist) > 0 {
		if err := json.Unmarshal(hist, &post.History); err != nil {
			return domain.Post{}, fmt.Errorf("decode post %s history: %w", post.ID, err)
		}
	}
	return post, nil
}

// ListSubscribers возвращает настройки всех подписчиков.
func (p *Postgres) ListSubscribers(ctx context.Context) ([]domain.SubscriberCriteria, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT user_id, threshold, keywords, exclude_keywords, sources, updated_at
FROM subscribers
ORDER BY user_id
`)
	metrics.ObserveNetworkRequest("postgres", "subscribers_list", "subscribers", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.SubscriberCriteria
	for rows.Next() {
		var s domain.SubscriberCriteria
		if err := rows.Scan(&s.UserID, &s.Threshold, &s.Keywords, &s.ExcludeKeywords, &s.Sources, &s.UpdatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// SaveSubscriber создаёт или обновляет настройки подписчика.
func (p *Postgres) SaveSubscriber(ctx context.Context, s domain.SubscriberCriteria) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO subscribers (user_id, threshold, keywords, exclude_keywords, sources, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id) DO UPDATE SET
    threshold = EXCLUDED.threshold,
    keywords = EXCLUDED.keywords,
    exclude_keywords = EXCLUDED.exclude_keywords,
    sources = EXCLUDED.sources,
    updated_at = EXCLUDED.updated_at
`, s.UserID, s.Threshold, nonNil(s.Keywords), nonNil(s.ExcludeKeywords), nonNil(s.Sources), s.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "subscribers_save", "subscribers", start, err)
	return err
}

// DeleteSubscriber удаляет настройки подписчика.
func (p *Postgres) DeleteSubscriber(ctx context.Context, userID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM subscribers WHERE user_id = $1`, userID)
	metrics.ObserveNetworkRequest("postgres", "subscribers_delete", "subscribers", start, err)
	return err
}

// ListRoles возвращает роли всех пользователей.
func (p *Postgres) ListRoles(ctx context.Context) (map[int64]domain.RoleSet, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT user_id, role FROM user_roles ORDER BY user_id, role`)
	metrics.ObserveNetworkRequest("postgres", "user_roles_list", "user_roles", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make(map[int64]domain.RoleSet)
	for rows.Next() {
		var (
			userID int64
			role   string
		)
		if err := rows.Scan(&userID, &role); err != nil {
			return nil, err
		}
		roles[userID] = append(roles[userID], domain.Role(role))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for id, rs := range roles {
		roles[id] = rs.Normalize()
	}
	return roles, nil
}

// GrantRole выдаёт роль пользователю.
func (p *Postgres) GrantRole(ctx context.Context, userID int64, role domain.Role) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_roles (user_id, role, granted_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id, role) DO NOTHING
`, userID, string(role))
	metrics.ObserveNetworkRequest("postgres", "user_roles_grant", "user_roles", start, err)
	return err
}

// RevokeRole отзывает роль пользователя.
func (p *Postgres) RevokeRole(ctx context.Context, userID int64, role domain.Role) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, userID, string(role))
	metrics.ObserveNetworkRequest("postgres", "user_roles_revoke", "user_roles", start, err)
	return err
}

// LoadSession загружает сохранённую MTProto-сессию.
func (p *Postgres) LoadSession(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if name == "" {
		name = "default"
	}

	var data []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT data FROM mtproto_sessions WHERE name = $1`, name).Scan(&data)
	metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_load", "mtproto_sessions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// StoreSession сохраняет MTProto-сессию.
func (p *Postgres) StoreSession(ctx context.Context, name string, data []byte) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if name == "" {
		name = "default"
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO mtproto_sessions (name, data, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
`, name, append([]byte(nil), data...))
	metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_store", "mtproto_sessions", start, err)
	return err
}

// EnsureScoreJob регистрирует попытку обработки задачи оценки.
func (p *Postgres) EnsureScoreJob(ctx context.Context, jobID string) (bool, int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		done     sql.NullTime
		attempts int
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO score_job_statuses (job_id, attempts, updated_at)
VALUES ($1, 1, now())
ON CONFLICT (job_id) DO UPDATE
    SET attempts = score_job_statuses.attempts + 1,
        updated_at = now()
RETURNING done_at, attempts
`, jobID).Scan(&done, &attempts)
	metrics.ObserveNetworkRequest("postgres", "score_job_statuses_upsert", "score_job_statuses", start, err)
	if err != nil {
		return false, 0, err
	}
	return done.Valid, attempts, nil
}

// MarkScoreJobDone помечает задачу как обработанную.
func (p *Postgres) MarkScoreJobDone(ctx context.Context, jobID string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE score_job_statuses
SET done_at = COALESCE(done_at, now()),
    updated_at = now()
WHERE job_id = $1
`, jobID)
	metrics.ObserveNetworkRequest("postgres", "score_job_statuses_mark_done", "score_job_statuses", start, err)
	return err
}

// RecordBusinessMetric сохраняет бизнесовую метрику в БД.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var userID sql.NullInt64
	if metric.UserID != nil {
		userID = sql.NullInt64{Int64: *metric.UserID, Valid: true}
	}
	var postID sql.NullString
	if metric.PostID != "" {
		postID = sql.NullString{String: metric.PostID, Valid: true}
	}
	var payload []byte
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, user_id, post_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5)
`, metric.Event, userID, postID, payload, metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return err
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
