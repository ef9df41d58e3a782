package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tg-importance-bot/internal/domain"
	httpinfra "tg-importance-bot/internal/infra/http"
	"tg-importance-bot/internal/usecase/criteria"
)

// Moderation — операции модерации, доступные через API.
type Moderation interface {
	ListPosts(ctx context.Context, f domain.PostFilter) ([]domain.Post, error)
	ListPending(ctx context.Context) ([]domain.Post, error)
	Get(ctx context.Context, id string) (domain.Post, error)
	Decide(ctx context.Context, d domain.Decision) (domain.Post, error)
	RetryPost(ctx context.Context, adminID int64, id string) (domain.Post, error)
	Purge(ctx context.Context, adminID int64, id string) error
}

// Access проверяет права пользователя.
type Access interface {
	Require(userID int64, c domain.Capability) error
}

// API обслуживает административные HTTP-ручки мини-приложения.
type API struct {
	moderation Moderation
	criteria   *criteria.Store
	access     Access
	log        zerolog.Logger
}

// New создаёт API.
func New(moderation Moderation, store *criteria.Store, access Access, logger zerolog.Logger) *API {
	return &API{moderation: moderation, criteria: store, access: access, log: logger}
}

// Mount регистрирует ручки /api/v1 за middleware авторизации.
func (a *API) Mount(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(auth)

		api.Group(func(moder chi.Router) {
			moder.Use(a.require(domain.CapModerate))
			moder.Get("/posts", a.listPosts)
			moder.Get("/posts/pending", a.listPending)
			moder.Get("/posts/{id}", a.getPost)
			moder.Post("/posts/{id}/decision", a.decide)
			moder.Post("/posts/{id}/retry", a.retry)
			moder.Delete("/posts/{id}", a.purge)
		})

		api.Group(func(conf chi.Router) {
			conf.Use(a.require(domain.CapConfigure))
			conf.Get("/criteria", a.getCriteria)
			conf.Put("/criteria", a.putCriteria)
			conf.Get("/criteria/options", a.listOptions)
		})
	})
}

func (a *API) require(c domain.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := httpinfra.UserFromContext(r.Context())
			if !ok {
				httpinfra.WriteError(w, http.StatusUnauthorized, errors.New("unauthorized"))
				return
			}
			if err := a.access.Require(user.ID, c); err != nil {
				a.writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PostResponse — представление поста в API.
type PostResponse struct {
	ID          string                  `json:"id"`
	Text        string                  `json:"text"`
	State       domain.PostState        `json:"state"`
	SubmitterID int64                   `json:"submitter_id,omitempty"`
	Source      string                  `json:"source,omitempty"`
	Link        string                  `json:"link,omitempty"`
	Score       *domain.ImportanceScore `json:"score,omitempty"`
	Decision    *domain.DecisionMeta    `json:"decision,omitempty"`
	Publication domain.Publication      `json:"publication"`
	History     []domain.StateChange    `json:"history"`
	SubmittedAt time.Time               `json:"submitted_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

func toResponse(p domain.Post) PostResponse {
	out := PostResponse{
		ID:          p.ID,
		Text:        p.Text,
		State:       p.State,
		SubmitterID: p.SubmitterID,
		Source:      p.SourceLabel(),
		Score:       p.Score,
		Decision:    p.Decision,
		Publication: p.Publication,
		History:     p.History,
		SubmittedAt: p.SubmittedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.Message != nil {
		out.Link = p.Message.Link
	}
	return out
}

func toResponses(posts []domain.Post) []PostResponse {
	out := make([]PostResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, toResponse(p))
	}
	return out
}

func (a *API) listPosts(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	posts, err := a.moderation.ListPosts(r.Context(), f)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"posts": toResponses(posts)})
}

// parseFilter читает параметры state (через запятую), stuck и limit.
func parseFilter(r *http.Request) (domain.PostFilter, error) {
	q := r.URL.Query()
	var f domain.PostFilter
	if raw := q.Get("state"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			state, ok := domain.ParsePostState(part)
			if !ok {
				return f, fmt.Errorf("unknown state %q", part)
			}
			f.States = append(f.States, state)
		}
	}
	if raw := q.Get("stuck"); raw != "" {
		stuck, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("invalid stuck %q", raw)
		}
		f.Stuck = &stuck
	}
	f.Limit = 100
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 1000 {
			return f, fmt.Errorf("invalid limit %q", raw)
		}
		f.Limit = limit
	}
	return f, nil
}

func (a *API) listPending(w http.ResponseWriter, r *http.Request) {
	posts, err := a.moderation.ListPending(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"posts": toResponses(posts)})
}

func (a *API) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := a.moderation.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toResponse(post))
}

type decisionRequest struct {
	Verdict domain.Verdict `json:"verdict"`
	Reason  string         `json:"reason"`
}

func (a *API) decide(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if req.Verdict != domain.VerdictApprove && req.Verdict != domain.VerdictReject {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("unknown verdict %q", req.Verdict))
		return
	}
	user, _ := httpinfra.UserFromContext(r.Context())
	post, err := a.moderation.Decide(r.Context(), domain.Decision{
		PostID:  chi.URLParam(r, "id"),
		Verdict: req.Verdict,
		AdminID: user.ID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil && !errors.Is(err, domain.ErrPublicationFailed) {
		a.writeError(w, r, err)
		return
	}
	resp := map[string]any{"post": toResponse(post)}
	if err != nil {
		resp["error"] = err.Error()
	}
	httpinfra.WriteJSON(w, http.StatusOK, resp)
}

func (a *API) retry(w http.ResponseWriter, r *http.Request) {
	user, _ := httpinfra.UserFromContext(r.Context())
	post, err := a.moderation.RetryPost(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil && !errors.Is(err, domain.ErrPublicationFailed) {
		a.writeError(w, r, err)
		return
	}
	resp := map[string]any{"post": toResponse(post)}
	if err != nil {
		resp["error"] = err.Error()
	}
	httpinfra.WriteJSON(w, http.StatusOK, resp)
}

func (a *API) purge(w http.ResponseWriter, r *http.Request) {
	user, _ := httpinfra.UserFromContext(r.Context())
	if err := a.moderation.Purge(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getCriteria(w http.ResponseWriter, r *http.Request) {
	httpinfra.WriteJSON(w, http.StatusOK, a.criteria.Snapshot())
}

// putCriteria применяет набор опций атомарно: при ошибке в любой из них критерии не меняются.
func (a *API) putCriteria(w http.ResponseWriter, r *http.Request) {
	var options map[string]string
	if err := json.NewDecoder(r.Body).Decode(&options); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if len(options) == 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("no options given"))
		return
	}
	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)
	updated, err := a.criteria.Update(r.Context(), func(c *domain.Criteria) error {
		for _, name := range names {
			if err := criteria.ApplyOption(c, name, options[name]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	user, _ := httpinfra.UserFromContext(r.Context())
	a.log.Info().Int64("admin", user.ID).Strs("options", names).Msg("api: criteria updated")
	httpinfra.WriteJSON(w, http.StatusOK, updated)
}

type optionResponse struct {
	Name  string `json:"name"`
	Help  string `json:"help"`
	Value string `json:"value"`
}

func (a *API) listOptions(w http.ResponseWriter, r *http.Request) {
	snapshot := a.criteria.Snapshot()
	out := make([]optionResponse, 0)
	for _, o := range criteria.Options() {
		out = append(out, optionResponse{Name: o.Name, Help: o.Help, Value: o.Value(snapshot)})
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"options": out})
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Str("path", r.URL.Path).Msg("api: request failed")
	}
	httpinfra.WriteError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrPostNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyDecided), errors.Is(err, domain.ErrLifecycleViolation):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidOption):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPublicationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
