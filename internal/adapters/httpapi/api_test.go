package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tg-importance-bot/internal/adapters/memory"
	"tg-importance-bot/internal/domain"
	httpinfra "tg-importance-bot/internal/infra/http"
	"tg-importance-bot/internal/infra/lock"
	"tg-importance-bot/internal/usecase/access"
	"tg-importance-bot/internal/usecase/criteria"
	"tg-importance-bot/internal/usecase/moderation"
)

const adminID int64 = 1

type okPublisher struct{}

func (okPublisher) Publish(context.Context, int64, domain.Post) (int, error) { return 11, nil }

type silentNotifier struct{}

func (silentNotifier) Notify(context.Context, int64, domain.Event) error { return nil }

func (silentNotifier) Broadcast(_ context.Context, ids []int64, _ domain.Event) int { return len(ids) }

// asUser подменяет проверку initData фиксированным пользователем из заголовка X-User.
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id int64
		switch r.Header.Get("X-User") {
		case "admin":
			id = adminID
		case "guest":
			id = 99
		default:
			httpinfra.WriteError(w, http.StatusUnauthorized, httpinfra.ErrInitDataMissing)
			return
		}
		next.ServeHTTP(w, r.WithContext(httpinfra.WithUser(r.Context(), httpinfra.WebAppUser{ID: id})))
	})
}

type fixture struct {
	router   chi.Router
	store    *memory.Store
	criteria *criteria.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	crit := criteria.NewStore(store, zerolog.Nop())
	c := domain.DefaultCriteria()
	c.PublishChannelID = -100500
	require.NoError(t, crit.Load(context.Background(), c))
	acc := access.NewService(store, []int64{adminID})
	moder := moderation.NewService(moderation.NewQueue(store, lock.NewKeyed()), okPublisher{}, silentNotifier{}, acc, crit, nil, 0, zerolog.Nop())

	r := chi.NewRouter()
	New(moder, crit, acc, zerolog.Nop()).Mount(r, asUser)
	return fixture{router: r, store: store, criteria: crit}
}

func (f fixture) seed(t *testing.T, id string, state domain.PostState) {
	t.Helper()
	post := domain.NewPost(id, "Текст "+id, 5, nil, nil, time.Now())
	post.State = state
	require.NoError(t, f.store.SavePost(context.Background(), post))
}

func (f fixture) do(method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-User", user)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAuthAndCapabilities(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/posts", "", "").Code)
	require.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/v1/posts", "guest", "").Code)
	require.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/v1/criteria", "guest", "").Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/criteria", "admin", "").Code)
}

func TestListPostsFilter(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", domain.PostStatePendingReview)
	f.seed(t, "b", domain.PostStateRejected)

	rec := f.do(http.MethodGet, "/api/v1/posts?state=pending_review", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	posts := decode(t, rec)["posts"].([]any)
	require.Len(t, posts, 1)
	require.Equal(t, "a", posts[0].(map[string]any)["id"])

	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/posts?state=unknown", "admin", "").Code)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/posts?limit=0", "admin", "").Code)

	rec = f.do(http.MethodGet, "/api/v1/posts/pending", "admin", "")
	require.Len(t, decode(t, rec)["posts"].([]any), 1)
}

func TestDecisionPublishesAndSecondDecisionConflicts(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "p1", domain.PostStatePendingReview)

	rec := f.do(http.MethodPost, "/api/v1/posts/p1/decision", "admin", `{"verdict":"approve"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	post := decode(t, rec)["post"].(map[string]any)
	require.Equal(t, string(domain.PostStatePublished), post["state"])

	rec = f.do(http.MethodPost, "/api/v1/posts/p1/decision", "admin", `{"verdict":"reject","reason":"дубль"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/v1/posts/missing/decision", "admin", `{"verdict":"approve"}`).Code)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/posts/p1/decision", "admin", `{"verdict":"maybe"}`).Code)
}

func TestRetryAndPurge(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ok", domain.PostStatePendingReview)

	require.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/v1/posts/ok/retry", "admin", "").Code)
	require.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/v1/posts/ok", "admin", "").Code)
	require.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/posts/ok", "admin", "").Code)
	require.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/v1/posts/ok", "admin", "").Code)
}

func TestPutCriteriaIsAtomic(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPut, "/api/v1/criteria", "admin", `{"importance_threshold":"0.85","keywords_boost":"+авария"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	snapshot := f.criteria.Snapshot()
	require.InDelta(t, 0.85, snapshot.ImportanceThreshold, 1e-9)
	require.Contains(t, snapshot.KeywordsBoost, "авария")

	rec = f.do(http.MethodPut, "/api/v1/criteria", "admin", `{"importance_threshold":"0.5","no_such_option":"1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.InDelta(t, 0.85, f.criteria.Snapshot().ImportanceThreshold, 1e-9)

	rec = f.do(http.MethodGet, "/api/v1/criteria/options", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, decode(t, rec)["options"])
}
