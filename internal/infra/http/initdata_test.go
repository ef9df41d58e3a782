package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testToken = "123456:TEST"

func signed(t *testing.T, authDate time.Time, user string) string {
	t.Helper()
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("query_id", "AAF")
	values.Set("user", user)
	values.Set("hash", SignInitData(values, testToken))
	return values.Encode()
}

func TestValidateInitData(t *testing.T) {
	now := time.Unix(1714564800, 0)
	raw := signed(t, now.Add(-time.Minute), `{"id":42,"username":"admin"}`)

	user, err := ValidateInitData(raw, testToken, time.Hour, now)
	require.NoError(t, err)
	require.Equal(t, int64(42), user.ID)
	require.Equal(t, "admin", user.Username)

	_, err = ValidateInitData(raw, "other:TOKEN", time.Hour, now)
	require.ErrorIs(t, err, ErrInitDataInvalid)

	_, err = ValidateInitData(raw, testToken, time.Second, now)
	require.ErrorIs(t, err, ErrInitDataExpired)

	values, _ := url.ParseQuery(raw)
	values.Set("user", `{"id":1}`)
	_, err = ValidateInitData(values.Encode(), testToken, 0, now)
	require.ErrorIs(t, err, ErrInitDataInvalid)
}

func TestWebAppAuthMiddleware(t *testing.T) {
	var seen int64
	h := WebAppAuthMiddleware(testToken, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		require.True(t, ok)
		seen = u.ID
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"error":"init_data отсутствует"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Telegram-Init-Data", signed(t, time.Now(), `{"id":7}`))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, int64(7), seen)

	req = httptest.NewRequest(http.MethodGet, "/?init_data="+url.QueryEscape(signed(t, time.Now(), `{"id":8}`)), nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, int64(8), seen)
}

func TestServerHealthz(t *testing.T) {
	srv := NewServer(zerolog.Nop())
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
