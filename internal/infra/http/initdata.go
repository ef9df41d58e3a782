package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInitDataMissing = errors.New("init_data отсутствует")
	ErrInitDataInvalid = errors.New("подпись недействительна")
	ErrInitDataExpired = errors.New("init_data устарела")
)

// WebAppUser — пользователь, подписавший initData Telegram WebApp.
type WebAppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

type webAppUserKey struct{}

// UserFromContext возвращает пользователя, прошедшего проверку initData.
func UserFromContext(ctx context.Context) (WebAppUser, bool) {
	u, ok := ctx.Value(webAppUserKey{}).(WebAppUser)
	return u, ok
}

// WithUser кладёт пользователя в контекст запроса.
func WithUser(ctx context.Context, u WebAppUser) context.Context {
	return context.WithValue(ctx, webAppUserKey{}, u)
}

// WebAppAuthMiddleware проверяет initData по токену бота. initData передаётся в заголовке
// X-Telegram-Init-Data или параметре init_data. maxAge ограничивает возраст подписи, 0 — без ограничения.
func WebAppAuthMiddleware(botToken string, maxAge time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			initData := r.Header.Get("X-Telegram-Init-Data")
			if initData == "" {
				initData = r.URL.Query().Get("init_data")
			}
			if initData == "" {
				WriteError(w, http.StatusUnauthorized, ErrInitDataMissing)
				return
			}
			user, err := ValidateInitData(initData, botToken, maxAge, time.Now())
			if err != nil {
				WriteError(w, http.StatusUnauthorized, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// ValidateInitData проверяет подпись initData и возвращает пользователя.
func ValidateInitData(initData, botToken string, maxAge time.Duration, now time.Time) (WebAppUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return WebAppUser{}, ErrInitDataInvalid
	}
	hash := values.Get("hash")
	if hash == "" {
		return WebAppUser{}, ErrInitDataInvalid
	}
	expected, err := hex.DecodeString(hash)
	if err != nil {
		return WebAppUser{}, ErrInitDataInvalid
	}
	if !hmac.Equal(signInitData(values, botToken), expected) {
		return WebAppUser{}, ErrInitDataInvalid
	}
	if maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil || now.Sub(time.Unix(authDate, 0)) > maxAge {
			return WebAppUser{}, ErrInitDataExpired
		}
	}
	var user WebAppUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return WebAppUser{}, ErrInitDataInvalid
	}
	return user, nil
}

// SignInitData возвращает значение hash для набора полей initData.
func SignInitData(values url.Values, botToken string) string {
	return hex.EncodeToString(signInitData(values, botToken))
}

func signInitData(values url.Values, botToken string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(strings.Join(lines, "\n")))
	return h.Sum(nil)
}
