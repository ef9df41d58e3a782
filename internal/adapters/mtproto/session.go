package mtproto

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/session"
	"github.com/gotd/td/tg"

	"tg-importance-bot/internal/domain"
)

// ErrUnsupportedSessionFormat — данные сессии не удалось распознать.
var ErrUnsupportedSessionFormat = errors.New("unsupported MTProto session format")

// SessionStore хранит сессию gotd в репозитории под заданным именем.
type SessionStore struct {
	repo domain.SessionRepo
	name string
}

var _ session.Storage = (*SessionStore)(nil)

// NewSessionStore создаёт хранилище сессии.
func NewSessionStore(repo domain.SessionRepo, name string) *SessionStore {
	if name == "" {
		name = "default"
	}
	return &SessionStore{repo: repo, name: name}
}

// LoadSession возвращает session.ErrNotFound, если сессия ещё не сохранялась.
func (s *SessionStore) LoadSession(ctx context.Context) ([]byte, error) {
	data, err := s.repo.LoadSession(ctx, s.name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", s.name, err)
	}
	return data, nil
}

// StoreSession сохраняет обновлённую сессию.
func (s *SessionStore) StoreSession(ctx context.Context, data []byte) error {
	if err := s.repo.StoreSession(ctx, s.name, data); err != nil {
		return fmt.Errorf("store session %q: %w", s.name, err)
	}
	return nil
}

// ImportSession сохраняет сессию, полученную вне сервиса. Поддерживаются JSON gotd,
// строковые сессии Telethon и их JSON-выгрузки. Возвращает true, если формат был сконвертирован.
func (s *SessionStore) ImportSession(ctx context.Context, raw []byte) (bool, error) {
	data, converted, err := NormalizeSession(raw)
	if err != nil {
		return false, err
	}
	return converted, s.StoreSession(ctx, data)
}

// NormalizeSession приводит сессию к JSON-формату gotd.
func NormalizeSession(raw []byte) ([]byte, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("%w: empty session", ErrUnsupportedSessionFormat)
	}

	var native struct {
		Version int `json:"Version"`
	}
	if err := json.Unmarshal(trimmed, &native); err == nil && native.Version != 0 {
		return append([]byte(nil), trimmed...), false, nil
	}

	for _, convert := range []func([]byte) ([]byte, error){fromAccountExport, fromSessionRows, fromTelethonString} {
		if data, err := convert(trimmed); err == nil {
			return data, true, nil
		}
	}
	return nil, false, ErrUnsupportedSessionFormat
}

// fromAccountExport разбирает выгрузку аккаунта, где строка Telethon лежит в extra_params.
func fromAccountExport(raw []byte) ([]byte, error) {
	var account struct {
		ExtraParams string `json:"extra_params"`
	}
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, err
	}
	if account.ExtraParams == "" {
		return nil, errors.New("account export has no extra_params")
	}
	return fromTelethonString([]byte(account.ExtraParams))
}

// fromSessionRows разбирает строки таблицы sessions из SQLite Telethon, выгруженные в JSON.
func fromSessionRows(raw []byte) ([]byte, error) {
	var rows []struct {
		DCID          int    `json:"dc_id"`
		ServerAddress string `json:"server_address"`
		Port          int    `json:"port"`
		AuthKey       string `json:"auth_key"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.AuthKey == "" || row.ServerAddress == "" || row.Port == 0 {
			continue
		}
		key, err := parseAuthKey(row.AuthKey)
		if err != nil {
			return nil, err
		}
		return marshalSession(session.Data{
			Config: session.Config{
				ThisDC:    row.DCID,
				DCOptions: []tg.DCOption{{ID: row.DCID, IPAddress: row.ServerAddress, Port: row.Port}},
			},
			DC:        row.DCID,
			Addr:      net.JoinHostPort(row.ServerAddress, strconv.Itoa(row.Port)),
			AuthKey:   append([]byte(nil), key[:]...),
			AuthKeyID: authKeyID(key),
		})
	}
	return nil, errors.New("session rows have no usable entries")
}

func fromTelethonString(raw []byte) ([]byte, error) {
	candidate := strings.Trim(strings.TrimSpace(string(raw)), "\"'")
	if candidate == "" {
		return nil, errors.New("telethon session string is empty")
	}
	data, err := session.TelethonSession(candidate)
	if err != nil {
		return nil, err
	}
	if data.Config.ThisDC == 0 {
		data.Config.ThisDC = data.DC
	}
	if data.Addr != "" && len(data.Config.DCOptions) == 0 {
		if host, portStr, err := net.SplitHostPort(data.Addr); err == nil {
			if port, err := strconv.Atoi(portStr); err == nil {
				data.Config.DCOptions = []tg.DCOption{{ID: data.DC, IPAddress: host, Port: port}}
			}
		}
	}
	return marshalSession(*data)
}

func parseAuthKey(value string) (crypto.Key, error) {
	var key crypto.Key
	decoded, err := hex.DecodeString(strings.Trim(strings.TrimSpace(value), "'\""))
	if err != nil {
		return key, fmt.Errorf("decode auth_key: %w", err)
	}
	if len(decoded) != len(key) {
		return key, fmt.Errorf("unexpected auth_key length: %d bytes", len(decoded))
	}
	copy(key[:], decoded)
	return key, nil
}

func authKeyID(key crypto.Key) []byte {
	id := key.WithID().ID
	return append([]byte(nil), id[:]...)
}

func marshalSession(data session.Data) ([]byte, error) {
	return json.Marshal(struct {
		Version int          `json:"Version"`
		Data    session.Data `json:"Data"`
	}{Version: 1, Data: data})
}
