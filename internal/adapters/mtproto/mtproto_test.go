package mtproto

import (
	"context"
	"errors"
	"testing"

	"github.com/gotd/td/session"
	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/require"

	"tg-importance-bot/internal/adapters/memory"
)

func TestConvertChannelMessage(t *testing.T) {
	e := tg.Entities{Channels: map[int64]*tg.Channel{
		1234567: {ID: 1234567, Title: "Городские новости", Username: "city_news"},
	}}
	raw := &tg.Message{ID: 42, Message: "Срочно: перекрыт мост", Date: 1714564800, PeerID: &tg.PeerChannel{ChannelID: 1234567}}
	raw.SetFwdFrom(tg.MessageFwdHeader{Date: 1714564000})

	msg, ok := ConvertMessage(e, raw)
	require.True(t, ok)
	require.Equal(t, int64(-1001234567), msg.SourceID)
	require.Equal(t, "city_news", msg.SourceUsername)
	require.Equal(t, "Городские новости", msg.SourceTitle)
	require.Equal(t, int64(42), msg.MessageID)
	require.True(t, msg.Forwarded)
	require.Equal(t, "https://t.me/city_news/42", msg.Link)
	require.Equal(t, []string{"-1001234567", "@city_news"}, msg.SourceKeys())
}

func TestConvertPrivateChannelLink(t *testing.T) {
	raw := &tg.Message{ID: 7, Message: "текст", Date: 1714564800, PeerID: &tg.PeerChannel{ChannelID: 99}}
	msg, ok := ConvertMessage(tg.Entities{}, raw)
	require.True(t, ok)
	require.Equal(t, "https://t.me/c/99/7", msg.Link)
	require.Empty(t, msg.SourceUsername)
}

func TestConvertSkipsServiceAndEmpty(t *testing.T) {
	_, ok := ConvertMessage(tg.Entities{}, &tg.MessageService{ID: 1})
	require.False(t, ok)
	_, ok = ConvertMessage(tg.Entities{}, &tg.Message{ID: 2, Message: "  ", PeerID: &tg.PeerChat{ChatID: 5}})
	require.False(t, ok)
	_, ok = ConvertMessage(tg.Entities{}, &tg.Message{ID: 3, Message: "моё", Out: true, PeerID: &tg.PeerChat{ChatID: 5}})
	require.False(t, ok)

	msg, ok := ConvertMessage(tg.Entities{}, &tg.Message{ID: 4, Message: "чат", PeerID: &tg.PeerChat{ChatID: 5}})
	require.True(t, ok)
	require.Equal(t, int64(-5), msg.SourceID)
}

func TestSessionStoreNotFound(t *testing.T) {
	store := NewSessionStore(memory.New(), "listener")
	_, err := store.LoadSession(context.Background())
	require.True(t, errors.Is(err, session.ErrNotFound))

	require.NoError(t, store.StoreSession(context.Background(), []byte(`{"Version":1}`)))
	data, err := store.LoadSession(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `{"Version":1}`, string(data))
}

func TestImportSessionKeepsNativeFormat(t *testing.T) {
	store := NewSessionStore(memory.New(), "")
	converted, err := store.ImportSession(context.Background(), []byte(` {"Version":1,"Data":{"DC":2}} `))
	require.NoError(t, err)
	require.False(t, converted)

	_, err = store.ImportSession(context.Background(), []byte("not a session"))
	require.ErrorIs(t, err, ErrUnsupportedSessionFormat)
}
