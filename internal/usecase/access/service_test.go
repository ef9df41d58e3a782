package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tg-importance-bot/internal/adapters/memory"
	"tg-importance-bot/internal/domain"
)

func TestBootstrapAdmins(t *testing.T) {
	svc := NewService(memory.New(), []int64{100})

	require.True(t, svc.Can(100, domain.CapModerate))
	require.True(t, svc.Can(100, domain.CapConfigure))
	require.False(t, svc.Can(5, domain.CapModerate))
	require.True(t, svc.Can(5, domain.CapSubscribe))
	require.ErrorIs(t, svc.Require(5, domain.CapSubmit), domain.ErrForbidden)
}

func TestGrantRevokePersisted(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	svc := NewService(repo, []int64{100})

	require.NoError(t, svc.Grant(ctx, 7, domain.RoleSubmitter))
	require.NoError(t, svc.Grant(ctx, 8, domain.RoleAdmin))
	require.True(t, svc.Can(7, domain.CapSubmit))
	require.False(t, svc.Can(7, domain.CapModerate))
	require.Equal(t, []int64{8, 100}, svc.Identities(domain.CapModerate))

	fresh := NewService(repo, nil)
	require.NoError(t, fresh.Load(ctx))
	require.True(t, fresh.Can(8, domain.CapModerate))
	require.False(t, fresh.Can(100, domain.CapModerate))

	require.NoError(t, svc.Revoke(ctx, 8, domain.RoleAdmin))
	require.Equal(t, []int64{100}, svc.Identities(domain.CapModerate))
	require.Equal(t, []int64{7, 100}, svc.Identities(domain.CapSubmit))
}

func TestGrantUnknownRole(t *testing.T) {
	svc := NewService(memory.New(), nil)
	require.ErrorIs(t, svc.Grant(context.Background(), 1, domain.Role("owner")), domain.ErrInvalidOption)
}
