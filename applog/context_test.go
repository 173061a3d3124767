package applog

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"testing"
)

type lobbyName string

func (l lobbyName) String() string { return string(l) }

func keys(cf contextFields) []string {
	out := make([]string, len(cf))
	for i, f := range cf {
		out[i] = f.Key
	}
	return out
}

func TestContextWithoutFields(t *testing.T) {
	assert.Nil(t, fieldsOf(context.Background()))

	ctx := context.Background()
	assert.Equal(t, ctx, AddContextFields(ctx))
}

func TestAddContextFieldsReplacesSameKey(t *testing.T) {
	ctx := WithOpponent(context.Background(), "random_player")
	ctx = WithMatch(ctx, 1)

	later := WithMatch(ctx, 2)
	cf := fieldsOf(later)
	assert.Equal(t, []string{KeyOpponent, KeyMatch}, keys(cf))
	assert.Equal(t, int64(2), cf[1].Integer)

	// The parent context is left untouched.
	assert.Equal(t, int64(1), fieldsOf(ctx)[1].Integer)
}

func TestAddContextFieldsKeepsInsertionOrder(t *testing.T) {
	ctx := AddContextFields(context.Background(), zap.String("side", "A"))
	ctx = AddContextFields(ctx, zap.String(KeyLobby, "a"), zap.String("side", "B"))

	cf := fieldsOf(ctx)
	require.Len(t, cf, 2)
	assert.Equal(t, []string{"side", KeyLobby}, keys(cf))
	assert.Equal(t, "B", cf[0].String)
}

func TestFromContext(t *testing.T) {
	core, observed := observer.New(zap.DebugLevel)
	setLogger(zap.New(core))
	t.Cleanup(Shutdown)

	ctx := WithMatch(context.Background(), 42)
	ctx = WithLobby(ctx, lobbyName("mylobby-42"))
	ctx = WithOpponent(ctx, "random_player")
	FromContext(ctx).Info("match started")

	entries := observed.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(42), fields[KeyMatch])
	assert.Equal(t, "mylobby-42", fields[KeyLobby])
	assert.Equal(t, "random_player", fields[KeyOpponent])
}
