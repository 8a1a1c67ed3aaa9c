package chronicler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/emitterkit/internal/model"
	"github.com/GabrielNunesIT/emitterkit/internal/testutil"
)

type builderFunc func(ctx context.Context, desc model.ChroniclerDescription) (Chronicler, error)

func (f builderFunc) BuildChronicler(ctx context.Context, desc model.ChroniclerDescription) (Chronicler, error) {
	return f(ctx, desc)
}

func TestRecreate_Encrypted(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	fs := model.FormatSettings{
		Encrypted: true,
		Algorithm: "aes-256-gcm",
		Key:       base64.StdEncoding.EncodeToString(key),
		IV:        base64.StdEncoding.EncodeToString(key[:16]),
	}

	src := NewLoki(testIdentity, LokiProperties{URL: "http://loki", TenantID: "secret-tenant"}, testutil.NewTestLogger())
	state, err := src.SerializeState(fs)
	require.NoError(t, err)
	assert.NotContains(t, state, "secret-tenant")

	var seen model.ChroniclerDescription
	b := builderFunc(func(ctx context.Context, desc model.ChroniclerDescription) (Chronicler, error) {
		seen = desc
		return LokiFactory(testutil.NewTestLogger()).Build(ctx, desc)
	})

	got, err := Recreate(context.Background(), b, state, fs)
	require.NoError(t, err)
	assert.Equal(t, TypeLoki, seen.Type)
	assert.Equal(t, testIdentity, seen.Identity())
	assert.Equal(t, "secret-tenant", got.(*Loki).props.TenantID)
}

func TestRecreate_InvalidState(t *testing.T) {
	b := builderFunc(func(context.Context, model.ChroniclerDescription) (Chronicler, error) {
		t.Fatal("nothing should be built")
		return nil, nil
	})

	_, err := Recreate(context.Background(), b, `{"id":"c-1"}`, model.FormatSettings{})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = Recreate(context.Background(), b, `[`, model.FormatSettings{})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestFactory_BadProperties(t *testing.T) {
	_, err := StdoutFactory(testutil.NewTestLogger()).Build(context.Background(), model.ChroniclerDescription{
		Type:                 TypeStdout,
		ChroniclerProperties: json.RawMessage(`{"format":12}`),
	})
	assert.Error(t, err)
}

func TestBase_DefaultProperties(t *testing.T) {
	desc, err := NewBase("custom", testIdentity, nil).ChroniclerDescription()
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(desc.ChroniclerProperties))
	assert.Equal(t, "custom", desc.Type)
}
