package builtin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/emitterkit/internal/model"
	"github.com/GabrielNunesIT/emitterkit/internal/testutil"
)

func TestNewRegistry_Types(t *testing.T) {
	r := NewRegistry(testutil.NewTestLogger())

	assert.Equal(t, []string{"file", "http", "journal", "syslog"}, r.EmitterFactoryTypes())
	assert.Equal(t, []string{"elasticsearch", "file", "loki", "nats", "sqlite", "stdout"}, r.ChroniclerFactoryTypes())
}

func TestNewRegistry_BuildAndRecreate(t *testing.T) {
	r := NewRegistry(testutil.NewTestLogger())
	ctx := context.Background()

	em, err := r.BuildEmitter(ctx, model.Description{
		Type:              "HTTP",
		ID:                "e-1",
		Name:              "boiler",
		EmitterProperties: json.RawMessage(`{"url":"http://gateway/temp"}`),
	})
	require.NoError(t, err)
	defer em.Dispose()

	state, err := em.SerializeState(model.FormatSettings{})
	require.NoError(t, err)

	clone, err := r.RecreateEmitter(ctx, state, model.FormatSettings{Type: "http"})
	require.NoError(t, err)
	defer clone.Dispose()
	assert.Equal(t, "boiler", clone.Name())

	c, err := r.BuildChronicler(ctx, model.ChroniclerDescription{Type: "stdout", ID: "c-1", Name: "console"})
	require.NoError(t, err)
	assert.Equal(t, "stdout", c.Type())
	require.NoError(t, c.DisposeAsync(ctx))
}
