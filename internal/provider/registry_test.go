package provider

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/emitterkit/internal/chronicler"
	"github.com/GabrielNunesIT/emitterkit/internal/emitter"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
	"github.com/GabrielNunesIT/emitterkit/internal/testutil"
)

type stubEmitter struct {
	*emitter.Accepting
	typ string
}

func (s *stubEmitter) Type() string  { return s.typ }
func (s *stubEmitter) MetaData() any { return nil }

func newStub(typ string, desc model.Description) *stubEmitter {
	s := &stubEmitter{typ: typ}
	s.Accepting = emitter.NewAccepting(desc.ID, desc.Name, desc.Description, s)
	return s
}

// countingFactory builds stub emitters and counts calls.
func countingFactory(typ string, calls *int) emitter.FactoryFunc {
	return func(ctx context.Context, desc model.Description) (emitter.Emitter, error) {
		*calls++
		return newStub(typ, desc), nil
	}
}

func TestRegistry_CaseInsensitiveDispatch(t *testing.T) {
	r := New()
	calls := 0
	r.RegisterEmitterFactory("X", countingFactory("x", &calls))

	e, err := r.BuildEmitter(context.Background(), model.Description{Type: "x", ID: "e-1"})
	require.NoError(t, err)
	assert.Equal(t, "e-1", e.ID())
	assert.Equal(t, 1, calls)
	assert.True(t, r.HasEmitterFactory("x"))
	assert.True(t, r.HasEmitterFactory("X"))

	r.RemoveEmitterFactory("x")
	_, err = r.BuildEmitter(context.Background(), model.Description{Type: "x"})
	require.ErrorIs(t, err, ErrNoFactory)
	assert.Contains(t, err.Error(), `"x"`)
	assert.Equal(t, 1, calls)
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := New()
	first, second := 0, 0
	r.RegisterEmitterFactory("http", countingFactory("http", &first))
	r.RegisterEmitterFactory("HTTP", countingFactory("http", &second))

	_, err := r.BuildEmitter(context.Background(), model.Description{Type: "Http"})
	require.NoError(t, err)
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, []string{"http"}, r.EmitterFactoryTypes())
}

func TestRegistry_Types(t *testing.T) {
	r := New()
	n := 0
	r.RegisterEmitterFactory("syslog", countingFactory("syslog", &n))
	r.RegisterEmitterFactory("File", countingFactory("file", &n))
	r.RegisterChroniclerFactory("stdout", chronicler.StdoutFactory(testutil.NewTestLogger()))

	assert.Equal(t, []string{"file", "syslog"}, r.EmitterFactoryTypes())
	assert.Equal(t, []string{"stdout"}, r.ChroniclerFactoryTypes())
	assert.True(t, r.HasChroniclerFactory("STDOUT"))

	r.RemoveChroniclerFactory("stdout")
	assert.Empty(t, r.ChroniclerFactoryTypes())
	assert.False(t, r.HasChroniclerFactory("stdout"))
}

func TestRegistry_BuildErrorIsWrapped(t *testing.T) {
	r := New()
	boom := errors.New("bad properties")
	r.RegisterEmitterFactory("x", emitter.FactoryFunc(func(context.Context, model.Description) (emitter.Emitter, error) {
		return nil, boom
	}))

	_, err := r.BuildEmitter(context.Background(), model.Description{Type: "x", ID: "e-1"})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoFactory)
}

func TestRegistry_RecreateEmitter(t *testing.T) {
	key := make([]byte, 32)
	iv := make([]byte, 16)
	_, _ = rand.Read(key)
	_, _ = rand.Read(iv)
	encrypted := model.FormatSettings{
		Encrypted: true,
		Algorithm: "aes-256-gcm",
		Key:       base64.StdEncoding.EncodeToString(key),
		IV:        base64.StdEncoding.EncodeToString(iv),
	}

	for name, fs := range map[string]model.FormatSettings{"plain": {}, "aes-256-gcm": encrypted} {
		t.Run(name, func(t *testing.T) {
			r := New()
			calls := 0
			r.RegisterEmitterFactory("stub", countingFactory("stub", &calls))

			orig := newStub("stub", model.Description{ID: "e-7", Name: "pump", Description: "line 3"})
			defer orig.Dispose()

			state, err := orig.SerializeState(fs.WithType("stub"))
			require.NoError(t, err)

			got, err := r.RecreateEmitter(context.Background(), state, fs.WithType("STUB"))
			require.NoError(t, err)
			assert.Equal(t, "e-7", got.ID())
			assert.Equal(t, "pump", got.Name())
			assert.Equal(t, "line 3", got.Description())

			got, err = r.RecreateEmitter(context.Background(), state, fs)
			require.NoError(t, err, "empty type dispatches on the description")
			assert.Equal(t, "e-7", got.ID())
			assert.Equal(t, 2, calls)

			_, err = r.RecreateEmitter(context.Background(), state, fs.WithType("other"))
			assert.ErrorIs(t, err, ErrNoFactory)
		})
	}
}

func TestRegistry_Chroniclers(t *testing.T) {
	r := New()
	r.RegisterChroniclerFactory("Stdout", chronicler.StdoutFactory(testutil.NewTestLogger()))

	desc := model.ChroniclerDescription{Type: "stdout", ID: "c-1", Name: "console"}
	c, err := r.BuildChronicler(context.Background(), desc)
	require.NoError(t, err)
	assert.Equal(t, "console", c.Name())

	state, err := c.SerializeState(model.FormatSettings{})
	require.NoError(t, err)

	got, err := r.RecreateChronicler(context.Background(), state, model.FormatSettings{Type: "STDOUT"})
	require.NoError(t, err)
	assert.Equal(t, "c-1", got.ID())

	got, err = r.RecreateChronicler(context.Background(), state, model.FormatSettings{})
	require.NoError(t, err)
	assert.Equal(t, "c-1", got.ID())

	_, err = r.BuildChronicler(context.Background(), model.ChroniclerDescription{Type: "kafka"})
	assert.ErrorIs(t, err, ErrNoFactory)
	_, err = r.RecreateChronicler(context.Background(), state, model.FormatSettings{Type: "kafka"})
	assert.ErrorIs(t, err, ErrNoFactory)
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := 0
			for j := 0; j < 50; j++ {
				r.RegisterEmitterFactory("x", countingFactory("x", &n))
				_ = r.HasEmitterFactory("x")
				_ = r.EmitterFactoryTypes()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"x"}, r.EmitterFactoryTypes())
}
