package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/emitterkit/internal/emitter"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
	"github.com/GabrielNunesIT/emitterkit/internal/testutil"
)

var tailID = model.Identity{ID: "f-1", Name: "app-log", Description: "application log"}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func nextLine(t *testing.T, ch <-chan emitter.DataEvent) map[string]any {
	t.Helper()
	select {
	case evt := <-ch:
		return evt.Data.(map[string]any)
	case <-time.After(2 * time.Second): // file system events can be slow
		t.Fatal("timeout waiting for a line")
		return nil
	}
}

func TestFile_TailsAndFollowsRotation(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "app.log")
	appendLine(t, logFile, "line 1")

	f := NewFile(tailID, FileProperties{Paths: []string{filepath.Join(dir, "*.log")}}, testutil.NewTestFacade())
	defer f.Dispose()

	lines := make(chan emitter.DataEvent, 10)
	f.OnData(emitter.DataListenerFunc(func(evt emitter.DataEvent) { lines <- evt }))

	require.NoError(t, f.Start(context.Background()))

	// Existing content is skipped.
	appendLine(t, logFile, "line 2")
	got := nextLine(t, lines)
	assert.Equal(t, "line 2", got["line"])
	assert.Equal(t, logFile, got["file"])
	assert.True(t, f.IsConnected())

	require.NoError(t, os.Rename(logFile, logFile+".1"))
	appendLine(t, logFile, "line 3")
	assert.Equal(t, "line 3", nextLine(t, lines)["line"])
}

func TestFile_StopEndsTailing(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "app.log")
	appendLine(t, logFile, "seed")

	f := NewFile(tailID, FileProperties{Paths: []string{logFile}}, testutil.NewTestFacade())
	defer f.Dispose()

	rec := &recorder{}
	f.OnData(rec)

	require.NoError(t, f.Start(context.Background()))
	require.NoError(t, f.Stop(context.Background()))
	assert.False(t, f.run.running())

	appendLine(t, logFile, "after stop")
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.dataEvents())
}

func TestFile_StartAfterDispose(t *testing.T) {
	f := NewFile(tailID, FileProperties{Paths: []string{filepath.Join(t.TempDir(), "*.log")}}, testutil.NewTestFacade())
	f.Dispose()
	assert.ErrorIs(t, f.Start(context.Background()), emitter.ErrDisposed)
}

func TestFile_Exclude(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(tailID, FileProperties{
		Paths:   []string{filepath.Join(dir, "*.log")},
		Exclude: []string{"*.exclude.log"},
	}, testutil.NewTestFacade())
	defer f.Dispose()

	assert.True(t, f.isExcluded(filepath.Join(dir, "test.exclude.log")))
	assert.False(t, f.isExcluded(filepath.Join(dir, "test.log")))
	assert.Equal(t, []string{"a.log"}, f.filterExcluded([]string{"a.log", "b.exclude.log"}))
	assert.True(t, f.matchesPatterns(filepath.Join(dir, "new.log")))
	assert.False(t, f.matchesPatterns(filepath.Join(dir, "new.txt")))
}

func TestTrimNewline(t *testing.T) {
	assert.Equal(t, "a", trimNewline("a\n"))
	assert.Equal(t, "a", trimNewline("a\r\n"))
	assert.Equal(t, "a", trimNewline("a"))
	assert.Equal(t, "", trimNewline("\n"))
}

func TestFileFactory(t *testing.T) {
	factory := FileFactory(testutil.NewTestFacade())
	ctx := context.Background()

	_, err := factory.Build(ctx, model.Description{Type: TypeFile, ID: "f-1"})
	require.Error(t, err, "paths are required")

	_, err = factory.Build(ctx, model.Description{Type: TypeFile, ID: "f-1", EmitterProperties: json.RawMessage(`{"paths":["[-]"]}`)})
	require.Error(t, err, "malformed glob")

	em, err := factory.Build(ctx, model.Description{
		Type:              TypeFile,
		ID:                "f-1",
		Name:              "app-log",
		EmitterProperties: json.RawMessage(`{"paths":["/var/log/app/*.log"],"disconnectInterval":"1m"}`),
	})
	require.NoError(t, err)
	defer em.Dispose()
	assert.Equal(t, TypeFile, em.Type())

	state, err := em.SerializeState(model.FormatSettings{})
	require.NoError(t, err)
	assert.Contains(t, state, `"paths":["/var/log/app/*.log"]`)
	assert.Contains(t, state, `"disconnectInterval":"1m0s"`)
}

func TestFile_PropertiesFollowAppliedDisconnectSettings(t *testing.T) {
	f := NewFile(tailID, FileProperties{Paths: []string{filepath.Join(t.TempDir(), "*.log")}}, testutil.NewTestFacade())
	defer f.Dispose()

	assert.Zero(t, f.EmitterProperties().(FileProperties).DisconnectInterval)

	res := f.ApplySettings(context.Background(), model.Settings{
		ActionID:            "a-1",
		ID:                  tailID.ID,
		Name:                tailID.Name,
		DisconnectInterval:  time.Minute,
		DisconnectThreshold: 2 * time.Minute,
	})
	require.True(t, res.Success, res.FailureReason)

	props := f.EmitterProperties().(FileProperties)
	assert.Equal(t, model.Duration(time.Minute), props.DisconnectInterval)
	assert.Equal(t, model.Duration(2*time.Minute), props.DisconnectThreshold)
}
