package source

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/emitterkit/internal/model"
	"github.com/GabrielNunesIT/emitterkit/internal/testutil"
)

func TestEntryData(t *testing.T) {
	data := entryData(map[string]string{
		"MESSAGE":       "Started nginx.service",
		"_SYSTEMD_UNIT": "nginx.service",
		"_PID":          "412",
		"_BOOT_ID":      "ignored",
	}, 1768737600000000)

	assert.Equal(t, map[string]any{
		"message":      "Started nginx.service",
		"unit":         "nginx.service",
		"pid":          "412",
		"timestamp_us": uint64(1768737600000000),
	}, data)
}

func TestJournalFactory(t *testing.T) {
	factory := JournalFactory(testutil.NewTestFacade())

	em, err := factory.Build(context.Background(), model.Description{
		Type:              TypeJournal,
		ID:                "j-1",
		Name:              "units",
		EmitterProperties: json.RawMessage(`{"units":["nginx.service","sshd.service"]}`),
	})
	require.NoError(t, err)
	defer em.Dispose()

	assert.Equal(t, TypeJournal, em.Type())
	assert.Equal(t, map[string]any{"units": []string{"nginx.service", "sshd.service"}}, em.MetaData())
}
