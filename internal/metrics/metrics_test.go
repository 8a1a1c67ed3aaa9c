package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/emitterkit/internal/emitter"
)

type gauge struct {
	*emitter.Accepting
}

func (g *gauge) Type() string  { return "gauge" }
func (g *gauge) MetaData() any { return nil }

func newGauge() *gauge {
	g := &gauge{}
	g.Accepting = emitter.NewAccepting("g-1", "tank", "level sensor", g)
	return g
}

func TestObserve(t *testing.T) {
	m := New()
	g := newGauge()
	defer g.Dispose()

	obs := m.Observe(g)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.connected.WithLabelValues("g-1", "gauge")))

	g.Accept(1.5)
	g.Accept(1.6)
	g.Reject(errors.New("sensor offline"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dataEvents.WithLabelValues("g-1", "gauge")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.statusChanges.WithLabelValues("g-1", "gauge")), "connect then fault")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connected.WithLabelValues("g-1", "gauge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.faulted.WithLabelValues("g-1", "gauge")))

	obs.Dispose()
	g.Accept(1.7)
	assert.Equal(t, 0, testutil.CollectAndCount(m.dataEvents), "series are removed once the emitter is forgotten")
}

func TestRecordSavedAndDropped(t *testing.T) {
	m := New()

	m.RecordSaved("c-1", nil)
	m.RecordSaved("c-1", nil)
	m.RecordSaved("c-1", errors.New("index closed"))
	m.Dropped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.records.WithLabelValues("c-1", "saved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.records.WithLabelValues("c-1", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Dropped()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "emitterkit_pipeline_dropped_events_total 1"))
}
