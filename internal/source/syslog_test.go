package source

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/emitterkit/internal/emitter"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
	"github.com/GabrielNunesIT/emitterkit/internal/testutil"
	"github.com/GabrielNunesIT/emitterkit/internal/testutil/mocks"
)

var syslogID = model.Identity{ID: "s-1", Name: "edge-syslog", Description: "router logs"}

// closeSignal is closed the first time the mocked socket is closed.
func closeSignal() (chan struct{}, func(mock.Arguments)) {
	closed := make(chan struct{})
	var once sync.Once
	return closed, func(mock.Arguments) { once.Do(func() { close(closed) }) }
}

func waitEvent(t *testing.T, ch <-chan emitter.DataEvent) map[string]any {
	t.Helper()
	select {
	case evt := <-ch:
		return evt.Data.(map[string]any)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for syslog message")
		return nil
	}
}

func TestSyslog_UDP(t *testing.T) {
	message := "<134>Oct 11 22:14:15 mymachine su: 'su root' failed for lonvick on /dev/pts/8"
	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1234}

	pc := mocks.NewPacketConn(t)
	closed, onClose := closeSignal()

	pc.On("ReadFrom", mock.Anything).Run(func(args mock.Arguments) {
		copy(args.Get(0).([]byte), message)
	}).Return(len(message), remote, nil).Once()
	pc.On("ReadFrom", mock.Anything).Run(func(mock.Arguments) { <-closed }).Return(0, nil, net.ErrClosed)
	pc.On("Close").Run(onClose).Return(nil)

	s := NewSyslog(syslogID, SyslogProperties{Protocol: "UDP", Address: ":5140"}, testutil.NewTestFacade(),
		WithUDPListenerFactory(func(network, address string) (net.PacketConn, error) {
			assert.Equal(t, "udp", network)
			assert.Equal(t, ":5140", address)
			return pc, nil
		}))
	defer s.Dispose()

	events := make(chan emitter.DataEvent, 1)
	s.OnData(emitter.DataListenerFunc(func(evt emitter.DataEvent) { events <- evt }))

	require.NoError(t, s.Start(context.Background()))

	got := waitEvent(t, events)
	assert.Equal(t, message, got["raw"])
	assert.Equal(t, "udp", got["protocol"])
	assert.Equal(t, "127.0.0.1:1234", got["remote_addr"])
	assert.Equal(t, "local0", got["facility"])
	assert.Equal(t, "info", got["severity"])
	assert.True(t, s.IsConnected())

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.run.running())
}

func TestSyslog_TCP(t *testing.T) {
	message := "<13>Oct 11 22:14:15 mymachine test\n"

	l := mocks.NewListener(t)
	conn := mocks.NewConn(t)
	closed, onClose := closeSignal()

	l.On("Accept").Return(conn, nil).Once()
	l.On("Accept").Run(func(mock.Arguments) { <-closed }).Return(nil, net.ErrClosed)
	l.On("Close").Run(onClose).Return(nil)

	conn.On("Read", mock.Anything).Run(func(args mock.Arguments) {
		copy(args.Get(0).([]byte), message)
	}).Return(len(message), nil).Once()
	conn.On("Read", mock.Anything).Return(0, io.EOF)
	conn.On("RemoteAddr").Return(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1234})
	conn.On("Close").Return(nil)

	s := NewSyslog(syslogID, SyslogProperties{Protocol: "tcp"}, testutil.NewTestFacade(),
		WithTCPListenerFactory(func(network, address string) (net.Listener, error) {
			assert.Equal(t, DefaultSyslogAddress, address)
			return l, nil
		}))
	defer s.Dispose()

	events := make(chan emitter.DataEvent, 1)
	s.OnData(emitter.DataListenerFunc(func(evt emitter.DataEvent) { events <- evt }))

	require.NoError(t, s.Start(context.Background()))

	got := waitEvent(t, events)
	assert.Equal(t, "<13>Oct 11 22:14:15 mymachine test", got["raw"])
	assert.Equal(t, "tcp", got["protocol"])
	assert.Equal(t, "user", got["facility"])
	assert.Equal(t, "notice", got["severity"])

	require.NoError(t, s.Stop(context.Background()))
}

func TestSyslog_BindFailureFaults(t *testing.T) {
	s := NewSyslog(syslogID, SyslogProperties{}, testutil.NewTestFacade(),
		WithUDPListenerFactory(func(network, address string) (net.PacketConn, error) {
			return nil, errors.New("address in use")
		}))
	defer s.Dispose()

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
	assert.True(t, s.IsFaulted())
}

func TestParseSyslog(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     map[string]any
		noHeader bool
	}{
		{
			name: "RFC 3164",
			raw:  "<34>Oct 11 22:14:15 mymachine su: failed",
			want: map[string]any{"priority": 34, "facility": "auth", "severity": "crit", "message": "Oct 11 22:14:15 mymachine su: failed"},
		},
		{
			name: "RFC 5424",
			raw:  "<165>1 2003-10-11T22:14:15.003Z host app - ID47 - hi",
			want: map[string]any{"priority": 165, "facility": "local4", "severity": "notice", "message": "1 2003-10-11T22:14:15.003Z host app - ID47 - hi"},
		},
		{name: "no header", raw: "plain text", noHeader: true},
		{name: "unterminated", raw: "<12 oops", noHeader: true},
		{name: "not a number", raw: "<ab>text", noHeader: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSyslog(tt.raw, "udp", "10.0.0.1:514")
			assert.Equal(t, tt.raw, got["raw"])
			if tt.noHeader {
				assert.NotContains(t, got, "priority")
				assert.Equal(t, tt.raw, got["message"])
				return
			}
			for k, v := range tt.want {
				assert.Equal(t, v, got[k], k)
			}
		})
	}
}

func TestSyslogFactory(t *testing.T) {
	factory := SyslogFactory(testutil.NewTestFacade())
	ctx := context.Background()

	_, err := factory.Build(ctx, model.Description{Type: TypeSyslog, ID: "s-1", EmitterProperties: json.RawMessage(`{"protocol":"sctp"}`)})
	require.Error(t, err)

	em, err := factory.Build(ctx, model.Description{Type: TypeSyslog, ID: "s-1", EmitterProperties: json.RawMessage(`{"protocol":"tcp","address":":6514"}`)})
	require.NoError(t, err)
	defer em.Dispose()
	assert.Equal(t, map[string]string{"protocol": "tcp", "address": ":6514"}, em.MetaData())
}
