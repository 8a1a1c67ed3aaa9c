// Package mocks holds testify mocks for the interfaces listed in testutil.
package mocks

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/stretchr/testify/mock"

	"github.com/GabrielNunesIT/emitterkit/internal/testutil"
)

var (
	_ testutil.RotatingWriter = (*RotatingWriter)(nil)
	_ testutil.BulkIndexer    = (*BulkIndexer)(nil)
	_ testutil.HTTPDoer       = (*HTTPDoer)(nil)
	_ testutil.Publisher      = (*Publisher)(nil)
	_ testutil.PacketConn     = (*PacketConn)(nil)
	_ testutil.Listener       = (*Listener)(nil)
	_ testutil.Conn           = (*Conn)(nil)
)

type cleanupT interface {
	mock.TestingT
	Cleanup(func())
}

// RotatingWriter is a mock rotating writer.
type RotatingWriter struct {
	mock.Mock
}

// NewRotatingWriter creates a RotatingWriter whose expectations are asserted on cleanup.
func NewRotatingWriter(t cleanupT) *RotatingWriter {
	m := &RotatingWriter{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *RotatingWriter) Write(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *RotatingWriter) Close() error {
	return m.Called().Error(0)
}

func (m *RotatingWriter) Rotate() error {
	return m.Called().Error(0)
}

// BulkIndexer is a mock esutil.BulkIndexer.
type BulkIndexer struct {
	mock.Mock
}

// NewBulkIndexer creates a BulkIndexer whose expectations are asserted on cleanup.
func NewBulkIndexer(t cleanupT) *BulkIndexer {
	m := &BulkIndexer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *BulkIndexer) Add(ctx context.Context, item esutil.BulkIndexerItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *BulkIndexer) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *BulkIndexer) Stats() esutil.BulkIndexerStats {
	return m.Called().Get(0).(esutil.BulkIndexerStats)
}

// HTTPDoer is a mock HTTP client.
type HTTPDoer struct {
	mock.Mock
}

// NewHTTPDoer creates an HTTPDoer whose expectations are asserted on cleanup.
func NewHTTPDoer(t cleanupT) *HTTPDoer {
	m := &HTTPDoer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *HTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

// Publisher is a mock message publisher.
type Publisher struct {
	mock.Mock
}

// NewPublisher creates a Publisher whose expectations are asserted on cleanup.
func NewPublisher(t cleanupT) *Publisher {
	m := &Publisher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *Publisher) Publish(subject string, data []byte) error {
	return m.Called(subject, data).Error(0)
}

func (m *Publisher) Drain() error {
	return m.Called().Error(0)
}

// PacketConn is a mock net.PacketConn.
type PacketConn struct {
	mock.Mock
}

// NewPacketConn creates a PacketConn whose expectations are asserted on cleanup.
func NewPacketConn(t cleanupT) *PacketConn {
	m := &PacketConn{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *PacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	args := m.Called(p)
	addr, _ := args.Get(1).(net.Addr)
	return args.Int(0), addr, args.Error(2)
}

func (m *PacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	args := m.Called(p, addr)
	return args.Int(0), args.Error(1)
}

func (m *PacketConn) Close() error {
	return m.Called().Error(0)
}

func (m *PacketConn) LocalAddr() net.Addr {
	addr, _ := m.Called().Get(0).(net.Addr)
	return addr
}

func (m *PacketConn) SetDeadline(t time.Time) error {
	return m.Called(t).Error(0)
}

func (m *PacketConn) SetReadDeadline(t time.Time) error {
	return m.Called(t).Error(0)
}

func (m *PacketConn) SetWriteDeadline(t time.Time) error {
	return m.Called(t).Error(0)
}

// Listener is a mock net.Listener.
type Listener struct {
	mock.Mock
}

// NewListener creates a Listener whose expectations are asserted on cleanup.
func NewListener(t cleanupT) *Listener {
	m := &Listener{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *Listener) Accept() (net.Conn, error) {
	args := m.Called()
	conn, _ := args.Get(0).(net.Conn)
	return conn, args.Error(1)
}

func (m *Listener) Close() error {
	return m.Called().Error(0)
}

func (m *Listener) Addr() net.Addr {
	addr, _ := m.Called().Get(0).(net.Addr)
	return addr
}

// Conn is a mock net.Conn.
type Conn struct {
	mock.Mock
}

// NewConn creates a Conn whose expectations are asserted on cleanup.
func NewConn(t cleanupT) *Conn {
	m := &Conn{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *Conn) Read(b []byte) (int, error) {
	args := m.Called(b)
	return args.Int(0), args.Error(1)
}

func (m *Conn) Write(b []byte) (int, error) {
	args := m.Called(b)
	return args.Int(0), args.Error(1)
}

func (m *Conn) Close() error {
	return m.Called().Error(0)
}

func (m *Conn) LocalAddr() net.Addr {
	addr, _ := m.Called().Get(0).(net.Addr)
	return addr
}

func (m *Conn) RemoteAddr() net.Addr {
	addr, _ := m.Called().Get(0).(net.Addr)
	return addr
}

func (m *Conn) SetDeadline(t time.Time) error {
	return m.Called(t).Error(0)
}

func (m *Conn) SetReadDeadline(t time.Time) error {
	return m.Called(t).Error(0)
}

func (m *Conn) SetWriteDeadline(t time.Time) error {
	return m.Called(t).Error(0)
}
