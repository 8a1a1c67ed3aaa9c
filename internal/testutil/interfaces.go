package testutil

import (
	"net"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esutil"
)

// The interfaces below are the ones the mocks package covers.

// RotatingWriter mirrors chronicler.RotatingWriter.
type RotatingWriter interface {
	Write(p []byte) (int, error)
	Close() error
	Rotate() error
}

// BulkIndexer wraps esutil.BulkIndexer.
type BulkIndexer interface {
	esutil.BulkIndexer
}

// HTTPDoer mirrors chronicler.HTTPDoer and source.HTTPDoer.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Publisher mirrors chronicler.Publisher.
type Publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// PacketConn wraps net.PacketConn.
type PacketConn interface {
	net.PacketConn
}

// Listener wraps net.Listener.
type Listener interface {
	net.Listener
}

// Conn wraps net.Conn.
type Conn interface {
	net.Conn
}
