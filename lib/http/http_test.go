package http

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestListener(t *testing.T) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return l
}

func TestNewServerPlain(t *testing.T) {
	l := newTestListener(t)
	defer l.Close()

	s, err := NewServer(l, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, l.Addr(), s.addrs[0])
	assert.Empty(t, s.tlsAddrs)
	assert.Nil(t, s.httpServer.TLSConfig)
}

func TestMountDispatches(t *testing.T) {
	l := newTestListener(t)
	defer l.Close()

	s, err := NewServer(l, nil, Options{})
	require.NoError(t, err)
	s.Mount("/hello", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("world"))
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/hello/x", nil)
	s.httpServer.Handler.ServeHTTP(rr, req)
	assert.Equal(t, "world", rr.Body.String())
}

func TestBaseURLStripped(t *testing.T) {
	l := newTestListener(t)
	defer l.Close()

	s, err := NewServer(l, nil, Options{BaseURL: "/api"})
	require.NoError(t, err)
	assert.NotSame(t, http.Handler(s.baseRouter), s.httpServer.Handler)

	s.Mount("/hello", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("world"))
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/hello/x", nil)
	s.httpServer.Handler.ServeHTTP(rr, req)
	assert.Equal(t, "world", rr.Body.String())
}

func TestURL(t *testing.T) {
	l := newTestListener(t)
	defer l.Close()

	s, err := NewServer(l, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "http://"+l.Addr().String()+"/", s.URL())
}

func TestShutdown(t *testing.T) {
	l := newTestListener(t)

	s, err := NewServer(l, nil, Options{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	require.NoError(t, s.Shutdown(context.Background()))
	err = <-done
	assert.ErrorIs(t, err, http.ErrServerClosed)
}

func TestTLSListenerRequiresCert(t *testing.T) {
	l := newTestListener(t)
	defer l.Close()
	tl := newTestListener(t)
	defer tl.Close()

	_, err := NewServer(l, tl, Options{})
	assert.ErrorIs(t, err, errTLSListenerWithoutCert)
}
