// Package http provides a small chi-router-based HTTP server scaffold
// shared by everything this module serves over the network: default
// Options (DefaultOpt) and a constructor for standalone servers, mirroring
// the teacher's lib/http package. There is no package-level server.
package http

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	fslog "github.com/multistore/multistore/fs/log"
)

var errTLSListenerWithoutCert = errors.New("http: tls listener requires tls_cert and tls_key")

// Options configures a Server.
type Options struct {
	ListenAddr         string `config:"addr"`
	BaseURL            string `config:"base_url"`
	ServerReadTimeout  int    `config:"read_timeout"`
	ServerWriteTimeout int    `config:"write_timeout"`
	MaxHeaderBytes     int    `config:"max_header_bytes"`
	TLSCert            string `config:"tls_cert"`
	TLSKey             string `config:"tls_key"`
}

// DefaultOpt is the zero-configuration default: listen on localhost:8080,
// no base URL, no TLS.
var DefaultOpt = Options{
	ListenAddr: "127.0.0.1:8080",
}

func useSSL(opt Options) bool {
	return opt.TLSCert != "" && opt.TLSKey != ""
}

// Server is a running HTTP(S) listener plus the chi router mounted beneath
// it. Routes are registered with Mount/Route before Serve is called.
type Server struct {
	opt        Options
	baseRouter *chi.Mux
	httpServer *http.Server
	addrs      []net.Addr
	tlsAddrs   []net.Addr

	mu       sync.Mutex
	listener net.Listener
}

// NewServer constructs a Server bound to listener (plain), wrapping
// baseRouter in a BaseURL-stripping prefix handler when opt.BaseURL is set.
// A non-nil tlsListener requires opt.TLSCert and opt.TLSKey; its certificate
// is loaded and its address recorded, but Serve accepts connections only on
// the plain listener.
func NewServer(listener net.Listener, tlsListener net.Listener, opt Options) (*Server, error) {
	router := chi.NewRouter()

	var handler http.Handler = router
	base := strings.Trim(opt.BaseURL, "/")
	if base != "" {
		handler = http.StripPrefix("/"+base, router)
	}

	httpServer := &http.Server{
		Handler:        handler,
		ReadTimeout:    time.Duration(opt.ServerReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(opt.ServerWriteTimeout) * time.Second,
		MaxHeaderBytes: opt.MaxHeaderBytes,
	}

	s := &Server{
		opt:        opt,
		baseRouter: router,
		httpServer: httpServer,
	}

	if listener != nil {
		s.addrs = append(s.addrs, listener.Addr())
		s.listener = listener
	}
	if tlsListener != nil {
		if !useSSL(opt) {
			return nil, errTLSListenerWithoutCert
		}
		cert, err := tls.LoadX509KeyPair(opt.TLSCert, opt.TLSKey)
		if err != nil {
			return nil, err
		}
		httpServer.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		s.tlsAddrs = append(s.tlsAddrs, tlsListener.Addr())
	}

	return s, nil
}

// Mount registers h to handle every request under pattern.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.baseRouter.Mount(pattern, h)
}

// Route registers routes built by fn under pattern, chi-style.
func (s *Server) Route(pattern string, fn func(r chi.Router)) {
	s.baseRouter.Route(pattern, fn)
}

// Serve blocks, accepting connections on the configured listener until
// Shutdown is called. It returns http.ErrServerClosed on a clean shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return nil
	}
	fslog.Logf(s, "serving on %s", listener.Addr())
	return s.httpServer.Serve(listener)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// URL returns the base URL the server is reachable at, empty if it has no
// plain listener.
func (s *Server) URL() string {
	if len(s.addrs) == 0 {
		return ""
	}
	scheme := "http"
	if useSSL(s.opt) {
		scheme = "https"
	}
	base := strings.Trim(s.opt.BaseURL, "/")
	if base != "" {
		return scheme + "://" + s.addrs[0].String() + "/" + base + "/"
	}
	return scheme + "://" + s.addrs[0].String() + "/"
}

func (s *Server) String() string { return "http.Server(" + s.URL() + ")" }
