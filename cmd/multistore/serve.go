package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/multistore/multistore/backend/httpremote"
	_ "github.com/multistore/multistore/backend/local"
	_ "github.com/multistore/multistore/backend/memory"
	_ "github.com/multistore/multistore/backend/overlay"

	fslog "github.com/multistore/multistore/fs/log"
	httplib "github.com/multistore/multistore/lib/http"
	"github.com/multistore/multistore/serve/storehttp"
	"github.com/multistore/multistore/store"
	"github.com/multistore/multistore/store/engine"
)

var (
	serveDir  string
	servePort int
)

// newRootCmd builds the command tree: the root command itself serves
// (the default), and "serve" is the same behavior spelled out explicitly.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "multistore [dir]",
		Short:         "Serve a directory tree as a multistore HTTP storage endpoint",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVarP(&serveDir, "dir", "d", ".", "root directory backing the filesystem driver")
	root.PersistentFlags().IntVarP(&servePort, "port", "p", 8080, "port to listen on")

	serveCmd := &cobra.Command{
		Use:   "serve [dir]",
		Short: root.Short,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runServe,
	}
	root.AddCommand(serveCmd)
	return root
}

// runServe builds a filesystem-rooted engine and serves it over HTTP until
// interrupted. A panic anywhere in the setup/serve path is recovered and
// reported as an error so main exits non-zero instead of crashing raw.
func runServe(cmd *cobra.Command, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("multistore: panic: %v", r)
		}
	}()

	dir := serveDir
	if len(args) > 0 {
		dir = args[0]
	}

	rootDriver, err := store.New(cmd.Context(), "local", map[string]string{"base_dir": dir})
	if err != nil {
		return fmt.Errorf("multistore: %w", err)
	}

	eng, err := engine.New(rootDriver, nil)
	if err != nil {
		return fmt.Errorf("multistore: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", servePort))
	if err != nil {
		return fmt.Errorf("multistore: bind: %w", err)
	}

	srv, err := httplib.NewServer(listener, nil, httplib.Options{})
	if err != nil {
		return fmt.Errorf("multistore: %w", err)
	}
	srv.Mount("/", storehttp.NewHandler(storehttp.Options{Storage: eng}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fslog.Infof(nil, "multistore: serving %s on %s", dir, srv.URL())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fslog.Errorf(nil, "multistore: shutdown: %v", err)
		}
		_ = eng.Dispose(shutdownCtx)
		return nil
	case serveErr := <-errCh:
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("multistore: %w", serveErr)
		}
		return nil
	}
}
