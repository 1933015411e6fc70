// Package storehttp exposes a store.Storage over HTTP: path is key, method
// maps to the operation, and the Accept/Content-Type header
// application/octet-stream toggles raw byte transfer. Grounded on the shape
// of the teacher's fs/rc/rcserver handler -- an authorization hook and a
// path-resolver hook are plain func fields on the handler's Options, not an
// interface, matching the teacher's preference for functional options over
// single-method interfaces.
package storehttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/multistore/multistore/store"
	"github.com/multistore/multistore/store/storepath"
	"github.com/multistore/multistore/store/storeval"
)

// AuthMode distinguishes read access from write access for the
// authorization hook.
type AuthMode int

const (
	ModeRead AuthMode = iota
	ModeWrite
)

// AuthFunc is consulted before every request is dispatched. A non-nil error
// denies the request; if it is an *HTTPError its Status is used, otherwise
// the denial maps to 401.
type AuthFunc func(r *http.Request, key string, mode AuthMode) error

// PathResolver rewrites the incoming request path into a key before
// normalization. The default strips the leading "/".
type PathResolver func(r *http.Request) string

// HTTPError carries an explicit HTTP status code out of a hook.
type HTTPError struct {
	Status int
	Msg    string
}

func (e *HTTPError) Error() string { return e.Msg }

// Options configures a Handler.
type Options struct {
	Storage     store.Storage
	Auth        AuthFunc
	ResolvePath PathResolver
}

// Handler serves the storage protocol. It implements http.Handler.
type Handler struct {
	opt Options
}

// NewHandler builds a Handler from opt. A nil ResolvePath defaults to
// stripping the request's leading "/".
func NewHandler(opt Options) *Handler {
	if opt.ResolvePath == nil {
		opt.ResolvePath = func(r *http.Request) string { return r.URL.Path }
	}
	return &Handler{opt: opt}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := h.opt.ResolvePath(r)
	base := path == "" || path == "/" || strings.HasSuffix(path, "/") || strings.HasSuffix(path, storepath.Separator)
	key := storepath.Normalize(storepath.FromSlashes(trimLeadingSlash(path)))
	if base && key != "" {
		// Normalize strips trailing separators; restore the base marker so
		// downstream ListKeys/Clear calls see a proper subtree root.
		key += storepath.Separator
	}

	mode := ModeRead
	switch r.Method {
	case http.MethodPut, http.MethodDelete:
		mode = ModeWrite
	}

	if h.opt.Auth != nil {
		if err := h.opt.Auth(r, key, mode); err != nil {
			status := http.StatusUnauthorized
			var he *HTTPError
			if errors.As(err, &he) {
				status = he.Status
			}
			http.Error(w, err.Error(), status)
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		if base {
			h.handleListKeys(w, r, key)
		} else {
			h.handleGet(w, r, key)
		}
	case http.MethodHead:
		h.handleHead(w, r, key)
	case http.MethodPut:
		if base {
			http.Error(w, "cannot PUT a base key", http.StatusBadRequest)
			return
		}
		h.handlePut(w, r, key)
	case http.MethodDelete:
		if base {
			h.handleClear(w, r, key)
		} else {
			h.handleDelete(w, r, key)
		}
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT, DELETE")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func isRawRequest(r *http.Request) bool {
	return r.Header.Get("Content-Type") == "application/octet-stream" ||
		r.Header.Get("Accept") == "application/octet-stream"
}

func trimLeadingSlash(p string) string {
	if p != "" && p[0] == '/' {
		return p[1:]
	}
	return p
}

func writeMetaHeaders(w http.ResponseWriter, meta store.Meta) {
	if mt, ok := meta[store.MetaMtime].(time.Time); ok {
		w.Header().Set("Last-Modified", mt.UTC().Format(http.TimeFormat))
	}
	if ttl, ok := meta[store.MetaTTL]; ok {
		if secs, ok := asInt(ttl); ok {
			w.Header().Set("X-TTL", strconv.Itoa(secs))
			w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(secs))
		}
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, key string) {
	ctx := r.Context()
	meta, _, _ := h.opt.Storage.GetMeta(ctx, key, nil)

	if isRawRequest(r) {
		data, found, err := h.opt.Storage.GetRaw(ctx, key)
		if err != nil {
			writeErr(w, err)
			return
		}
		if !found {
			http.NotFound(w, r)
			return
		}
		writeMetaHeaders(w, meta)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
		return
	}

	v, found, err := h.opt.Storage.Get(ctx, key)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	text, err := storeval.Stringify(v)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeMetaHeaders(w, meta)
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, text)
}

func (h *Handler) handleHead(w http.ResponseWriter, r *http.Request, key string) {
	ctx := r.Context()
	ok, err := h.opt.Storage.Has(ctx, key)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	meta, _, _ := h.opt.Storage.GetMeta(ctx, key, nil)
	writeMetaHeaders(w, meta)
}

func (h *Handler) handleListKeys(w http.ResponseWriter, r *http.Request, base string) {
	ctx := r.Context()
	opts := store.Options{}
	if md := r.URL.Query().Get("maxDepth"); md != "" {
		if n, err := strconv.Atoi(md); err == nil {
			opts[store.OptMaxDepth] = n
		}
	}
	keys, err := h.opt.Storage.ListKeys(ctx, base, opts)
	if err != nil {
		writeErr(w, err)
		return
	}
	slashed := make([]string, len(keys))
	for i, k := range keys {
		slashed[i] = storepath.ToSlashes(k)
	}
	writeJSON(w, slashed)
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request, key string) {
	ctx := r.Context()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts := store.Options{}
	if ttl := r.Header.Get("X-TTL"); ttl != "" {
		if n, err := strconv.Atoi(ttl); err == nil {
			opts[store.OptTTL] = n
		}
	}

	if isRawRequest(r) {
		if err := h.opt.Storage.SetRaw(ctx, key, body, opts); err != nil {
			writeErr(w, err)
			return
		}
	} else {
		v := storeval.TolerantParse(string(body))
		if err := h.opt.Storage.Set(ctx, key, v, opts); err != nil {
			writeErr(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, key string) {
	if err := h.opt.Storage.Remove(r.Context(), key, nil); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request, base string) {
	if err := h.opt.Storage.Clear(r.Context(), base, nil); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrSerialization), errors.Is(err, storeval.ErrNotSerializable):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrAuthDenied):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
