// Package httpremote implements a driver that delegates to a remote
// multistore instance over the HTTP protocol served by serve/storehttp,
// issuing the inverse of the requests that handler accepts. Grounded on the
// teacher's HTTP-backed backends (backend/http, backend/webdav), trimmed to
// what a single logical key-value backend needs: no pagination, no
// multipart, just GET/HEAD/PUT/DELETE against a base URL.
package httpremote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/multistore/multistore/fs/config/configstruct"
	"github.com/multistore/multistore/store"
	"github.com/multistore/multistore/store/storepath"
)

func init() {
	store.Register(&store.RegInfo{
		Name:        "http",
		Description: "Remote storage exposed by another multistore instance's HTTP protocol.",
		NewDriver: func(ctx context.Context, opts map[string]string) (store.Driver, error) {
			return New(opts)
		},
	})
}

// Options configures the HTTP client driver.
type Options struct {
	// URL is the base URL of the remote protocol endpoint, e.g. "http://host:8080/".
	URL string `config:"url"`
	// Timeout bounds each request; zero means the client's default.
	Timeout time.Duration `config:"timeout" default:"30s"`
}

// Fs is the HTTP client driver.
type Fs struct {
	opt    Options
	base   string
	client *http.Client
}

var _ store.Driver = (*Fs)(nil)
var _ store.RawGetter = (*Fs)(nil)
var _ store.Setter = (*Fs)(nil)
var _ store.RawSetter = (*Fs)(nil)
var _ store.Remover = (*Fs)(nil)
var _ store.MetaGetter = (*Fs)(nil)
var _ store.Clearer = (*Fs)(nil)
var _ store.CapabilityReporter = (*Fs)(nil)

// New constructs an HTTP client driver. URL is required.
func New(opts map[string]string) (*Fs, error) {
	var o Options
	if err := configstruct.Set(opts, &o); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	if o.URL == "" {
		return nil, fmt.Errorf("http: %w: url is required", store.ErrMissingConfig)
	}
	return &Fs{
		opt:    o,
		base:   strings.TrimSuffix(o.URL, "/"),
		client: &http.Client{Timeout: o.Timeout},
	}, nil
}

func (f *Fs) String() string { return "http:" + f.base }

func (f *Fs) SupportsMaxDepth() bool { return true }
func (f *Fs) NativeTTL() bool        { return false }

func (f *Fs) urlFor(key string) string {
	return f.base + "/" + storepath.ToSlashes(key)
}

func (f *Fs) do(ctx context.Context, method, key string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, f.urlFor(key), body)
	if err != nil {
		return nil, fmt.Errorf("http: %w: %v", store.ErrBackendFailure, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w: %v", store.ErrBackendFailure, err)
	}
	return resp, nil
}

func (f *Fs) Has(ctx context.Context, key string, opts store.Options) (bool, error) {
	resp, err := f.do(ctx, http.MethodHead, key, nil, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("http: %w: status %d", store.ErrBackendFailure, resp.StatusCode)
	}
	return true, nil
}

func (f *Fs) Get(ctx context.Context, key string, opts store.Options) (string, bool, error) {
	resp, err := f.do(ctx, http.MethodGet, key, nil, nil)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode >= 400 {
		return "", false, fmt.Errorf("http: %w: status %d", store.ErrBackendFailure, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("http: %w: %v", store.ErrBackendFailure, err)
	}
	return string(body), true, nil
}

func (f *Fs) GetRaw(ctx context.Context, key string, opts store.Options) ([]byte, bool, error) {
	resp, err := f.do(ctx, http.MethodGet, key, nil, map[string]string{"Accept": "application/octet-stream"})
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("http: %w: status %d", store.ErrBackendFailure, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("http: %w: %v", store.ErrBackendFailure, err)
	}
	return body, true, nil
}

func (f *Fs) Set(ctx context.Context, key string, value string, opts store.Options) error {
	return f.put(ctx, key, strings.NewReader(value), opts, nil)
}

func (f *Fs) SetRaw(ctx context.Context, key string, data []byte, opts store.Options) error {
	return f.put(ctx, key, bytes.NewReader(data), opts, map[string]string{"Content-Type": "application/octet-stream"})
}

func (f *Fs) put(ctx context.Context, key string, body io.Reader, opts store.Options, headers map[string]string) error {
	if headers == nil {
		headers = map[string]string{}
	}
	if ttl, ok := opts.TTL(); ok {
		headers["X-TTL"] = strconv.Itoa(ttl)
	}
	resp, err := f.do(ctx, http.MethodPut, key, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("http: %w: status %d", store.ErrBackendFailure, resp.StatusCode)
	}
	return nil
}

func (f *Fs) Remove(ctx context.Context, key string, opts store.Options) error {
	resp, err := f.do(ctx, http.MethodDelete, key, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("http: %w: status %d", store.ErrBackendFailure, resp.StatusCode)
	}
	return nil
}

func (f *Fs) GetMeta(ctx context.Context, key string, opts store.Options) (store.Meta, bool, error) {
	resp, err := f.do(ctx, http.MethodHead, key, nil, nil)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return store.Meta{}, false, nil
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("http: %w: status %d", store.ErrBackendFailure, resp.StatusCode)
	}
	meta := store.Meta{}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := time.Parse(http.TimeFormat, lm); err == nil {
			meta[store.MetaMtime] = t
		}
	}
	if ttl := resp.Header.Get("X-TTL"); ttl != "" {
		if n, err := strconv.Atoi(ttl); err == nil {
			meta[store.MetaTTL] = n
		}
	}
	return meta, true, nil
}

func (f *Fs) Clear(ctx context.Context, base string, opts store.Options) error {
	key := base
	if key != "" && !strings.HasSuffix(key, storepath.Separator) {
		key += storepath.Separator
	}
	resp, err := f.do(ctx, http.MethodDelete, key, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("http: %w: status %d", store.ErrBackendFailure, resp.StatusCode)
	}
	return nil
}

func (f *Fs) ListKeys(ctx context.Context, base string, opts store.Options) ([]string, error) {
	key := base
	if key != "" && !strings.HasSuffix(key, storepath.Separator) {
		key += storepath.Separator
	}
	u := f.urlFor(key)
	if md, ok := opts[store.OptMaxDepth]; ok {
		if n, ok := md.(int); ok {
			u += "?" + url.Values{"maxDepth": {strconv.Itoa(n)}}.Encode()
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("http: %w: %v", store.ErrBackendFailure, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w: %v", store.ErrBackendFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http: %w: status %d", store.ErrBackendFailure, resp.StatusCode)
	}
	var slashed []string
	if err := json.NewDecoder(resp.Body).Decode(&slashed); err != nil {
		return nil, fmt.Errorf("http: %w: %v", store.ErrBackendFailure, err)
	}
	keys := make([]string, len(slashed))
	for i, k := range slashed {
		keys[i] = storepath.FromSlashes(k)
	}
	return keys, nil
}
