// Copyright © 2018 One Concern

// Package remote is the protocol adapter for remote repository services.
//
// Each endpoint of the service is exposed as a method. Lookups are sent as GET
// requests with query parameters, metadata-only calls as POST requests with a
// JSON body, and uploads as multipart forms.
//
// Errors match the sentinels declared in the status subpackage.
package remote

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oneconcern/otarepo/pkg/errors"
	"github.com/oneconcern/otarepo/pkg/remote/status"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxErrorBody = 64 * 1024

// Client for a remote repository service
type Client struct {
	endpoint   string
	base       *url.URL
	http       *http.Client
	user       string
	password   string
	timeout    time.Duration
	maxUpload  int64
	limiter    *rate.Limiter
	registerer prometheus.Registerer
	metrics    *M
	tracer     opentracing.Tracer
	l          *zap.Logger
}

// New client for the repository service at some endpoint URL
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(endpoint), "/"))
	if err != nil {
		return nil, status.ErrInvalidRequest.Wrapf("endpoint %q: %v", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, status.ErrInvalidRequest.Wrapf("endpoint %q is not an http(s) URL", endpoint)
	}

	c := &Client{
		endpoint: u.String(),
		http:     http.DefaultClient,
		tracer:   opentracing.GlobalTracer(),
		l:        zap.NewNop(),
	}
	for _, apply := range opts {
		apply(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	if c.metrics, err = newMetrics(c.registerer); err != nil {
		return nil, err
	}

	u.Path += ServicePath
	c.base = u
	return c, nil
}

// Endpoint of the repository service
func (c *Client) Endpoint() string {
	return c.endpoint
}

// User sending the requests
func (c *Client) User() string {
	return c.user
}

// request to an endpoint
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

func getRequest(path string, query url.Values) request {
	return request{method: http.MethodGet, path: path, query: query}
}

func postJSON(path string, query url.Values, payload interface{}) (request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return request{}, status.ErrInvalidRequest.Wrap(err)
	}
	return request{
		method:      http.MethodPost,
		path:        path,
		query:       query,
		body:        body,
		contentType: "application/json",
	}, nil
}

// form builds multipart/form-data requests
type form struct {
	buf       bytes.Buffer
	w         *multipart.Writer
	maxUpload int64
	err       error
}

func (c *Client) newForm() *form {
	f := &form{maxUpload: c.maxUpload}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *form) field(name, value string) *form {
	if f.err != nil {
		return f
	}
	f.err = f.w.WriteField(name, value)
	return f
}

func (f *form) jsonField(name string, payload interface{}) *form {
	if f.err != nil {
		return f
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		f.err = err
		return f
	}
	return f.field(name, string(buf))
}

func (f *form) file(name, filename string, content io.Reader) *form {
	if f.err != nil {
		return f
	}
	part, err := f.w.CreateFormFile(name, filename)
	if err != nil {
		f.err = err
		return f
	}
	rdr := content
	if f.maxUpload > 0 {
		rdr = io.LimitReader(content, f.maxUpload+1)
	}
	n, err := io.Copy(part, rdr)
	if err != nil {
		f.err = err
		return f
	}
	if f.maxUpload > 0 && n > f.maxUpload {
		f.err = status.ErrTooLarge.Wrapf("%s exceeds %d bytes", filename, f.maxUpload)
	}
	return f
}

func (f *form) request(path string) (request, error) {
	if f.err == nil {
		f.err = f.w.Close()
	}
	if f.err != nil {
		if errors.Is(f.err, status.ErrTooLarge) {
			return request{}, f.err
		}
		return request{}, status.ErrInvalidRequest.Wrap(f.err)
	}
	return request{
		method:      http.MethodPost,
		path:        path,
		body:        f.buf.Bytes(),
		contentType: f.w.FormDataContentType(),
	}, nil
}

// URL of an endpoint
func (c *Client) URL(path string, query url.Values) string {
	u := *c.base
	u.Path += path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// send a request and return the response of a successful call. The caller closes the body.
func (c *Client) send(ctx context.Context, rq request) (_ *http.Response, err error) {
	start := time.Now()
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, c.tracer, "remote"+rq.path)
	defer func() {
		if err != nil {
			ext.Error.Set(span, true)
			span.LogKV("error", err.Error())
		}
		span.Finish()
		c.metrics.record(rq.path, start, err)
	}()

	if c.limiter != nil {
		if err = c.limiter.Wait(ctx); err != nil {
			return nil, status.ErrUnavailable.Wrap(err)
		}
	}
	target := c.URL(rq.path, rq.query)
	var body io.Reader
	if rq.body != nil {
		body = bytes.NewReader(rq.body)
	}
	req, err := http.NewRequestWithContext(ctx, rq.method, target, body)
	if err != nil {
		return nil, status.ErrInvalidRequest.Wrap(err)
	}
	if rq.contentType != "" {
		req.Header.Set("Content-Type", rq.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}
	ext.HTTPMethod.Set(span, rq.method)
	ext.HTTPUrl.Set(span, target)

	resp, err := c.http.Do(req)
	if err != nil {
		c.l.Debug("remote call failed", zap.String("method", rq.method), zap.String("url", target), zap.Error(err))
		return nil, status.ErrUnavailable.Wrap(err)
	}
	ext.HTTPStatusCode.Set(span, uint16(resp.StatusCode))
	c.l.Debug("remote call",
		zap.String("method", rq.method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := ioutil.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, status.FromResponse(resp.StatusCode, errorMessage(raw))
	}
	return resp, nil
}

func errorMessage(raw []byte) string {
	var e ErrorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(raw))
}

// call an endpoint and decode the JSON response, if a target is provided
func (c *Client) call(ctx context.Context, rq request, target interface{}) error {
	resp, err := c.send(ctx, rq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return status.ErrUnavailable.Wrap(err)
	}
	if target == nil {
		return nil
	}
	if err = json.Unmarshal(raw, target); err != nil {
		return status.ErrUnreadable.Wrapf("%s: %v", rq.path, err)
	}
	return nil
}

// raw calls an endpoint and returns the response body as is
func (c *Client) raw(ctx context.Context, rq request) ([]byte, error) {
	resp, err := c.send(ctx, rq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, status.ErrUnavailable.Wrap(err)
	}
	return raw, nil
}
