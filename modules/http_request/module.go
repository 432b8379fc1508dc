// Package http_request provides the HTTP_REQUEST job, which probes an HTTP
// endpoint and reports its status code and latency.
package http_request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/vk/tracesweep/internal/ctxlog"
	"github.com/vk/tracesweep/internal/job"
	"github.com/vk/tracesweep/internal/paramspec"
	"github.com/vk/tracesweep/internal/registry"
	"github.com/vk/tracesweep/internal/variable"
)

// Class is the object_type of the job.
const Class = "HTTP_REQUEST"

// Module registers HTTP_REQUEST. Jobs share Client when it is set; otherwise
// every job gets its own client with the job's timeout.
type Module struct {
	Client *http.Client
}

// Params defines the arguments of an HTTP_REQUEST job. url may be "?" and
// filled from the winner of a previous step.
type Params struct {
	URL          variable.Deferred[string]   `param:"url"`
	Method       string                      `param:"method" default:"GET"`
	Timeout      time.Duration               `param:"timeout" default:"10s"`
	ExpectStatus paramspec.OneOf[int, []int] `param:"expect_status,optional"`
	Headers      map[string]string           `param:"headers,optional"`
	Body         string                      `param:"body,optional"`
}

func (p *Params) Validate() error {
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", p.Timeout)
	}
	return nil
}

// Job sends one request when run.
type Job struct {
	job.Base

	URL    variable.Deferred[string] `param:"url"`
	Method string                    `param:"method"`

	timeout time.Duration
	expect  []int
	headers map[string]string
	body    string
	client  *http.Client
}

// New creates a job from its parameters. client may be nil.
func New(p Params, client *http.Client) (*Job, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	j := &Job{
		URL:     p.URL,
		Method:  strings.ToUpper(p.Method),
		timeout: p.Timeout,
		headers: p.Headers,
		body:    p.Body,
		client:  client,
	}
	if code, ok := p.ExpectStatus.A(); ok {
		j.expect = []int{code}
	} else if codes, ok := p.ExpectStatus.B(); ok {
		j.expect = codes
	}
	if j.client == nil {
		j.client = newClient(p.Timeout)
	}
	return j, nil
}

func newClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func (*Job) Kind() string { return Class }

// Run sends the request. A transport error or an unexpected status code fails
// the job; with no expected codes any status below 400 is accepted.
func (j *Job) Run(ctx context.Context) (job.Body, error) {
	url, ok := j.URL.Get()
	if !ok {
		return nil, fmt.Errorf("url was never determined")
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("Making HTTP request", "method", j.Method, "url", url)

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	var reqBody io.Reader
	if j.body != "" {
		reqBody = strings.NewReader(j.body)
	}
	req, err := http.NewRequestWithContext(ctx, j.Method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range j.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	latency := time.Since(start)

	logger.Info("Received HTTP response", "status", resp.Status, "latency", latency)

	if !j.accepts(resp.StatusCode) {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return job.Body{
		"status_code":     resp.StatusCode,
		"latency_seconds": latency.Seconds(),
		"bytes":           n,
	}, nil
}

func (j *Job) accepts(code int) bool {
	if len(j.expect) == 0 {
		return code < 400
	}
	return slices.Contains(j.expect, code)
}

// Register registers HTTP_REQUEST as a member of the job family.
func (m *Module) Register(r *registry.Registry) {
	registry.RegisterMember[job.Job](r, registry.NewClass(Class, func(p Params) (*Job, error) {
		return New(p, m.Client)
	}))
}
