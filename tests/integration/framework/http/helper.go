package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Helper struct {
	handler http.Handler
}

func NewHelper(handler http.Handler) *Helper {
	return &Helper{handler: handler}
}

type Request struct {
	Path    string
	Method  string
	Body    any
	Form    url.Values
	Headers map[string]string
	Query   map[string]string
	Context context.Context
}

type Response struct {
	*httptest.ResponseRecorder
	t *testing.T
}

func (h *Helper) Do(t *testing.T, req Request) *Response {
	t.Helper()

	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}

	var body io.Reader
	switch {
	case req.Body != nil:
		jsonbytes, err := json.Marshal(req.Body)
		require.NoError(t, err)
		body = bytes.NewReader(jsonbytes)
		if req.Headers["Content-Type"] == "" {
			req.Headers["Content-Type"] = "application/json"
		}
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		if req.Headers["Content-Type"] == "" {
			req.Headers["Content-Type"] = "application/x-www-form-urlencoded"
		}
	}

	httpReq := httptest.NewRequest(req.Method, req.Path, body)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if req.Query != nil {
		q := httpReq.URL.Query()
		for k, v := range req.Query {
			q.Add(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	if req.Context != nil {
		httpReq = httpReq.WithContext(req.Context)
	}

	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, httpReq)

	return &Response{ResponseRecorder: w, t: t}
}

// AssertStatus reports the response message, when there is one, on mismatch.
func (r *Response) AssertStatus(expected int) *Response {
	r.t.Helper()

	message := "no message in response"
	var resp map[string]any
	if err := json.Unmarshal(r.Body.Bytes(), &resp); err == nil {
		if m, ok := resp["message"].(string); ok {
			message = m
		}
	}

	assert.Equal(r.t, expected, r.Result().StatusCode, "unexpected status code, message: %s", message)
	return r
}

func (r *Response) AssertHeader(key, value string) *Response {
	r.t.Helper()

	actual := r.Header().Get(key)
	require.Equal(r.t, value, actual, fmt.Sprintf("expected header %s=%s, got %s", key, value, actual))
	return r
}

func (r *Response) AssertMessage(expected string) *Response {
	r.t.Helper()

	var resp map[string]any
	r.ParseJSON(&resp)
	message, ok := resp["message"].(string)
	require.True(r.t, ok, "expected message to be a string")
	assert.Equal(r.t, expected, message, "unexpected message in response")

	return r
}

func (r *Response) AssertSuccess() *Response {
	r.t.Helper()
	r.AssertStatus(http.StatusOK)

	var resp map[string]any
	r.ParseJSON(&resp)
	assert.Equal(r.t, true, resp["success"], "expected success=true")

	return r
}

// AssertError checks the status and the error code of a failed response.
func (r *Response) AssertError(expectedStatus int, expectedCode string) *Response {
	r.t.Helper()
	r.AssertStatus(expectedStatus)

	var resp map[string]any
	r.ParseJSON(&resp)
	assert.Equal(r.t, false, resp["success"], "expected success=false")
	assert.Equal(r.t, expectedCode, resp["code"], "unexpected error code")
	return r
}

func (r *Response) AssertBadRequest() *Response {
	r.t.Helper()
	return r.AssertStatus(http.StatusBadRequest)
}

func (r *Response) AssertUnauthorized() *Response {
	r.t.Helper()
	return r.AssertStatus(http.StatusUnauthorized)
}

// RequireRedirect asserts a 302 and returns the parsed Location.
func (r *Response) RequireRedirect() *url.URL {
	r.t.Helper()
	r.AssertStatus(http.StatusFound)

	loc := r.Header().Get("Location")
	require.NotEmpty(r.t, loc, "expected Location header")
	u, err := url.Parse(loc)
	require.NoError(r.t, err)
	return u
}

func (r *Response) ParseJSON(v any) *Response {
	r.t.Helper()

	err := json.Unmarshal(r.Body.Bytes(), v)
	require.NoError(r.t, err, "failed to parse JSON response: %s", r.Body.String())

	return r
}

type RequestBuilder struct {
	req Request
}

func NewRequest(method, path string) *RequestBuilder {
	return &RequestBuilder{
		req: Request{
			Path:    path,
			Method:  method,
			Headers: make(map[string]string),
			Query:   make(map[string]string),
		},
	}
}

func (b *RequestBuilder) WithContext(ctx context.Context) *RequestBuilder {
	b.req.Context = ctx
	return b
}

func (b *RequestBuilder) WithJSON(body any) *RequestBuilder {
	b.req.Body = body
	return b
}

func (b *RequestBuilder) WithForm(form url.Values) *RequestBuilder {
	b.req.Form = form
	return b
}

func (b *RequestBuilder) WithHeader(key, value string) *RequestBuilder {
	if b.req.Headers == nil {
		b.req.Headers = make(map[string]string)
	}
	b.req.Headers[key] = value
	return b
}

func (b *RequestBuilder) WithQuery(key, value string) *RequestBuilder {
	if b.req.Query == nil {
		b.req.Query = make(map[string]string)
	}
	b.req.Query[key] = value
	return b
}

func (b *RequestBuilder) Build() Request {
	return b.req
}
