package utils

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRequest runs handler against a recorded request.
func TestRequest(t *testing.T, method string, url string, body io.Reader, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	return TestRequestWithHeaders(t, method, url, nil, body, handler)
}

func TestRequestWithHeaders(t *testing.T, method string, url string, headers http.Header, body io.Reader, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, url, body)
	for k, v := range headers {
		for _, h := range v {
			req.Header.Add(k, h)
		}
	}

	rr := httptest.NewRecorder()
	handler(rr, req)

	return rr
}

func TestExpectedStatus(t *testing.T, rr *httptest.ResponseRecorder, statusCode int) {
	t.Helper()
	assert.Equal(t, statusCode, rr.Code, "unexpected status, body: %s", rr.Body.String())
}

func TestExpectedMessage(t *testing.T, rr *httptest.ResponseRecorder, m string) {
	t.Helper()
	assert.Contains(t, rr.Body.String(), m)
}

// TestDecodeJSON fails the test unless the body is a JSON encoding of T.
func TestDecodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())

	return v
}
