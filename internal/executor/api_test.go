package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nlstep/nlstep/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIExecute_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 1, "username": "alice"}`))
	}))
	defer srv.Close()

	e := NewAPIExecutor(APIConfig{})
	rec, err := e.Execute(context.Background(), APIRequest{
		Method:   "GET",
		Endpoint: srv.URL + "/users/1",
	})
	require.NoError(t, err)

	assert.Equal(t, "get", rec.Tool)
	assert.True(t, rec.OK())
	assert.Empty(t, rec.Error)
	require.NotNil(t, rec.JSONObject())
	assert.Equal(t, "alice", rec.JSONObject()["username"])
}

func TestAPIExecute_NonOKIsData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "user not found"}`))
	}))
	defer srv.Close()

	e := NewAPIExecutor(APIConfig{})
	rec, err := e.Execute(context.Background(), APIRequest{
		Method:   "GET",
		Endpoint: srv.URL + "/users/999",
	})
	require.NoError(t, err, "a 404 is data, not an error")

	require.NotNil(t, rec.StatusCode)
	assert.Equal(t, 404, *rec.StatusCode)
	assert.Empty(t, rec.Error)
	assert.Equal(t, "user not found", rec.JSONObject()["error"])
}

func TestAPIExecute_PostBodyAndHeaders(t *testing.T) {
	var gotBody map[string]any
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	e := NewAPIExecutor(APIConfig{})
	rec, err := e.Execute(context.Background(), APIRequest{
		Method:      "POST",
		Endpoint:    srv.URL + "/users",
		Body:        map[string]any{"username": "bob"},
		BearerToken: "tok123",
	})
	require.NoError(t, err)

	assert.Equal(t, "post", rec.Tool)
	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "bob", gotBody["username"])
	assert.Equal(t, 201, *rec.StatusCode)
}

func TestAPIExecute_LoginOmitsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"token": "fresh"}`))
	}))
	defer srv.Close()

	e := NewAPIExecutor(APIConfig{})
	rec, err := e.Execute(context.Background(), APIRequest{
		Method:      "POST",
		Endpoint:    srv.URL + "/auth/login",
		Body:        map[string]any{"username": "alice", "password": "pw"},
		BearerToken: "stale-token",
		Login:       true,
	})
	require.NoError(t, err)

	assert.Empty(t, gotAuth, "login requests must not carry a bearer token")
	assert.Equal(t, "login", rec.Tool)
}

func TestAPIExecute_InvalidEndpoint(t *testing.T) {
	e := NewAPIExecutor(APIConfig{})

	for _, endpoint := range []string{"/users/1", "users", "ftp://host/x", ""} {
		_, err := e.Execute(context.Background(), APIRequest{Method: "GET", Endpoint: endpoint})
		require.Error(t, err, endpoint)

		var engErr *schema.EngineError
		require.ErrorAs(t, err, &engErr)
		assert.Equal(t, schema.ErrCodeInvalidEndpoint, engErr.Code)
	}
}

func TestAPIExecute_TransportFailureRecorded(t *testing.T) {
	// Nothing listens here.
	e := NewAPIExecutor(APIConfig{})
	rec, err := e.Execute(context.Background(), APIRequest{
		Method:   "GET",
		Endpoint: "http://127.0.0.1:1/unreachable",
	})
	require.NoError(t, err, "transport failures are recorded, not returned")

	assert.Nil(t, rec.StatusCode)
	assert.NotEmpty(t, rec.Error)
	assert.Contains(t, rec.Error, "TRANSPORT_ERROR")
	assert.NotEmpty(t, rec.Curl, "record stays reportable even without a response")
}

func TestAPIExecute_TimeoutRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	e := NewAPIExecutor(APIConfig{DefaultTimeout: 20 * time.Millisecond})
	rec, err := e.Execute(context.Background(), APIRequest{
		Method:   "GET",
		Endpoint: srv.URL + "/slow",
	})
	require.NoError(t, err)

	assert.Nil(t, rec.StatusCode)
	assert.Contains(t, rec.Error, "TIMEOUT_ERROR")
}

func TestBuildCurl(t *testing.T) {
	curl := buildCurl("POST", "http://api.example.com/users",
		[]header{
			{"Content-Type", "application/json"},
			{"Authorization", "Bearer tok"},
		},
		map[string]any{"username": "alice"})

	assert.Contains(t, curl, "curl -X POST")
	assert.Contains(t, curl, "-H 'Content-Type: application/json'")
	assert.Contains(t, curl, "-H 'Authorization: Bearer tok'")
	assert.Contains(t, curl, "'http://api.example.com/users'")
	assert.Contains(t, curl, `-d '{"username":"alice"}'`)
}

func TestBuildCurl_NoBody(t *testing.T) {
	curl := buildCurl("GET", "http://api.example.com/users", nil, nil)
	assert.Equal(t, "curl -X GET 'http://api.example.com/users'", curl)
}

func TestShellQuote_EmbeddedQuote(t *testing.T) {
	q := shellQuote(`it's`)
	assert.Equal(t, `'it'"'"'s'`, q)
}
