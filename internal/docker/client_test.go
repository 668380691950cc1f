package docker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &Client{http: srv.Client(), base: srv.URL}
}

func TestClientListAndInspect(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/containers/json":
			assert.Equal(t, "1", r.URL.Query().Get("all"))
			_, _ = io.WriteString(w, `[{"Id":"0123456789abcdef","Names":["/web"],"State":"running"}]`)
		case "/containers/0123456789abcdef/json":
			_, _ = io.WriteString(w, `{"Id":"0123456789abcdef","RestartCount":3,"State":{"Status":"running","Health":{"Status":"healthy"}}}`)
		default:
			http.NotFound(w, r)
		}
	})

	list, err := c.ListContainers(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "web", list[0].Name())

	in, err := c.InspectContainer(context.Background(), list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, in.RestartCount)
	assert.Equal(t, "healthy", in.HealthStatus())
}

func TestClientAPIError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"No such container: abc"}`)
	})

	_, err := c.InspectContainer(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "No such container: abc")
	assert.False(t, IsNotFound(io.EOF))
}

func TestClientLogsQuery(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/containers/abc/logs", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("tail"))
		assert.Equal(t, "1", r.URL.Query().Get("stderr"))
		_, _ = io.WriteString(w, "line one\n")
	})

	rc, err := c.Logs(context.Background(), "abc", 50)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "line one\n", string(b))
}

func TestClientPingServerError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Internal Server Error")
}
