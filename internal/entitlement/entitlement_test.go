package entitlement

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, status int, body string) (*Client, *string) {
	t.Helper()
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, validatePath, r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/", time.Second)
	require.NoError(t, err)
	return c, &gotAuth
}

func TestCheckAllowed(t *testing.T) {
	c, gotAuth := newService(t, http.StatusOK, `{"allowed":true,"plan":"TRIAL","usage":{"used":1,"limit":10}}`)

	v := c.Check(context.Background(), "Bearer user-token")

	assert.Equal(t, "Bearer user-token", *gotAuth, "token must be forwarded verbatim")
	assert.True(t, v.Allowed)
	assert.Equal(t, http.StatusOK, v.Status)
	assert.Equal(t, "TRIAL", v.Plan)
	assert.JSONEq(t, `{"used":1,"limit":10}`, string(v.Usage))
	assert.Empty(t, v.Reason)
	assert.NoError(t, v.Err)
}

func TestCheckSuccessCodedDenialIsForbidden(t *testing.T) {
	c, _ := newService(t, http.StatusOK, `{"allowed":false,"plan":"TRIAL","error":"trial expired"}`)

	v := c.Check(context.Background(), "t")

	assert.False(t, v.Allowed)
	assert.Equal(t, http.StatusForbidden, v.Status)
	assert.Equal(t, "trial expired", v.Reason)
}

func TestCheckSuccessCodedDenialWithoutMessage(t *testing.T) {
	c, _ := newService(t, http.StatusOK, `{"allowed":false}`)

	v := c.Check(context.Background(), "t")

	assert.Equal(t, http.StatusForbidden, v.Status)
	assert.Equal(t, ReasonDenied, v.Reason)
}

func TestCheckPropagatesNonSuccessStatus(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		reason string
	}{
		{"quota", http.StatusTooManyRequests, `{"allowed":false,"error":"monthly limit reached"}`, "monthly limit reached"},
		{"invalid token", http.StatusUnauthorized, `{"error":"invalid token"}`, "invalid token"},
		{"server error without body", http.StatusInternalServerError, ``, ReasonDenied},
		{"html error page", http.StatusForbidden, `<html>nope</html>`, ReasonDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newService(t, tc.status, tc.body)

			v := c.Check(context.Background(), "t")

			assert.False(t, v.Allowed)
			assert.Equal(t, tc.status, v.Status)
			assert.Equal(t, tc.reason, v.Reason)
		})
	}
}

func TestCheckMalformedBodyIsUnavailable(t *testing.T) {
	for _, body := range []string{`not json`, `{"plan":"TRIAL"}`} {
		c, _ := newService(t, http.StatusOK, body)

		v := c.Check(context.Background(), "t")

		assert.False(t, v.Allowed)
		assert.Equal(t, http.StatusBadGateway, v.Status)
		assert.Equal(t, ReasonUnavailable, v.Reason)
		assert.Error(t, v.Err)
	}
}

func TestCheckConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, time.Second)
	require.NoError(t, err)

	v := c.Check(context.Background(), "t")

	assert.False(t, v.Allowed)
	assert.Equal(t, http.StatusBadGateway, v.Status)
	assert.Equal(t, ReasonUnavailable, v.Reason)
}

func TestCheckTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(srv.URL, 50*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	v := c.Check(context.Background(), "t")

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, http.StatusBadGateway, v.Status)
	assert.ErrorIs(t, v.Err, context.DeadlineExceeded)
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient("  ", time.Second)
	assert.Error(t, err)
}
