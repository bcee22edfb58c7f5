package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeGitHub serves the token endpoint and the /user API.
func fakeGitHub(t *testing.T, userJSON string, userStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_test","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(userStatus)
		_, _ = w.Write([]byte(userJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(srv *httptest.Server) *GitHubProvider {
	p := NewGitHubProvider("id", "secret", "http://localhost/auth/github/callback")
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/login/oauth/authorize",
		TokenURL: srv.URL + "/login/oauth/access_token",
	}
	p.userURL = srv.URL + "/user"
	return p
}

func TestAuthURL_CarriesState(t *testing.T) {
	p := NewGitHubProvider("id", "secret", "http://localhost/cb")
	u := p.AuthURL("state-123")
	assert.True(t, strings.HasPrefix(u, "https://github.com/login/oauth/authorize"))
	assert.Contains(t, u, "state=state-123")
}

func TestExchange(t *testing.T) {
	srv := fakeGitHub(t, `{"id":42,"login":"octocat","email":null}`, http.StatusOK)
	p := newTestProvider(srv)

	u, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.ID)
	assert.Equal(t, "octocat", u.Login)
	assert.Empty(t, u.Email)
}

func TestExchange_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"api failure", `{}`, http.StatusInternalServerError},
		{"missing id", `{"login":"octocat"}`, http.StatusOK},
		{"bad json", `{`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(fakeGitHub(t, tt.body, tt.status))
			_, err := p.Exchange(context.Background(), "code")
			assert.Error(t, err)
		})
	}
}
