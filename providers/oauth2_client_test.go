package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/goliatone/go-source-connections/core"
)

func githubSettings(tokenURL string) core.OAuthSettings {
	return core.OAuthSettings{
		ShortName:       "github",
		AuthURL:         "https://github.com/login/oauth/authorize",
		TokenURL:        tokenURL,
		ClientID:        "platform-client",
		ClientSecret:    "platform-secret",
		Scopes:          []string{"repo", "read:user", "repo"},
		ExtraAuthParams: map[string]string{"prompt": "consent"},
	}
}

func TestOAuth2Client_AuthorizationURL(t *testing.T) {
	client := NewOAuth2Client()

	raw, err := client.AuthorizationURL(context.Background(), githubSettings(""), "https://api.example/oauth/callback", "state_1", core.ClientOverrides{})
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	query := parsed.Query()
	if query.Get("client_id") != "platform-client" || query.Get("state") != "state_1" {
		t.Fatalf("unexpected query %v", query)
	}
	if query.Get("scope") != "repo read:user" {
		t.Fatalf("expected deduplicated scopes, got %q", query.Get("scope"))
	}
	if query.Get("redirect_uri") != "https://api.example/oauth/callback" || query.Get("prompt") != "consent" {
		t.Fatalf("expected redirect and extra params, got %v", query)
	}

	raw, err = client.AuthorizationURL(context.Background(), githubSettings(""), "", "state_2", core.ClientOverrides{
		ClientID: "byoc-client",
		Scopes:   []string{"channels:read"},
	})
	if err != nil {
		t.Fatalf("authorization url with overrides: %v", err)
	}
	parsed, _ = url.Parse(raw)
	if parsed.Query().Get("client_id") != "byoc-client" || parsed.Query().Get("scope") != "channels:read" {
		t.Fatalf("expected overrides to win, got %v", parsed.Query())
	}

	if _, err := client.AuthorizationURL(context.Background(), core.OAuthSettings{ShortName: "x"}, "", "s", core.ClientOverrides{}); err == nil {
		t.Fatalf("expected missing auth url error")
	}
	if _, err := client.AuthorizationURL(context.Background(), githubSettings(""), "", "", core.ClientOverrides{}); err == nil {
		t.Fatalf("expected missing state error")
	}
}

func TestOAuth2Client_ExchangeCodeUsesBasicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "platform-client" || pass != "platform-secret" {
			t.Errorf("expected basic auth credentials, got %q/%q", user, pass)
		}
		if r.PostForm.Get("grant_type") != "authorization_code" || r.PostForm.Get("code") != "code_123" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		if r.PostForm.Get("client_secret") != "" {
			t.Errorf("expected secret to stay out of the body")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_abc","refresh_token":"ghr_def","token_type":"Bearer","scope":"repo","expires_in":28800}`))
	}))
	defer server.Close()

	client := NewOAuth2Client(WithHTTPClient(server.Client()))
	token, err := client.ExchangeCode(context.Background(), githubSettings(server.URL), "code_123", "https://api.example/oauth/callback", core.ClientOverrides{})
	if err != nil {
		t.Fatalf("exchange code: %v", err)
	}
	if token.AccessToken != "gho_abc" || token.RefreshToken != "ghr_def" {
		t.Fatalf("unexpected token %#v", token)
	}
	if token.TokenType != "bearer" || token.ExpiresIn != 28800 || token.Scope != "repo" {
		t.Fatalf("unexpected token metadata %#v", token)
	}
}

func TestOAuth2Client_ExchangeCodeSecretInBodyWithOverrides(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if _, _, ok := r.BasicAuth(); ok {
			t.Errorf("expected no basic auth when secret goes in the body")
		}
		if r.PostForm.Get("client_id") != "byoc-client" || r.PostForm.Get("client_secret") != "byoc-secret" {
			t.Errorf("expected overridden client credentials, got %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("access_token=xoxb-1&token_type=bearer"))
	}))
	defer server.Close()

	settings := githubSettings(server.URL)
	settings.ClientSecretInBody = true
	client := NewOAuth2Client(WithHTTPClient(server.Client()))
	token, err := client.ExchangeCode(context.Background(), settings, "code", "", core.ClientOverrides{
		ClientID:     "byoc-client",
		ClientSecret: "byoc-secret",
	})
	if err != nil {
		t.Fatalf("exchange code: %v", err)
	}
	if token.AccessToken != "xoxb-1" || token.RefreshToken != "" {
		t.Fatalf("unexpected token %#v", token)
	}
}

func TestOAuth2Client_ExchangeCodeErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/denied":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
		case "/soft-error":
			_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
		default:
			_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
		}
	}))
	defer server.Close()

	client := NewOAuth2Client(WithHTTPClient(server.Client()))
	cases := map[string]string{
		"/denied":     "code expired",
		"/soft-error": "bad_verification_code",
		"/empty":      "missing access token",
	}
	for path, want := range cases {
		_, err := client.ExchangeCode(context.Background(), githubSettings(server.URL+path), "code", "", core.ClientOverrides{})
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: expected error containing %q, got %v", path, want, err)
		}
	}

	if _, err := client.ExchangeCode(context.Background(), githubSettings(server.URL), " ", "", core.ClientOverrides{}); err == nil {
		t.Fatalf("expected missing code error")
	}
}
