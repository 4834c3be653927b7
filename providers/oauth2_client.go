package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-source-connections/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type OAuth2ClientOption func(*OAuth2Client)

func WithHTTPClient(client HTTPDoer) OAuth2ClientOption {
	return func(c *OAuth2Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTokenRequestTimeout(timeout time.Duration) OAuth2ClientOption {
	return func(c *OAuth2Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// OAuth2Client speaks the authorization-code grant against whichever
// provider the per-source OAuthSettings describe.
type OAuth2Client struct {
	httpClient HTTPDoer
	timeout    time.Duration
}

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
}

func NewOAuth2Client(opts ...OAuth2ClientOption) *OAuth2Client {
	client := &OAuth2Client{timeout: defaultTokenRequestTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: client.timeout}
	}
	return client
}

func (c *OAuth2Client) AuthorizationURL(_ context.Context, settings core.OAuthSettings, redirectURI string, state string, overrides core.ClientOverrides) (string, error) {
	if c == nil {
		return "", fmt.Errorf("providers: oauth2 client is nil")
	}
	authURL := strings.TrimSpace(settings.AuthURL)
	if authURL == "" {
		return "", fmt.Errorf("providers: auth url is required for %q", settings.ShortName)
	}
	clientID, _ := resolveClient(settings, overrides)
	if clientID == "" {
		return "", fmt.Errorf("providers: client id is required for %q", settings.ShortName)
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return "", fmt.Errorf("providers: state is required")
	}

	values := url.Values{}
	for key, value := range settings.ExtraAuthParams {
		if strings.TrimSpace(key) != "" {
			values.Set(key, value)
		}
	}
	values.Set("response_type", "code")
	values.Set("client_id", clientID)
	if trimmed := strings.TrimSpace(redirectURI); trimmed != "" {
		values.Set("redirect_uri", trimmed)
	}
	if scopes := resolveScopes(settings, overrides); len(scopes) > 0 {
		values.Set("scope", strings.Join(scopes, " "))
	}
	values.Set("state", state)

	if strings.Contains(authURL, "?") {
		return authURL + "&" + values.Encode(), nil
	}
	return authURL + "?" + values.Encode(), nil
}

func (c *OAuth2Client) ExchangeCode(ctx context.Context, settings core.OAuthSettings, code string, redirectURI string, overrides core.ClientOverrides) (core.TokenResponse, error) {
	if c == nil {
		return core.TokenResponse{}, fmt.Errorf("providers: oauth2 client is nil")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return core.TokenResponse{}, fmt.Errorf("providers: auth code is required")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if trimmed := strings.TrimSpace(redirectURI); trimmed != "" {
		form.Set("redirect_uri", trimmed)
	}

	payload, err := c.fetchToken(ctx, settings, overrides, form)
	if err != nil {
		return core.TokenResponse{}, err
	}
	return core.TokenResponse{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    normalizeTokenType(payload.TokenType),
		Scope:        payload.Scope,
		ExpiresIn:    payload.ExpiresIn,
	}, nil
}

func (c *OAuth2Client) fetchToken(ctx context.Context, settings core.OAuthSettings, overrides core.ClientOverrides, form url.Values) (tokenEndpointPayload, error) {
	tokenURL := strings.TrimSpace(settings.TokenURL)
	if tokenURL == "" {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token url is required for %q", settings.ShortName)
	}
	clientID, clientSecret := resolveClient(settings, overrides)
	if clientID == "" {
		return tokenEndpointPayload{}, fmt.Errorf("providers: client id is required for %q", settings.ShortName)
	}

	form.Set("client_id", clientID)
	if settings.ClientSecretInBody && clientSecret != "" {
		form.Set("client_secret", clientSecret)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if !settings.ClientSecretInBody && clientSecret != "" {
		httpReq.SetBasicAuth(clientID, clientSecret)
	}

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if err != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: read token response: %w", err)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token response exceeds %d bytes", maxTokenResponseBodyBytes)
	}

	payload, err := parseTokenPayload(body, response.Header.Get("Content-Type"))
	if err != nil {
		if response.StatusCode >= http.StatusBadRequest {
			return tokenEndpointPayload{}, fmt.Errorf("providers: token endpoint error (%d)", response.StatusCode)
		}
		return tokenEndpointPayload{}, fmt.Errorf("providers: decode token response: %w", err)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token endpoint error (%d): %s", response.StatusCode, describeTokenError(payload))
	}
	// Some providers report failures with a 200 and an error field.
	if payload.ErrorCode != "" {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token endpoint error: %s", describeTokenError(payload))
	}
	if payload.AccessToken == "" {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token endpoint response missing access token")
	}
	return payload, nil
}

// resolveClient prefers bring-your-own-client credentials over the
// platform's configured app.
func resolveClient(settings core.OAuthSettings, overrides core.ClientOverrides) (string, string) {
	if id := strings.TrimSpace(overrides.ClientID); id != "" {
		return id, strings.TrimSpace(overrides.ClientSecret)
	}
	return strings.TrimSpace(settings.ClientID), strings.TrimSpace(settings.ClientSecret)
}

func resolveScopes(settings core.OAuthSettings, overrides core.ClientOverrides) []string {
	if len(overrides.Scopes) > 0 {
		return normalizeScopes(overrides.Scopes)
	}
	return normalizeScopes(settings.Scopes)
}

func normalizeScopes(input []string) []string {
	values := make([]string, 0, len(input))
	seen := map[string]struct{}{}
	for _, value := range input {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		values = append(values, trimmed)
	}
	return values
}

func describeTokenError(payload tokenEndpointPayload) string {
	if payload.ErrorDescription != "" {
		return payload.ErrorDescription
	}
	if payload.ErrorCode != "" {
		return payload.ErrorCode
	}
	return "unknown error"
}

func parseTokenPayload(body []byte, contentType string) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.Contains(contentType, "json"):
		return parseTokenPayloadJSON(body)
	case strings.Contains(contentType, "x-www-form-urlencoded"), strings.Contains(contentType, "text/plain"):
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenEndpointPayload, error) {
	if strings.TrimSpace(string(body)) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	return tokenEndpointPayload{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorCode:        readAnyString(decoded["error"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
	}, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if strings.TrimSpace(string(body)) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}, nil
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case float64:
		return int64(typed)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

var _ core.OAuthProviderClient = (*OAuth2Client)(nil)
