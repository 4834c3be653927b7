package core

import (
	"context"
	"net/url"
	"strings"
)

type CallbackURLResolveRequest struct {
	OrganizationID string
	ShortName      string
}

// CallbackURLResolver overrides the configured handshake callback URL, for
// hosts that route callbacks per tenant.
type CallbackURLResolver interface {
	ResolveCallbackURL(ctx context.Context, req CallbackURLResolveRequest) (string, error)
}

type CallbackURLResolverFunc func(ctx context.Context, req CallbackURLResolveRequest) (string, error)

func (fn CallbackURLResolverFunc) ResolveCallbackURL(ctx context.Context, req CallbackURLResolveRequest) (string, error) {
	if fn == nil {
		return "", nil
	}
	url, err := fn(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(url), nil
}

// callbackURL resolves the redirect URI handed to the provider. The same
// value must be produced at begin and at complete.
func (s *Service) callbackURL(ctx context.Context, organizationID string, shortName string) (string, error) {
	if s.callbackResolver != nil {
		resolved, err := s.callbackResolver.ResolveCallbackURL(ctx, CallbackURLResolveRequest{
			OrganizationID: organizationID,
			ShortName:      shortName,
		})
		if err != nil {
			return "", err
		}
		if resolved != "" {
			return resolved, nil
		}
	}
	base := strings.TrimRight(strings.TrimSpace(s.config.Handshake.CallbackBaseURL), "/")
	path := "/" + strings.Trim(strings.TrimSpace(s.config.Handshake.CallbackPath), "/")
	if path == "/" {
		path = defaultCallbackPath
	}
	return base + path + "/" + url.PathEscape(shortName), nil
}
