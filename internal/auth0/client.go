package auth0

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrUserInfoFailed = errors.New("failed to fetch user info")
	// ErrTokenRejected means the tenant refused the access token.
	ErrTokenRejected = errors.New("access token rejected")
)

const maxUserInfoBytes = 64 << 10

// Profile is what a new customer record is filled from.
type Profile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nickname      string `json:"nickname"`
}

// profile prefers the full name and falls back to the nickname.
func (u userInfo) profile() Profile {
	name := u.Name
	if name == "" {
		name = u.Nickname
	}
	return Profile{
		Subject:       u.Sub,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Name:          name,
	}
}

type Client interface {
	Profile(ctx context.Context, accessToken string) (Profile, error)
}

// HTTPClient reads profiles from a tenant's /userinfo endpoint.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(domain string) *HTTPClient {
	return &HTTPClient{
		baseURL: "https://" + domain,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *HTTPClient) Profile(ctx context.Context, accessToken string) (Profile, error) {
	ctx, span := otel.Tracer("auth0").Start(ctx, "Profile")
	defer span.End()

	p, status, err := c.fetch(ctx, accessToken)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return p, err
}

func (c *HTTPClient) fetch(ctx context.Context, accessToken string) (Profile, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/userinfo", nil)
	if err != nil {
		return Profile{}, 0, fmt.Errorf("%w: %v", ErrUserInfoFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Profile{}, 0, fmt.Errorf("%w: %v", ErrUserInfoFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Profile{}, resp.StatusCode, fmt.Errorf("%w: status %d", ErrTokenRejected, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Profile{}, resp.StatusCode, fmt.Errorf("%w: status %d", ErrUserInfoFailed, resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&info); err != nil {
		return Profile{}, resp.StatusCode, fmt.Errorf("%w: %v", ErrUserInfoFailed, err)
	}
	if info.Sub == "" {
		return Profile{}, resp.StatusCode, fmt.Errorf("%w: response has no subject", ErrUserInfoFailed)
	}
	return info.profile(), resp.StatusCode, nil
}
