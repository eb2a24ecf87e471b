package auth0

import (
	"context"
	"sync"
)

// FakeClient serves canned profiles keyed by access token.
type FakeClient struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		profiles: make(map[string]Profile),
	}
}

func (c *FakeClient) Profile(_ context.Context, accessToken string) (Profile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.profiles[accessToken]; ok {
		return p, nil
	}
	return Profile{}, ErrTokenRejected
}

func (c *FakeClient) AddProfile(accessToken string, p Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[accessToken] = p
}
