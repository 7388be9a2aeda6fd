package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mcdev12/liveauction/go/internal/identity"
)

// UserClient resolves and updates the local user's server identity
type UserClient struct {
	*BaseClient
}

func NewUserClient(base *BaseClient) *UserClient {
	return &UserClient{BaseClient: base}
}

type displayNameRequest struct {
	DisplayName string `json:"displayName,omitempty"`
}

// Sync registers the authenticated user and returns the server identity
func (c *UserClient) Sync(ctx context.Context, preferredName string) (*identity.User, error) {
	var out identity.User
	if err := c.DoJSON(ctx, http.MethodPost, SyncUserEndpoint, displayNameRequest{DisplayName: preferredName}, &out); err != nil {
		return nil, fmt.Errorf("sync user: %w", err)
	}
	return &out, nil
}

// UpdateDisplayName changes the user's display name
func (c *UserClient) UpdateDisplayName(ctx context.Context, name string) (*identity.User, error) {
	var out identity.User
	if err := c.DoJSON(ctx, http.MethodPatch, CurrentUserEndpoint, displayNameRequest{DisplayName: name}, &out); err != nil {
		return nil, fmt.Errorf("update display name: %w", err)
	}
	return &out, nil
}
