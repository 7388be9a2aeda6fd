package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// MediaTokenClient fetches a media channel token for each join
type MediaTokenClient struct {
	*BaseClient
}

func NewMediaTokenClient(base *BaseClient) *MediaTokenClient {
	return &MediaTokenClient{BaseClient: base}
}

// Token returns a token scoped to channel, local id and role
func (c *MediaTokenClient) Token(ctx context.Context, channel string, uid uint32, role string) (string, error) {
	q := url.Values{}
	q.Set("channel", channel)
	q.Set("uid", strconv.FormatUint(uint64(uid), 10))
	q.Set("role", role)

	var out struct {
		Token string `json:"token"`
	}
	if err := c.DoJSON(ctx, http.MethodGet, MediaTokenEndpoint+"?"+q.Encode(), nil, &out); err != nil {
		return "", fmt.Errorf("fetch media token: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("fetch media token: empty token")
	}
	return out.Token, nil
}
