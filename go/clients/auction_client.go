package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mcdev12/liveauction/go/internal/auction"
)

// AuctionClient issues the auction action requests
type AuctionClient struct {
	*BaseClient
}

func NewAuctionClient(base *BaseClient) *AuctionClient {
	return &AuctionClient{BaseClient: base}
}

// List fetches the auction list
func (c *AuctionClient) List(ctx context.Context) ([]auction.Summary, error) {
	var out []auction.Summary
	if err := c.DoJSON(ctx, http.MethodGet, AuctionsEndpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	return out, nil
}

// Create creates an auction for the seller with the given items
func (c *AuctionClient) Create(ctx context.Context, req auction.CreateRequest) (*auction.Snapshot, error) {
	var out auction.Snapshot
	if err := c.DoJSON(ctx, http.MethodPost, AuctionsEndpoint, req, &out); err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}
	return &out, nil
}

// Start moves a CREATED auction to LIVE
func (c *AuctionClient) Start(ctx context.Context, auctionID string) error {
	endpoint := fmt.Sprintf(StartAuctionFormat, url.PathEscape(auctionID))
	if err := c.DoJSON(ctx, http.MethodPost, endpoint, nil, nil); err != nil {
		return fmt.Errorf("start auction: %w", err)
	}
	return nil
}

type extendRequest struct {
	RequesterID string `json:"requesterId"`
}

// Extend adds the one-time bonus to the current item
func (c *AuctionClient) Extend(ctx context.Context, auctionID, requesterID string) error {
	endpoint := fmt.Sprintf(ExtendAuctionFormat, url.PathEscape(auctionID))
	if err := c.DoJSON(ctx, http.MethodPost, endpoint, extendRequest{RequesterID: requesterID}, nil); err != nil {
		return fmt.Errorf("extend auction: %w", err)
	}
	return nil
}
