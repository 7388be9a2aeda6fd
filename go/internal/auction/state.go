package auction

import (
	"time"
)

// Phase is the lifecycle state of an auction
type Phase string

const (
	PhaseCreated Phase = "CREATED"
	PhaseLive    Phase = "LIVE"
	PhaseEnded   Phase = "ENDED"
)

// ItemPhase is the lifecycle state of a single item
type ItemPhase string

const (
	ItemPending ItemPhase = "PENDING"
	ItemLive    ItemPhase = "LIVE"
	ItemSold    ItemPhase = "SOLD"
	ItemUnsold  ItemPhase = "UNSOLD"
)

// Item is one lot of an auction as reported by the server
type Item struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	StartingPrice    int64     `json:"startingPrice"`
	DurationSec      int       `json:"durationSec"`
	ExtraDurationSec int       `json:"extraDurationSec"`
	Status           ItemPhase `json:"status"`
	HighestBid       int64     `json:"highestBid"`
	HighestBidderID  *string   `json:"highestBidderId"`
	Extended         bool      `json:"extended"`
}

// Snapshot is the complete server-authoritative auction state.
// A received snapshot is never modified; the next one replaces it.
type Snapshot struct {
	ID               string `json:"id"`
	SellerID         string `json:"sellerId"`
	Status           Phase  `json:"status"`
	Items            []Item `json:"items"`
	CurrentItemIndex int    `json:"currentItemIndex"`
	MaxDurationSec   int    `json:"maxDurationSec"`
	// ItemEndTime is the current item's end in UTC milliseconds, set only while LIVE
	ItemEndTime *int64 `json:"itemEndTime,omitempty"`
}

// CurrentItem returns the item on the block, or nil
func (s *Snapshot) CurrentItem() *Item {
	if s == nil || s.CurrentItemIndex < 0 || s.CurrentItemIndex >= len(s.Items) {
		return nil
	}
	return &s.Items[s.CurrentItemIndex]
}

// ItemByID looks up an item by id
func (s *Snapshot) ItemByID(id string) *Item {
	if s == nil {
		return nil
	}
	for i := range s.Items {
		if s.Items[i].ID == id {
			return &s.Items[i]
		}
	}
	return nil
}

// EndTime returns the absolute end of the current item when present
func (s *Snapshot) EndTime() (time.Time, bool) {
	if s == nil || s.ItemEndTime == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*s.ItemEndTime), true
}

// Summary is one row of the auction list
type Summary struct {
	ID       string `json:"id"`
	SellerID string `json:"sellerId"`
	Status   string `json:"status"`
}

// NewItem describes an item when creating an auction
type NewItem struct {
	Name          string `json:"name"`
	StartingPrice int64  `json:"startingPrice"`
	DurationSec   int    `json:"durationSec,omitempty"`
}

// CreateRequest is the body of the create auction action
type CreateRequest struct {
	SellerID string    `json:"sellerId"`
	Items    []NewItem `json:"items"`
}
