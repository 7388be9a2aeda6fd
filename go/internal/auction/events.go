package auction

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire frame for every realtime event and command
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventType names a realtime event (server to client) or command (client to server)
type EventType string

const (
	EventAuctionState     EventType = "auction_state"
	EventBidResult        EventType = "bid_result"
	EventItemSold         EventType = "item_sold"
	EventAuctionEnded     EventType = "auction_ended"
	EventCommentsSnapshot EventType = "comments_snapshot"
	EventCommentAdded     EventType = "comment_added"
	EventCommentRejected  EventType = "comment_rejected"

	CommandJoinAuction  EventType = "join_auction"
	CommandLeaveAuction EventType = "leave_auction"
	CommandPlaceBid     EventType = "place_bid"
	CommandSendComment  EventType = "send_comment"
)

// BidResult is the server verdict for the most recent bid.
// ClientSeq echoes the correlation id of the bid when the server supports it.
type BidResult struct {
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason,omitempty"`
	ClientSeq uint64 `json:"clientSeq,omitempty"`
}

// ItemResolved is pushed when the current item closes
type ItemResolved struct {
	AuctionID  string  `json:"auctionId"`
	ItemID     string  `json:"itemId"`
	WinnerID   *string `json:"winnerId"`
	FinalPrice int64   `json:"finalPrice"`
	Sold       *bool   `json:"sold,omitempty"`
}

// IsSold falls back to the winner when the server omits the flag
func (r ItemResolved) IsSold() bool {
	if r.Sold != nil {
		return *r.Sold
	}
	return r.WinnerID != nil
}

// ItemResult is the final outcome of one item
type ItemResult struct {
	ItemID     string  `json:"itemId"`
	WinnerID   *string `json:"winnerId"`
	FinalPrice int64   `json:"finalPrice"`
}

// AuctionEnded carries the per-item final results
type AuctionEnded struct {
	AuctionID string       `json:"auctionId"`
	Results   []ItemResult `json:"results"`
}

// ChatComment is one entry of the room's append-only comment log
type ChatComment struct {
	ID          string `json:"id"`
	AuctionID   string `json:"auctionId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
	// CreatedAt is assigned by the server in UTC milliseconds
	CreatedAt int64 `json:"createdAt"`
}

// CommentRejected explains why the server refused a comment
type CommentRejected struct {
	Reason    string `json:"reason"`
	ClientSeq uint64 `json:"clientSeq,omitempty"`
}

// StateError is sent in place of a snapshot when the room cannot be served
type StateError struct {
	Error string `json:"error"`
}

// JoinAuctionPayload is used by both join_auction and leave_auction
type JoinAuctionPayload struct {
	AuctionID string `json:"auctionId"`
}

// PlaceBidPayload is the place_bid command body
type PlaceBidPayload struct {
	AuctionID string `json:"auctionId"`
	UserID    string `json:"userId"`
	Amount    int64  `json:"amount"`
	ClientSeq uint64 `json:"clientSeq"`
}

// SendCommentPayload is the send_comment command body
type SendCommentPayload struct {
	AuctionID   string `json:"auctionId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
	ClientSeq   uint64 `json:"clientSeq"`
}

// NewEnvelope marshals a payload into an envelope of the given type
func NewEnvelope(t EventType, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, Data: data}, nil
}

// ParseEventPayload parses event data into the appropriate payload struct
func ParseEventPayload(env Envelope) (interface{}, error) {
	switch env.Type {
	case EventAuctionState:
		var probe struct {
			Error *string `json:"error"`
		}
		if err := json.Unmarshal(env.Data, &probe); err != nil {
			return nil, err
		}
		if probe.Error != nil {
			return StateError{Error: *probe.Error}, nil
		}
		var payload Snapshot
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventBidResult:
		var payload BidResult
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventItemSold:
		var payload ItemResolved
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventAuctionEnded:
		var payload AuctionEnded
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventCommentsSnapshot:
		var payload []ChatComment
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			// a malformed backlog is treated as empty
			return []ChatComment{}, nil
		}
		if payload == nil {
			payload = []ChatComment{}
		}
		return payload, nil

	case EventCommentAdded:
		var payload ChatComment
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventCommentRejected:
		var payload CommentRejected
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // Unknown event type
	}
}
