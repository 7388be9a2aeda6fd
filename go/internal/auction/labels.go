package auction

import (
	"fmt"
	"time"
)

// NextBid is the amount offered by a one-step raise on the current item
func NextBid(item *Item, step int64) int64 {
	if item == nil {
		return 0
	}
	return item.HighestBid + step
}

// ParticipantLabel renders a participant for display
func ParticipantLabel(participantID, currentUserID, currentDisplayName string) string {
	if participantID == currentUserID {
		if currentDisplayName != "" {
			return currentDisplayName
		}
		return "You"
	}
	if len(participantID) > 8 {
		return participantID[:8]
	}
	return participantID
}

// CommentAge renders how long ago a comment was created
func CommentAge(createdAtMs int64, now time.Time) string {
	sec := (now.UnixMilli() - createdAtMs) / 1000
	if sec < 0 {
		sec = 0
	}
	if sec < 10 {
		return "now"
	}
	if sec < 60 {
		return fmt.Sprintf("%ds", sec)
	}
	min := sec / 60
	if min < 60 {
		return fmt.Sprintf("%dm", min)
	}
	return fmt.Sprintf("%dh", min/60)
}

// FinalResult is a row of the ended-auction summary
type FinalResult struct {
	ItemID     string  `json:"itemId"`
	Name       string  `json:"name"`
	WinnerID   *string `json:"winnerId"`
	FinalPrice int64   `json:"finalPrice"`
}

// FinalResults merges the auction_ended payload over the last snapshot.
// Items missing from the payload fall back to their highest bid and bidder.
func FinalResults(s *Snapshot, ended *AuctionEnded) []FinalResult {
	if s == nil || len(s.Items) == 0 {
		return nil
	}

	final := make(map[string]ItemResult)
	if ended != nil && ended.AuctionID == s.ID {
		for _, r := range ended.Results {
			final[r.ItemID] = r
		}
	}

	results := make([]FinalResult, 0, len(s.Items))
	for _, item := range s.Items {
		row := FinalResult{
			ItemID:     item.ID,
			Name:       item.Name,
			WinnerID:   item.HighestBidderID,
			FinalPrice: item.HighestBid,
		}
		if r, ok := final[item.ID]; ok {
			if r.WinnerID != nil {
				row.WinnerID = r.WinnerID
			}
			row.FinalPrice = r.FinalPrice
		}
		results = append(results, row)
	}
	return results
}
