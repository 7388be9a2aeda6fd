package session

import (
	"time"

	"github.com/mcdev12/liveauction/go/internal/announce"
	"github.com/mcdev12/liveauction/go/internal/auction"
	"github.com/mcdev12/liveauction/go/internal/chat"
	"github.com/mcdev12/liveauction/go/internal/gesture"
	"github.com/mcdev12/liveauction/go/internal/identity"
	"github.com/mcdev12/liveauction/go/internal/media"
	"github.com/mcdev12/liveauction/go/internal/realtime"
)

// SliderView is the render state of the slide-to-bid control
type SliderView struct {
	State    gesture.State `json:"state"`
	Progress float64       `json:"progress"`
	Disabled bool          `json:"disabled"`
}

// View is an immutable picture of the session published after every change
type View struct {
	AuctionID  string                `json:"auctionId,omitempty"`
	User       identity.User         `json:"user"`
	Connection realtime.Status       `json:"connection"`
	Snapshot   *auction.Snapshot     `json:"snapshot,omitempty"`
	Item       *auction.Item         `json:"item,omitempty"`
	Remaining  *int                  `json:"remaining,omitempty"`
	IsSeller   bool                  `json:"isSeller"`
	NextBid    int64                 `json:"nextBid"`
	CanBid     bool                  `json:"canBid"`
	BidResult  *auction.BidResult    `json:"bidResult,omitempty"`
	BidError   string                `json:"bidError,omitempty"`
	Slider     SliderView            `json:"slider"`
	ChatOpen   bool                  `json:"chatOpen"`
	Comments   []chat.VisibleComment `json:"comments,omitempty"`
	CommentErr string                `json:"commentError,omitempty"`

	Announcement        *announce.Announcement `json:"announcement,omitempty"`
	AnnouncementOpacity float64                `json:"announcementOpacity,omitempty"`

	Media media.SessionState `json:"media"`

	CanStart    bool                  `json:"canStart"`
	CanExtend   bool                  `json:"canExtend"`
	Starting    bool                  `json:"starting"`
	Extending   bool                  `json:"extending"`
	ActionError string                `json:"actionError,omitempty"`
	Results     []auction.FinalResult `json:"results,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}
