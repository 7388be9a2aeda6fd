package room

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction"
	"github.com/mcdev12/liveauction/go/internal/chat"
)

var (
	ErrNoRoom  = errors.New("no auction room joined")
	ErrNotLive = errors.New("auction is not live")
)

// DefaultRejectReason is shown when the server rejects a comment without saying why
const DefaultRejectReason = "Message rejected"

// Emitter sends commands on the realtime connection
type Emitter interface {
	Emit(env auction.Envelope) error
}

// Participant identifies the local user on commands
type Participant struct {
	ID          string
	DisplayName string
}

// Session is the subscription to one auction room. It owns the latest
// snapshot and the comment log, and is driven by the session loop.
type Session struct {
	emitter Emitter
	chat    *chat.Stream
	me      Participant

	auctionID    string
	snapshot     *auction.Snapshot
	bidResult    *auction.BidResult
	bidSeq       uint64
	commentSeq   uint64
	commentErr   string
	itemResolved *auction.ItemResolved
	ended        *auction.AuctionEnded
}

// NewSession creates a session that is not joined to any room
func NewSession(emitter Emitter, stream *chat.Stream, me Participant) *Session {
	return &Session{emitter: emitter, chat: stream, me: me}
}

// SetParticipant updates the identity carried on commands
func (s *Session) SetParticipant(me Participant) {
	s.me = me
}

// Join subscribes to a room, leaving the current one first
func (s *Session) Join(auctionID string) error {
	if auctionID == "" {
		return ErrNoRoom
	}
	if s.auctionID == auctionID {
		return nil
	}
	if s.auctionID != "" {
		if err := s.Leave(s.auctionID); err != nil {
			log.Warn().Err(err).Str("auction_id", s.auctionID).Msg("leave before join failed")
		}
	}

	s.auctionID = auctionID
	if err := s.emit(auction.CommandJoinAuction, auction.JoinAuctionPayload{AuctionID: auctionID}); err != nil {
		return err
	}
	log.Info().Str("auction_id", auctionID).Msg("joined auction room")
	return nil
}

// Rejoin re-sends the join command after the transport reconnects
func (s *Session) Rejoin() error {
	if s.auctionID == "" {
		return nil
	}
	return s.emit(auction.CommandJoinAuction, auction.JoinAuctionPayload{AuctionID: s.auctionID})
}

// Leave unsubscribes from the room and clears all room state
func (s *Session) Leave(auctionID string) error {
	if auctionID == "" || auctionID != s.auctionID {
		return nil
	}
	err := s.emit(auction.CommandLeaveAuction, auction.JoinAuctionPayload{AuctionID: auctionID})

	s.auctionID = ""
	s.snapshot = nil
	s.bidResult = nil
	s.commentErr = ""
	s.itemResolved = nil
	s.ended = nil
	s.chat.Reset()

	log.Info().Str("auction_id", auctionID).Msg("left auction room")
	return err
}

// AuctionID is the joined room, or empty
func (s *Session) AuctionID() string { return s.auctionID }

// Handle applies one server event. It reports whether the event changed state.
func (s *Session) Handle(env auction.Envelope) (bool, error) {
	payload, err := auction.ParseEventPayload(env)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", env.Type, err)
	}
	if s.auctionID == "" {
		return false, nil
	}

	switch p := payload.(type) {
	case auction.Snapshot:
		if p.ID != "" && p.ID != s.auctionID {
			log.Warn().
				Str("auction_id", s.auctionID).
				Str("snapshot_id", p.ID).
				Msg("dropping snapshot for another auction")
			return false, nil
		}
		snap := p
		s.snapshot = &snap

	case auction.StateError:
		log.Warn().Str("auction_id", s.auctionID).Str("error", p.Error).Msg("auction state unavailable")
		s.snapshot = nil

	case auction.BidResult:
		if p.ClientSeq != 0 && p.ClientSeq != s.bidSeq {
			log.Debug().
				Uint64("client_seq", p.ClientSeq).
				Uint64("latest_seq", s.bidSeq).
				Msg("discarding stale bid result")
			return false, nil
		}
		result := p
		s.bidResult = &result

	case auction.ItemResolved:
		if p.AuctionID != "" && p.AuctionID != s.auctionID {
			return false, nil
		}
		resolved := p
		s.itemResolved = &resolved

	case auction.AuctionEnded:
		if p.AuctionID != "" && p.AuctionID != s.auctionID {
			return false, nil
		}
		ended := p
		s.ended = &ended

	case []auction.ChatComment:
		s.chat.Replace(p)

	case auction.ChatComment:
		if p.AuctionID != "" && p.AuctionID != s.auctionID {
			return false, nil
		}
		s.chat.Append(p)
		s.commentErr = ""

	case auction.CommentRejected:
		if p.ClientSeq != 0 && p.ClientSeq != s.commentSeq {
			return false, nil
		}
		reason := strings.TrimSpace(p.Reason)
		if reason == "" {
			reason = DefaultRejectReason
		}
		s.commentErr = reason

	case nil:
		log.Debug().Str("event_type", string(env.Type)).Msg("ignoring unknown event")
		return false, nil
	}
	return true, nil
}

// PlaceBid sends a bid for the current item. The previous result is cleared
// immediately; a second bid before the first result arrives is allowed.
func (s *Session) PlaceBid(amount int64) error {
	if s.auctionID == "" {
		return ErrNoRoom
	}
	if s.snapshot == nil || s.snapshot.Status != auction.PhaseLive {
		return ErrNotLive
	}

	s.bidResult = nil
	s.bidSeq++
	return s.emit(auction.CommandPlaceBid, auction.PlaceBidPayload{
		AuctionID: s.auctionID,
		UserID:    s.me.ID,
		Amount:    amount,
		ClientSeq: s.bidSeq,
	})
}

// SendComment validates locally and sends. Local and server rejections share
// the CommentError slot.
func (s *Session) SendComment(text string) error {
	if s.auctionID == "" {
		return ErrNoRoom
	}

	text = strings.TrimSpace(text)
	phase := auction.Phase("")
	if s.snapshot != nil {
		phase = s.snapshot.Status
	}
	if err := s.chat.Validate(text, phase); err != nil {
		s.commentErr = commentErrorText(err)
		return err
	}

	s.commentSeq++
	err := s.emit(auction.CommandSendComment, auction.SendCommentPayload{
		AuctionID:   s.auctionID,
		UserID:      s.me.ID,
		DisplayName: s.me.DisplayName,
		Text:        text,
		ClientSeq:   s.commentSeq,
	})
	if err != nil {
		s.commentErr = "Message not sent"
		return err
	}
	s.chat.Accept()
	s.commentErr = ""
	return nil
}

// Snapshot is the last snapshot received, or nil
func (s *Session) Snapshot() *auction.Snapshot { return s.snapshot }

// BidResult is the verdict on the latest bid attempt, or nil while pending
func (s *Session) BidResult() *auction.BidResult { return s.bidResult }

// CommentError is the current comment error, local or from the server
func (s *Session) CommentError() string { return s.commentErr }

// Ended is the auction_ended payload once received
func (s *Session) Ended() *auction.AuctionEnded { return s.ended }

// Comments is the retained comment log
func (s *Session) Comments() []auction.ChatComment { return s.chat.Comments() }

// TakeItemResolved consumes the pending item resolved signal
func (s *Session) TakeItemResolved() *auction.ItemResolved {
	r := s.itemResolved
	s.itemResolved = nil
	return r
}

func (s *Session) emit(t auction.EventType, payload interface{}) error {
	env, err := auction.NewEnvelope(t, payload)
	if err != nil {
		return err
	}
	if err := s.emitter.Emit(env); err != nil {
		return fmt.Errorf("send %s: %w", t, err)
	}
	return nil
}

func commentErrorText(err error) string {
	switch {
	case errors.Is(err, chat.ErrEmpty):
		return "Message is empty"
	case errors.Is(err, chat.ErrTooLong):
		return "Message is too long"
	case errors.Is(err, chat.ErrTooFast):
		return "You're sending messages too quickly"
	case errors.Is(err, chat.ErrChatClosed):
		return "Chat is closed"
	default:
		return err.Error()
	}
}
