package tui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mcdev12/liveauction/go/internal/auction"
	"github.com/mcdev12/liveauction/go/internal/gesture"
	"github.com/mcdev12/liveauction/go/internal/media"
	"github.com/mcdev12/liveauction/go/internal/session"
)

// sliderRow is the screen line of the bid track
const sliderRow = 4

// trackInset is the left edge of the track on its row
const trackInset = 2

// minTrack is the narrowest track the slider is drawn and driven on
const minTrack = 4

// GestureConfig sizes the bid gesture in terminal cells. Flick velocity
// is in cells per millisecond.
func GestureConfig() gesture.Config {
	return gesture.Config{
		ThumbSize:      1,
		TrackPadding:   0,
		CommitRatio:    0.9,
		FlickVelocity:  0.05,
		FlickMinOffset: 3,
		CommitAnimate:  120 * time.Millisecond,
		SettleDelay:    260 * time.Millisecond,
	}
}

// Controller is the session surface the terminal drives
type Controller interface {
	SendComment(text string)
	Start()
	Extend()
	SwitchCamera()
	RetryMedia()
	MeasureSlider(width float64)
	BeginGesture()
	MoveGesture(dx float64)
	CommitGesture(dx, vx float64)
	CancelGesture()
	Now() time.Time
}

// ViewMsg delivers a fresh session view to the program
type ViewMsg session.View

type copyResultMsg struct {
	err error
}

type drag struct {
	active bool
	startX int
	lastX  int
	lastAt time.Time
}

// Model is the root Bubbletea model of the auction screen
type Model struct {
	ctrl   Controller
	view   session.View
	input  string
	notice string
	drag   drag
	width  int
	height int
}

// New creates the auction screen model
func New(ctrl Controller, initial session.View) Model {
	return Model{ctrl: ctrl, view: initial}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ctrl.MeasureSlider(float64(m.trackWidth()))

	case ViewMsg:
		m.view = session.View(msg)

	case copyResultMsg:
		if msg.err != nil {
			m.notice = "Copy failed"
		} else {
			m.notice = "Auction id copied"
		}

	case tea.MouseMsg:
		m.handleMouse(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "ctrl+q":
		return m, tea.Quit
	case "enter":
		m.ctrl.SendComment(m.input)
		if strings.TrimSpace(m.input) != "" {
			m.input = ""
		}
	case "esc":
		m.input = ""
		m.notice = ""
	case "ctrl+s":
		m.ctrl.Start()
	case "ctrl+e":
		m.ctrl.Extend()
	case "ctrl+k":
		m.ctrl.SwitchCamera()
	case "ctrl+r":
		m.ctrl.RetryMedia()
	case "ctrl+b":
		// keyboard stand-in for a full pull
		if m.trackWidth() < minTrack {
			m.notice = narrowNotice
			return m, nil
		}
		w := float64(m.trackWidth())
		m.ctrl.BeginGesture()
		m.ctrl.MoveGesture(w)
		m.ctrl.CommitGesture(w, 0)
	case "ctrl+y":
		id := m.view.AuctionID
		if id == "" {
			return m, nil
		}
		return m, func() tea.Msg {
			return copyResultMsg{err: clipboard.WriteAll(id)}
		}
	case "backspace":
		if m.input != "" {
			runes := []rune(m.input)
			m.input = string(runes[:len(runes)-1])
		}
	default:
		if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
			if utf8.RuneCountInString(m.input) < maxInput {
				m.input += string(msg.Runes)
			}
		}
	}
	return m, nil
}

const narrowNotice = "Terminal too narrow to bid"

// maxInput caps the edit buffer; the session enforces the real limit
const maxInput = 400

func (m *Model) handleMouse(msg tea.MouseMsg) {
	now := m.ctrl.Now()
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft || msg.Y != sliderRow {
			return
		}
		if m.trackWidth() < minTrack {
			m.notice = narrowNotice
			return
		}
		m.drag = drag{active: true, startX: msg.X, lastX: msg.X, lastAt: now}
		m.ctrl.BeginGesture()

	case tea.MouseActionMotion:
		if !m.drag.active {
			return
		}
		m.drag.lastX, m.drag.lastAt = msg.X, now
		m.ctrl.MoveGesture(float64(msg.X - m.drag.startX))

	case tea.MouseActionRelease:
		if !m.drag.active {
			return
		}
		dx := float64(msg.X - m.drag.startX)
		var vx float64
		if ms := now.Sub(m.drag.lastAt).Milliseconds(); ms > 0 {
			vx = float64(msg.X-m.drag.lastX) / float64(ms)
		}
		m.drag = drag{}
		m.ctrl.CommitGesture(dx, vx)
	}
}

func (m Model) trackWidth() int {
	w := m.width - 2*trackInset
	if w < 0 {
		return 0
	}
	return w
}

func (m Model) View() string {
	v := m.view
	now := m.ctrl.Now()
	var b strings.Builder

	// rows 0..3 are fixed so the track stays on sliderRow
	b.WriteString(m.renderHeader() + "\n")
	b.WriteString(m.renderStatus() + "\n")
	b.WriteString(m.renderItem() + "\n")
	b.WriteString(m.renderClock() + "\n")
	b.WriteString(m.renderSlider() + "\n")

	if line := m.renderBidResult(); line != "" {
		b.WriteString(line + "\n")
	}
	if v.Announcement != nil {
		b.WriteString(m.renderAnnouncement() + "\n")
	}
	if len(v.Results) > 0 {
		b.WriteString(m.renderResults() + "\n")
	}
	if v.ActionError != "" {
		b.WriteString(rejectStyle.Render(v.ActionError) + "\n")
	}

	b.WriteString("\n")
	for _, c := range v.Comments {
		label := auction.ParticipantLabel(c.UserID, v.User.ID, v.User.DisplayName)
		if c.UserID != v.User.ID && c.DisplayName != "" {
			label = c.DisplayName
		}
		line := fmt.Sprintf("%s  %s  %s", label, c.Text, auction.CommentAge(c.CreatedAt, now))
		b.WriteString(fadeStyle(c.Opacity).Render(line) + "\n")
	}
	if v.CommentErr != "" {
		b.WriteString(rejectStyle.Render(v.CommentErr) + "\n")
	}
	b.WriteString(m.renderInput() + "\n")
	if m.notice != "" {
		b.WriteString(metaStyle.Render(m.notice) + "\n")
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	v := m.view
	dot := rejectStyle.Render("●")
	if v.Connection.Connected {
		dot = accentStyle.Render("●")
	}
	title := titleStyle.Render("LIVE AUCTION")
	if v.AuctionID != "" {
		title += "  " + metaStyle.Render(v.AuctionID)
	}
	return title + "  " + dot
}

func (m Model) renderStatus() string {
	v := m.view
	if v.Snapshot == nil {
		if v.Connection.LastError != "" {
			return rejectStyle.Render(v.Connection.LastError)
		}
		return dimStyle.Render("Waiting for auction state...")
	}

	phase := dimStyle.Render(string(v.Snapshot.Status))
	if v.Snapshot.Status == auction.PhaseLive {
		phase = liveStyle.Render("LIVE")
	}
	role := "buyer"
	if v.IsSeller {
		role = "seller"
	}
	return phase + "  " + metaStyle.Render(role) + "  " + renderMedia(v.Media)
}

func renderMedia(s media.SessionState) string {
	switch s.State {
	case media.StateJoined:
		if s.RemoteID == nil && s.Role == media.RoleViewer {
			return dimStyle.Render("video: waiting for seller")
		}
		return accentStyle.Render("video: on")
	case media.StateJoining:
		return dimStyle.Render("video: connecting")
	case media.StateError:
		return rejectStyle.Render("video: " + s.Error)
	default:
		return metaStyle.Render("video: off")
	}
}

func (m Model) renderItem() string {
	item := m.view.Item
	if item == nil {
		return ""
	}
	line := normalStyle.Render(item.Name) + "  " + goldStyle.Render(fmt.Sprintf("$%d", item.HighestBid))
	if item.HighestBidderID != nil {
		line += "  " + dimStyle.Render(auction.ParticipantLabel(*item.HighestBidderID, m.view.User.ID, m.view.User.DisplayName))
	} else {
		line += "  " + metaStyle.Render(fmt.Sprintf("starts at $%d", item.StartingPrice))
	}
	return line
}

func (m Model) renderClock() string {
	v := m.view
	clock := metaStyle.Render("--:--")
	if v.Remaining != nil {
		r := *v.Remaining
		clock = titleStyle.Render(fmt.Sprintf("%02d:%02d", r/60, r%60))
	}
	if v.CanBid {
		return clock + "  " + dimStyle.Render(fmt.Sprintf("next bid $%d", v.NextBid))
	}
	return clock
}

func (m Model) renderSlider() string {
	w := m.trackWidth()
	if w < minTrack {
		return ""
	}
	pad := strings.Repeat(" ", trackInset)
	if m.view.Slider.Disabled {
		return pad + trackStyle.Render(strings.Repeat("─", w))
	}

	pos := int(m.view.Slider.Progress * float64(w-1))
	label := fmt.Sprintf(" slide to bid $%d ", m.view.NextBid)
	if m.view.Slider.State == gesture.Committing {
		label = " bid sent "
	}
	track := []rune(strings.Repeat("─", w))
	start := (w - utf8.RuneCountInString(label)) / 2
	if start > pos {
		copy(track[start:], []rune(label))
	}
	return pad + thumbStyle.Render(strings.Repeat("━", pos)+"●") + trackStyle.Render(string(track[pos+1:]))
}

func (m Model) renderBidResult() string {
	v := m.view
	if v.BidError != "" {
		return rejectStyle.Render(v.BidError)
	}
	if v.BidResult == nil {
		return ""
	}
	if v.BidResult.Accepted {
		return accentStyle.Render("Bid accepted")
	}
	reason := v.BidResult.Reason
	if reason == "" {
		reason = "Bid rejected"
	}
	return rejectStyle.Render(reason)
}

func (m Model) renderAnnouncement() string {
	ann := m.view.Announcement
	text := fmt.Sprintf("%s went unsold", ann.ItemName)
	if ann.Sold {
		winner := "someone"
		if ann.WinnerID != nil {
			winner = auction.ParticipantLabel(*ann.WinnerID, m.view.User.ID, m.view.User.DisplayName)
		}
		text = fmt.Sprintf("SOLD  %s to %s for $%d", ann.ItemName, winner, ann.FinalPrice)
	}
	return bannerStyle.Foreground(fadeColor(m.view.AnnouncementOpacity)).Render(text)
}

func (m Model) renderResults() string {
	rows := make([]string, 0, len(m.view.Results)+1)
	rows = append(rows, titleStyle.Render("Results"))
	for _, r := range m.view.Results {
		winner := metaStyle.Render("unsold")
		if r.WinnerID != nil {
			winner = normalStyle.Render(auction.ParticipantLabel(*r.WinnerID, m.view.User.ID, m.view.User.DisplayName))
		}
		rows = append(rows, fmt.Sprintf("%-20s %s  %s", r.Name, goldStyle.Render(fmt.Sprintf("$%d", r.FinalPrice)), winner))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderInput() string {
	prompt := inputPromptStyle.Render("> ")
	if !m.view.ChatOpen {
		return prompt + inputPlaceholderStyle.Render("Chat is closed")
	}
	if m.input == "" {
		return prompt + inputPlaceholderStyle.Render("Say something...")
	}
	return prompt + normalStyle.Render(m.input) + accentStyle.Render("█")
}

func (m Model) renderHelp() string {
	type hint struct{ key, label string }
	hints := []hint{{"enter", "send"}, {"ctrl+b", "bid"}}
	if m.view.CanStart {
		hints = append(hints, hint{"ctrl+s", "start"})
	}
	if m.view.CanExtend {
		hints = append(hints, hint{"ctrl+e", "extend"})
	}
	if m.view.Starting || m.view.Extending {
		hints = append(hints, hint{"...", "working"})
	}
	if m.view.IsSeller && m.view.Media.Joined {
		hints = append(hints, hint{"ctrl+k", "camera"})
	}
	if m.view.Media.State == media.StateError {
		hints = append(hints, hint{"ctrl+r", "retry video"})
	}
	hints = append(hints, hint{"ctrl+y", "copy id"}, hint{"ctrl+c", "quit"})

	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, helpKeyStyle.Render(h.key)+" "+helpLabelStyle.Render(h.label))
	}
	return strings.Join(parts, "  ")
}
