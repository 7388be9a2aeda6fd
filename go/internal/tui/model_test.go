package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mcdev12/liveauction/go/internal/auction"
	"github.com/mcdev12/liveauction/go/internal/gesture"
	"github.com/mcdev12/liveauction/go/internal/session"
)

type recordingController struct {
	comments []string
	calls    []string
	moves    []float64
	commits  [][2]float64
	now      time.Time
}

func (r *recordingController) SendComment(text string) { r.comments = append(r.comments, text) }
func (r *recordingController) Start() { r.calls = append(r.calls, "start") }
func (r *recordingController) Extend() { r.calls = append(r.calls, "extend") }
func (r *recordingController) SwitchCamera() { r.calls = append(r.calls, "camera") }
func (r *recordingController) RetryMedia() { r.calls = append(r.calls, "retry") }
func (r *recordingController) MeasureSlider(width float64) { r.calls = append(r.calls, "measure") }
func (r *recordingController) BeginGesture() { r.calls = append(r.calls, "begin") }
func (r *recordingController) MoveGesture(dx float64) { r.moves = append(r.moves, dx) }
func (r *recordingController) CommitGesture(dx, vx float64) {
	r.commits = append(r.commits, [2]float64{dx, vx})
}
func (r *recordingController) CancelGesture() { r.calls = append(r.calls, "cancel") }
func (r *recordingController) Now() time.Time { return r.now }

func newTestModel() (Model, *recordingController) {
	ctrl := &recordingController{now: time.UnixMilli(1_700_000_000_000)}
	m := New(ctrl, session.View{})
	model, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 30})
	return model.(Model), ctrl
}

func typeText(m Model, text string) Model {
	for _, r := range text {
		model, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = model.(Model)
	}
	return m
}

func TestModelSendsCommentOnEnter(t *testing.T) {
	m, ctrl := newTestModel()
	m = typeText(m, "hi")
	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = model.(Model)

	if len(ctrl.comments) != 1 || ctrl.comments[0] != "hi" {
		t.Fatalf("comments = %v, want [hi]", ctrl.comments)
	}
	if m.input != "" {
		t.Errorf("input = %q, want empty after send", m.input)
	}
}

func TestModelBlankEnterStillValidates(t *testing.T) {
	m, ctrl := newTestModel()
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if len(ctrl.comments) != 1 || ctrl.comments[0] != "" {
		t.Errorf("comments = %q, want one empty send", ctrl.comments)
	}
}

func TestModelSellerKeys(t *testing.T) {
	tests := []struct {
		key  tea.KeyType
		want string
	}{
		{tea.KeyCtrlS, "start"},
		{tea.KeyCtrlE, "extend"},
		{tea.KeyCtrlK, "camera"},
		{tea.KeyCtrlR, "retry"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			m, ctrl := newTestModel()
			m.Update(tea.KeyMsg{Type: tc.key})
			last := ctrl.calls[len(ctrl.calls)-1]
			if last != tc.want {
				t.Errorf("last call = %q, want %q", last, tc.want)
			}
		})
	}
}

func TestModelMouseDragOnTrack(t *testing.T) {
	m, ctrl := newTestModel()

	model, _ := m.Update(tea.MouseMsg{X: 3, Y: sliderRow, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	m = model.(Model)
	model, _ = m.Update(tea.MouseMsg{X: 40, Y: sliderRow, Action: tea.MouseActionMotion, Button: tea.MouseButtonLeft})
	m = model.(Model)
	ctrl.now = ctrl.now.Add(10 * time.Millisecond)
	model, _ = m.Update(tea.MouseMsg{X: 50, Y: sliderRow, Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft})
	m = model.(Model)

	if len(ctrl.moves) != 1 || ctrl.moves[0] != 37 {
		t.Errorf("moves = %v, want [37]", ctrl.moves)
	}
	if len(ctrl.commits) != 1 {
		t.Fatalf("commits = %v, want one", ctrl.commits)
	}
	if ctrl.commits[0][0] != 47 || ctrl.commits[0][1] != 1 {
		t.Errorf("commit = %v, want dx=47 vx=1", ctrl.commits[0])
	}
	if m.drag.active {
		t.Error("drag still active after release")
	}
}

func TestModelNarrowTerminalRefusesBid(t *testing.T) {
	ctrl := &recordingController{now: time.UnixMilli(1_700_000_000_000)}
	model, _ := New(ctrl, session.View{}).Update(tea.WindowSizeMsg{Width: 6, Height: 20})
	model, _ = model.(Model).Update(tea.KeyMsg{Type: tea.KeyCtrlB})
	m := model.(Model)

	for _, c := range ctrl.calls {
		if c == "begin" {
			t.Fatal("gesture began on a track too narrow to draw")
		}
	}
	if m.notice != narrowNotice {
		t.Errorf("notice = %q, want %q", m.notice, narrowNotice)
	}
}

func TestGestureConfigFitsSmallTerminal(t *testing.T) {
	// 40 columns leaves a 36 cell track
	s := gesture.NewSlider(GestureConfig(), nil)
	s.Measure(36)
	if !s.Begin() {
		t.Fatalf("begin refused, bound = %v", s.Bound())
	}
	if !s.Release(36, 0) {
		t.Error("full pull did not commit")
	}

	s = gesture.NewSlider(GestureConfig(), nil)
	s.Measure(36)
	s.Begin()
	if !s.Release(6, 0.1) {
		t.Error("flick of 6 cells at 100 cells/s did not commit")
	}
}

func TestModelMouseOffTrackIgnored(t *testing.T) {
	m, ctrl := newTestModel()
	m.Update(tea.MouseMsg{X: 3, Y: sliderRow + 3, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	for _, c := range ctrl.calls {
		if c == "begin" {
			t.Fatal("gesture began outside the track")
		}
	}
}

func TestModelViewRendersAuction(t *testing.T) {
	m, _ := newTestModel()
	remaining := 75
	bidder := "u2-long-identifier"
	item := auction.Item{ID: "i1", Name: "Vase", HighestBid: 50, HighestBidderID: &bidder, Status: auction.ItemLive}
	model, _ := m.Update(ViewMsg(session.View{
		AuctionID: "a1",
		Snapshot:  &auction.Snapshot{ID: "a1", Status: auction.PhaseLive, Items: []auction.Item{item}},
		Item:      &item,
		Remaining: &remaining,
		NextBid:   60,
		CanBid:    true,
		ChatOpen:  true,
	}))
	out := model.(Model).View()

	for _, want := range []string{"a1", "LIVE", "Vase", "$50", "u2-long-", "01:15", "next bid $60", "slide to bid $60"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if lines := strings.Split(out, "\n"); !strings.Contains(lines[sliderRow], "slide to bid") {
		t.Errorf("slider not on row %d: %q", sliderRow, lines[sliderRow])
	}
}

func TestModelViewChatClosed(t *testing.T) {
	m, _ := newTestModel()
	model, _ := m.Update(ViewMsg(session.View{
		AuctionID: "a1",
		Snapshot:  &auction.Snapshot{ID: "a1", Status: auction.PhaseEnded},
		Results:   []auction.FinalResult{{ItemID: "i1", Name: "Vase", FinalPrice: 80}},
	}))
	out := model.(Model).View()
	if !strings.Contains(out, "Chat is closed") {
		t.Error("expected closed chat placeholder")
	}
	if !strings.Contains(out, "unsold") || !strings.Contains(out, "Results") {
		t.Error("expected results table")
	}
}
