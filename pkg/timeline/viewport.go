package timeline

import "github.com/tinyland-inc/chatline/pkg/protocol"

// Viewport is the visible window over the timeline, in rows. Top is the
// index of the first visible row.
type Viewport struct {
	Top    int
	Height int
}

func (v *Viewport) maxTop(content int) int {
	return max(0, content-v.Height)
}

func (v *Viewport) scrollToBottom(content int) {
	v.Top = v.maxTop(content)
}

// ScrollState describes the viewport after a scroll.
type ScrollState struct {
	Top                int
	DistanceFromBottom int
	AtTop              bool
}

func (t *Timeline) SetViewportHeight(h int) {
	t.mu.Lock()
	t.view.Height = max(0, h)
	t.view.Top = min(t.view.Top, t.view.maxTop(t.contentRowsLocked()))
	t.mu.Unlock()
}

// Scroll moves the viewport to top, clamped to the content.
func (t *Timeline) Scroll(top int) ScrollState {
	t.mu.Lock()
	defer t.mu.Unlock()
	content := t.contentRowsLocked()
	t.view.Top = min(max(0, top), t.view.maxTop(content))
	return t.scrollStateLocked(content)
}

// ScrollBy moves the viewport by delta rows.
func (t *Timeline) ScrollBy(delta int) ScrollState {
	t.mu.Lock()
	top := t.view.Top + delta
	t.mu.Unlock()
	return t.Scroll(top)
}

func (t *Timeline) ScrollToBottom() ScrollState {
	t.mu.Lock()
	defer t.mu.Unlock()
	content := t.contentRowsLocked()
	t.view.scrollToBottom(content)
	return t.scrollStateLocked(content)
}

func (t *Timeline) View() ScrollState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scrollStateLocked(t.contentRowsLocked())
}

func (t *Timeline) scrollStateLocked(content int) ScrollState {
	return ScrollState{
		Top:                t.view.Top,
		DistanceFromBottom: max(0, content-t.view.Height-t.view.Top),
		AtTop:              t.view.Top == 0,
	}
}

// Visible returns the items that intersect the viewport.
func (t *Timeline) Visible() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Item
	row := 0
	end := t.view.Top + t.view.Height
	for _, it := range t.items {
		next := row + it.Rows()
		if next > t.view.Top && row < end {
			out = append(out, it)
		}
		row = next
	}
	return out
}

// Visibility is the share of a message's rows inside the viewport.
type Visibility struct {
	ID    protocol.ID
	Ratio float64
}

// VisibleMessages reports every message that intersects the viewport and
// how much of it is on screen.
func (t *Timeline) VisibleMessages() []Visibility {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Visibility
	row := 0
	end := t.view.Top + t.view.Height
	for _, it := range t.items {
		rows := it.Rows()
		next := row + rows
		if it.Kind == ItemMessage && next > t.view.Top && row < end {
			shown := min(next, end) - max(row, t.view.Top)
			out = append(out, Visibility{ID: it.Message.ID, Ratio: float64(shown) / float64(rows)})
		}
		row = next
	}
	return out
}
