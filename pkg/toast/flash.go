package toast

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// FlashDuration is how long an inline error stays visible.
const FlashDuration = 4 * time.Second

// Flash is the single inline notice line. Showing a new text replaces the
// old one and restarts the clear timer.
type Flash struct {
	mu       sync.Mutex
	clk      clock.Clock
	text     string
	timer    *clock.Timer
	gen      uint64
	onChange func(text string)
}

func NewFlash(clk clock.Clock) *Flash {
	if clk == nil {
		clk = clock.New()
	}
	return &Flash{clk: clk}
}

func (f *Flash) OnChange(fn func(text string)) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

func (f *Flash) Show(text string) {
	f.mu.Lock()
	f.gen++
	gen := f.gen
	f.text = text
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = f.clk.AfterFunc(FlashDuration, func() { f.expire(gen) })
	fn := f.onChange
	f.mu.Unlock()

	if fn != nil {
		fn(text)
	}
}

func (f *Flash) expire(gen uint64) {
	f.mu.Lock()
	if gen != f.gen || f.text == "" {
		f.mu.Unlock()
		return
	}
	f.text = ""
	f.timer = nil
	fn := f.onChange
	f.mu.Unlock()

	if fn != nil {
		fn("")
	}
}

func (f *Flash) Clear() {
	f.mu.Lock()
	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	had := f.text != ""
	f.text = ""
	fn := f.onChange
	f.mu.Unlock()

	if had && fn != nil {
		fn("")
	}
}

func (f *Flash) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}
