package timekeeping

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ajanata/clock303/internal/config"
	"github.com/ajanata/clock303/internal/display"
)

const (
	// ColonOn is how long the colon stays lit after a redraw.
	ColonOn = 500 * time.Millisecond
	// RedrawAfter is when to start watching for the next second.
	RedrawAfter = 950 * time.Millisecond
)

type Clock interface {
	TimeKnown() bool
	SyncedSecond() int64
	Now() Reading
}

type DigitDisplay interface {
	Show(g0, g1, g2, g3 display.Glyph, colon bool) error
	SetColon(on bool) error
}

// Scheduler redraws the digits once a second and blinks the colon.
type Scheduler struct {
	src   Clock
	cfg   Config
	disp  DigitDisplay
	clock clockwork.Clock

	primed     bool
	lastShown  int64
	lastChange time.Time
	colon      bool
}

func NewScheduler(src Clock, cfg Config, disp DigitDisplay, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{src: src, cfg: cfg, disp: disp, clock: clock}
}

// Poll runs once per main loop tick. Nothing happens until the time is known.
func (s *Scheduler) Poll() {
	if !s.src.TimeKnown() {
		return
	}
	if !s.primed {
		s.lastShown = s.src.SyncedSecond()
		s.primed = true
	}

	elapsed := s.clock.Since(s.lastChange)
	switch {
	case elapsed < ColonOn:
	case elapsed < RedrawAfter:
		if s.colon {
			s.setColon(false)
		}
	default:
		r := s.src.Now()
		if r.Unix != s.lastShown {
			s.draw(r)
		} else if s.colon {
			// polled late, still in the old second
			s.setColon(false)
		}
	}
}

func (s *Scheduler) setColon(on bool) {
	_ = s.disp.SetColon(on)
	s.colon = on
}

func (s *Scheduler) draw(r Reading) {
	lead, trail := HourGlyphs(r.Hour, s.cfg.FlagSet(config.Mask24H))
	_ = s.disp.Show(lead, trail, display.Digit(r.Minute/10), display.Digit(r.Minute), true)
	s.lastShown = r.Unix
	s.lastChange = s.clock.Now()
	s.colon = true
}

// HourGlyphs returns the two hour digits. In 12 hour mode the leading digit is blank or 1
// and the trailing digit is always hour mod 10, which is what the board has always shown.
func HourGlyphs(hour int, twentyFour bool) (lead, trail display.Glyph) {
	trail = display.Digit(hour)
	switch {
	case hour < 10:
		lead = display.Blank
	case hour < 13:
		lead = 1
	case twentyFour:
		lead = 1
		if hour > 19 {
			lead = 2
		}
	case hour < 22:
		lead = display.Blank
	default:
		lead = 1
	}
	return lead, trail
}
