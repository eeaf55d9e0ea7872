// Package timekeeping starts network time once the clock is online and keeps the digits
// showing the local time.
package timekeeping

import (
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ajanata/clock303/internal/config"
	"github.com/ajanata/clock303/internal/display"
)

var serverTags = [...]string{config.TagNTPServer1, config.TagNTPServer2, config.TagNTPServer3}

type Connectivity interface {
	IsConnected() bool
}

// TimeService sets the system clock from the network.
type TimeService interface {
	Configure(tz string, servers ...string) error
	OnClockSet(f func())
	Local(t time.Time) time.Time
}

type WordDisplay interface {
	ShowWord(w [4]display.Glyph) error
}

// Reading is the local wall clock at one whole second.
type Reading struct {
	Unix   int64
	Hour   int
	Minute int
}

type Options struct {
	Clock  clockwork.Clock
	Logger *log.Logger
}

// Source starts the time service once the network is up and says when the time is known.
type Source struct {
	conn  Connectivity
	cfg   Config
	ts    TimeService
	disp  WordDisplay
	clock clockwork.Clock
	log   *log.Logger

	descriptor  Descriptor
	servers     []string
	initialised bool

	// written from the time service's callback
	timeKnown    atomic.Bool
	syncedSecond atomic.Int64
}

func NewSource(conn Connectivity, cfg Config, ts TimeService, disp WordDisplay, opts Options) *Source {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stdout, "time: ", 0)
	}
	s := &Source{
		conn:  conn,
		cfg:   cfg,
		ts:    ts,
		disp:  disp,
		clock: opts.Clock,
		log:   opts.Logger,
	}
	ts.OnClockSet(s.clockSet)
	return s
}

// Poll starts the time service the first time it finds the network up. It is cheap to
// call on every tick.
func (s *Source) Poll() {
	if s.timeKnown.Load() || s.initialised {
		return
	}
	if !s.conn.IsConnected() {
		return
	}
	s.start()
}

func (s *Source) start() {
	s.descriptor = LoadDescriptor(s.cfg)
	s.servers = s.servers[:0]
	for _, tag := range serverTags {
		if srv := s.cfg.String(tag, ""); srv != "" {
			s.servers = append(s.servers, srv)
		}
	}
	tz := s.descriptor.String()
	s.log.Printf("starting network time, TZ is %q, servers %q", tz, s.servers)

	_ = s.disp.ShowWord(display.Sync)
	if err := s.ts.Configure(tz, s.servers...); err != nil {
		s.log.Printf("configure network time: %v", err)
	}
	s.initialised = true
}

func (s *Source) clockSet() {
	if s.timeKnown.Load() {
		return
	}
	// the first redraw lands on the next second boundary
	s.syncedSecond.Store(s.clock.Now().Unix())
	s.timeKnown.Store(true)
}

// TimeKnown reports whether the clock has been set from the network at least once.
func (s *Source) TimeKnown() bool {
	return s.timeKnown.Load()
}

// SyncedSecond is the Unix second at which the time first became known.
func (s *Source) SyncedSecond() int64 {
	return s.syncedSecond.Load()
}

// Descriptor is the timezone handed to the time service, zero before it started.
func (s *Source) Descriptor() Descriptor {
	return s.descriptor
}

// Servers are the time servers handed to the time service.
func (s *Source) Servers() []string {
	return s.servers
}

// Now reads the local wall clock.
func (s *Source) Now() Reading {
	now := s.clock.Now()
	local := s.ts.Local(now)
	return Reading{Unix: now.Unix(), Hour: local.Hour(), Minute: local.Minute()}
}
