package timekeeping

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ajanata/clock303/internal/config"
	"github.com/ajanata/clock303/internal/display"
)

type fakeConfig struct {
	strs       map[string]string
	ints       map[string]int8
	start, end config.DSTRule
	flags      int8
}

func (c *fakeConfig) Has(tag string) bool {
	_, s := c.strs[tag]
	_, i := c.ints[tag]
	return s || i
}

func (c *fakeConfig) String(tag, def string) string {
	if v, ok := c.strs[tag]; ok {
		return v
	}
	return def
}

func (c *fakeConfig) Int8(tag string, def int8) int8 {
	if v, ok := c.ints[tag]; ok {
		return v
	}
	return def
}

func (c *fakeConfig) DSTRule(start bool) config.DSTRule {
	if start {
		return c.start
	}
	return c.end
}

func (c *fakeConfig) FlagSet(mask int8) bool {
	return c.flags&mask != 0
}

type fakeConn struct {
	connected bool
	polls     int
}

func (c *fakeConn) IsConnected() bool {
	c.polls++
	return c.connected
}

type fakeTime struct {
	configured []string
	err        error
	cb         func()
	offset     time.Duration
}

func (f *fakeTime) Configure(tz string, servers ...string) error {
	f.configured = append(f.configured, tz)
	f.configured = append(f.configured, servers...)
	return f.err
}

func (f *fakeTime) OnClockSet(cb func()) { f.cb = cb }

func (f *fakeTime) Local(t time.Time) time.Time { return t.UTC().Add(f.offset) }

type op struct {
	at     time.Time
	word   string
	digits string
	colon  bool
}

type fakeDisplay struct {
	clock clockwork.Clock
	ops   []op
}

func (d *fakeDisplay) ShowWord(w [4]display.Glyph) error {
	d.ops = append(d.ops, op{at: d.clock.Now(), word: w[0].String() + w[1].String() + w[2].String() + w[3].String()})
	return nil
}

func (d *fakeDisplay) Show(g0, g1, g2, g3 display.Glyph, colon bool) error {
	d.ops = append(d.ops, op{at: d.clock.Now(), digits: g0.String() + g1.String() + g2.String() + g3.String(), colon: colon})
	return nil
}

func (d *fakeDisplay) SetColon(on bool) error {
	d.ops = append(d.ops, op{at: d.clock.Now(), colon: on})
	return nil
}

func (d *fakeDisplay) redraws() int {
	n := 0
	for _, o := range d.ops {
		if o.digits != "" {
			n++
		}
	}
	return n
}

func (d *fakeDisplay) colonOffs() int {
	n := 0
	for _, o := range d.ops {
		if o.digits == "" && o.word == "" && !o.colon {
			n++
		}
	}
	return n
}

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

func quiet() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestDescriptor(t *testing.T) {
	cases := []struct {
		name string
		cfg  *fakeConfig
		want string
	}{
		{"gmt", &fakeConfig{
			strs: map[string]string{config.TagTZName: "GMT"},
			ints: map[string]int8{config.TagTimezone: 0},
		}, "GMT0"},
		{"bst", &fakeConfig{
			strs:  map[string]string{config.TagTZName: "GMT", config.TagDSTName: "BST"},
			ints:  map[string]int8{config.TagTimezone: 0},
			start: config.DSTRule{Weekday: 0, Week: 4, Month: 2, Hour: 1},
			end:   config.DSTRule{Weekday: 0, Week: 0, Month: 9, Hour: 2},
		}, "GMT0BST,M3.5.0/1,M10.1.0/2"},
		{"unnamed", &fakeConfig{}, "UNK0"},
		{"negative", &fakeConfig{
			strs: map[string]string{config.TagTZName: "EST"},
			ints: map[string]int8{config.TagTimezone: -5},
		}, "EST-5"},
		{"positive", &fakeConfig{
			strs: map[string]string{config.TagTZName: "CET"},
			ints: map[string]int8{config.TagTimezone: 1},
		}, "CET+1"},
		{"empty dst name", &fakeConfig{
			strs:  map[string]string{config.TagTZName: "GMT", config.TagDSTName: ""},
			start: config.DSTRule{Month: 2},
		}, "GMT0"},
	}
	for _, c := range cases {
		if got := LoadDescriptor(c.cfg).String(); got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, got, c.want)
		}
	}
}

func newSource(cfg *fakeConfig) (*Source, *fakeConn, *fakeTime, *fakeDisplay, fakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 34, 56, 300_000_000, time.UTC))
	conn := &fakeConn{}
	ts := &fakeTime{}
	disp := &fakeDisplay{clock: clock}
	src := NewSource(conn, cfg, ts, disp, Options{Clock: clock, Logger: quiet()})
	return src, conn, ts, disp, clock
}

func TestSourceWaitsForNetwork(t *testing.T) {
	src, conn, ts, disp, _ := newSource(&fakeConfig{})
	for i := 0; i < 10; i++ {
		src.Poll()
	}
	if conn.polls != 10 || len(ts.configured) != 0 || len(disp.ops) != 0 {
		t.Errorf("started without network: %v %v", ts.configured, disp.ops)
	}
	if src.TimeKnown() {
		t.Error("time known without network")
	}
}

func TestSourceStartsOnce(t *testing.T) {
	cfg := &fakeConfig{strs: map[string]string{
		config.TagTZName:     "GMT",
		config.TagNTPServer1: "",
		config.TagNTPServer2: "1.pool.ntp.org",
		config.TagNTPServer3: "2.pool.ntp.org",
	}}
	src, conn, ts, disp, _ := newSource(cfg)
	conn.connected = true
	for i := 0; i < 5; i++ {
		src.Poll()
	}

	want := []string{"GMT0", "1.pool.ntp.org", "2.pool.ntp.org"}
	if len(ts.configured) != len(want) {
		t.Fatalf("configured %q, want %q", ts.configured, want)
	}
	for i := range want {
		if ts.configured[i] != want[i] {
			t.Errorf("configured %q, want %q", ts.configured, want)
		}
	}
	if len(disp.ops) != 1 || disp.ops[0].word != "SynC" {
		t.Errorf("display %+v", disp.ops)
	}
	if conn.polls != 1 {
		t.Errorf("connectivity polled %d times after start", conn.polls)
	}
	if got := src.Servers(); len(got) != 2 || got[0] != "1.pool.ntp.org" {
		t.Errorf("servers %q", got)
	}
	if src.Descriptor().Name != "GMT" {
		t.Errorf("descriptor %+v", src.Descriptor())
	}
}

func TestSourceConfigureErrorIsNotRetried(t *testing.T) {
	src, conn, ts, _, _ := newSource(&fakeConfig{})
	conn.connected = true
	ts.err = errors.New("no servers")
	src.Poll()
	src.Poll()
	if len(ts.configured) != 1 {
		t.Errorf("configured %d times", len(ts.configured))
	}
}

func TestClockSetOnlyCountsOnce(t *testing.T) {
	src, _, ts, _, clock := newSource(&fakeConfig{})
	first := clock.Now().Unix()
	ts.cb()
	if !src.TimeKnown() || src.SyncedSecond() != first {
		t.Fatalf("known %v at %d", src.TimeKnown(), src.SyncedSecond())
	}
	clock.Advance(time.Hour)
	ts.cb()
	if src.SyncedSecond() != first {
		t.Error("second callback moved the synced second")
	}
}

func TestReading(t *testing.T) {
	src, _, ts, _, _ := newSource(&fakeConfig{})
	ts.offset = -5 * time.Hour
	r := src.Now()
	if r.Hour != 7 || r.Minute != 34 {
		t.Errorf("reading %+v", r)
	}
	if r.Unix != time.Date(2024, 5, 1, 12, 34, 56, 0, time.UTC).Unix() {
		t.Errorf("unix %d", r.Unix)
	}
}

func TestHourGlyphs(t *testing.T) {
	b := display.Blank
	cases := []struct {
		hour        int
		twentyFour  bool
		lead, trail display.Glyph
	}{
		{0, false, b, 0},
		{9, false, b, 9},
		{10, false, 1, 0},
		{12, false, 1, 2},
		{13, false, b, 3},
		{21, false, b, 1},
		{22, false, 1, 2},
		{23, false, 1, 3},
		{0, true, b, 0},
		{12, true, 1, 2},
		{13, true, 1, 3},
		{19, true, 1, 9},
		{20, true, 2, 0},
		{23, true, 2, 3},
	}
	for _, c := range cases {
		lead, trail := HourGlyphs(c.hour, c.twentyFour)
		if lead != c.lead || trail != c.trail {
			t.Errorf("%d (24h %v): got %v%v, want %v%v", c.hour, c.twentyFour, lead, trail, c.lead, c.trail)
		}
	}
}

type schedFixture struct {
	src   *Source
	ts    *fakeTime
	disp  *fakeDisplay
	clock fakeClock
	sched *Scheduler
}

func newScheduler(cfg *fakeConfig) *schedFixture {
	src, _, ts, disp, clock := newSource(cfg)
	return &schedFixture{
		src:   src,
		ts:    ts,
		disp:  disp,
		clock: clock,
		sched: NewScheduler(src, cfg, disp, clock),
	}
}

// tick polls every 20 ms for d.
func (f *schedFixture) tick(d time.Duration) {
	for end := f.clock.Now().Add(d); f.clock.Now().Before(end); {
		f.clock.Advance(20 * time.Millisecond)
		f.sched.Poll()
	}
}

func TestSchedulerWaitsForTime(t *testing.T) {
	f := newScheduler(&fakeConfig{})
	f.tick(3 * time.Second)
	if len(f.disp.ops) != 0 {
		t.Errorf("drew before time known: %+v", f.disp.ops)
	}
}

func TestSchedulerFirstRedrawOnNextSecond(t *testing.T) {
	f := newScheduler(&fakeConfig{})
	f.ts.cb() // at 12:34:56.300
	f.sched.Poll()
	if len(f.disp.ops) != 0 {
		t.Fatalf("drew in the synced second: %+v", f.disp.ops)
	}
	f.tick(700 * time.Millisecond)
	if f.disp.redraws() != 1 {
		t.Fatalf("redraws %d", f.disp.redraws())
	}
	first := f.disp.ops[0]
	if first.digits != "1234" || !first.colon || first.at.Second() != 57 || first.at.Nanosecond() != 0 {
		t.Errorf("first redraw %+v", first)
	}
}

func TestSchedulerHeartbeat(t *testing.T) {
	f := newScheduler(&fakeConfig{})
	f.ts.cb()
	f.tick(700 * time.Millisecond) // first redraw at :57.000
	f.disp.ops = nil

	f.tick(10 * time.Second)
	if got := f.disp.redraws(); got != 10 {
		t.Errorf("redraws %d, want 10", got)
	}
	if got := f.disp.colonOffs(); got != 10 {
		t.Errorf("colon offs %d, want 10", got)
	}
	for i := 0; i+1 < len(f.disp.ops); i += 2 {
		off, draw := f.disp.ops[i], f.disp.ops[i+1]
		if off.digits != "" || off.colon || off.at.Nanosecond() != 500_000_000 {
			t.Errorf("op %d: %+v, want colon off at .500", i, off)
		}
		if draw.digits == "" || !draw.colon || draw.at.Nanosecond() != 0 {
			t.Errorf("op %d: %+v, want redraw on the second", i+1, draw)
		}
	}
}

func TestSchedulerQuietWindow(t *testing.T) {
	f := newScheduler(&fakeConfig{})
	f.ts.cb()
	f.tick(700 * time.Millisecond)
	n := len(f.disp.ops)
	for i := 0; i < 24; i++ {
		f.clock.Advance(20 * time.Millisecond) // up to 480 ms
		f.sched.Poll()
		f.sched.Poll()
	}
	if len(f.disp.ops) != n {
		t.Errorf("display changed inside 500 ms: %+v", f.disp.ops[n:])
	}
}

func TestSchedulerIdempotentWithinSecond(t *testing.T) {
	f := newScheduler(&fakeConfig{})
	f.ts.cb()
	f.tick(700 * time.Millisecond) // redraw at :57.000
	f.clock.Advance(970 * time.Millisecond)
	f.disp.ops = nil
	for i := 0; i < 50; i++ {
		f.sched.Poll()
	}
	// polled late: the colon goes off once, nothing is redrawn
	if f.disp.redraws() != 0 || len(f.disp.ops) != 1 || f.disp.ops[0].colon {
		t.Errorf("ops %+v", f.disp.ops)
	}
	f.clock.Advance(30 * time.Millisecond)
	for i := 0; i < 50; i++ {
		f.sched.Poll()
	}
	if f.disp.redraws() != 1 {
		t.Errorf("redraws %d, want 1", f.disp.redraws())
	}
}

func TestScheduler24Hour(t *testing.T) {
	cfg := &fakeConfig{flags: config.Mask24H}
	f := newScheduler(cfg)
	f.ts.offset = 90 * time.Minute // 14:04 local
	f.ts.cb()
	f.tick(700 * time.Millisecond)
	if got := f.disp.ops[0].digits; got != "1404" {
		t.Errorf("24h: got %q", got)
	}

	cfg.flags = 0
	f.tick(time.Second)
	last := f.disp.ops[len(f.disp.ops)-1]
	if last.digits != " 404" {
		t.Errorf("12h: got %q", last.digits)
	}
}
