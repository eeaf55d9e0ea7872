// Package tz evaluates POSIX TZ strings of the form
//
//	std offset [dst [offset] [,start[/time],end[/time]]]
//
// where start and end are Mm.w.d rules. Boards have no zoneinfo database, so this is how
// local time is worked out from the configured descriptor.
package tz

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrSyntax = errors.New("tz: bad syntax")

// Rule is day D (0 = Sunday) of week W (1-5, 5 = last) of month M (1-12), at Time
// after local midnight.
type Rule struct {
	Month   int
	Week    int
	Weekday int
	Time    time.Duration
}

// Zone is a parsed TZ string. Offsets are seconds east of UTC.
type Zone struct {
	StdName   string
	StdOffset int
	DSTName   string
	DSTOffset int
	Start     Rule
	End       Rule
}

var UTC = &Zone{StdName: "UTC"}

// HasDST reports whether the zone ever leaves standard time.
func (z *Zone) HasDST() bool {
	return z.DSTName != ""
}

type parser struct {
	s   string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at %d in %q: %s", ErrSyntax, p.pos, p.s, fmt.Sprintf(format, args...))
}

func (p *parser) done() bool {
	return p.pos >= len(p.s)
}

func (p *parser) peek() byte {
	if p.done() {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) name() (string, error) {
	if p.peek() == '<' {
		end := strings.IndexByte(p.s[p.pos:], '>')
		if end < 0 {
			return "", p.errorf("unterminated quoted name")
		}
		n := p.s[p.pos+1 : p.pos+end]
		p.pos += end + 1
		return n, nil
	}
	start := p.pos
	for !p.done() {
		c := p.peek()
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("expected a name")
	}
	return p.s[start:p.pos], nil
}

func (p *parser) num() (int, error) {
	start := p.pos
	for !p.done() && p.peek() >= '0' && p.peek() <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, p.errorf("expected a number")
	}
	return strconv.Atoi(p.s[start:p.pos])
}

// clock parses [+|-]hh[:mm[:ss]].
func (p *parser) clock() (time.Duration, error) {
	sign := time.Duration(1)
	switch p.peek() {
	case '-':
		sign = -1
		p.pos++
	case '+':
		p.pos++
	}
	var d time.Duration
	unit := time.Hour
	for i := 0; i < 3; i++ {
		n, err := p.num()
		if err != nil {
			return 0, err
		}
		d += time.Duration(n) * unit
		if p.peek() != ':' {
			break
		}
		p.pos++
		unit /= 60
	}
	return sign * d, nil
}

func (p *parser) rule() (Rule, error) {
	if p.peek() != 'M' {
		return Rule{}, p.errorf("only Mm.w.d rules are supported")
	}
	p.pos++
	var f [3]int
	for i := range f {
		if i > 0 {
			if p.peek() != '.' {
				return Rule{}, p.errorf("expected '.'")
			}
			p.pos++
		}
		n, err := p.num()
		if err != nil {
			return Rule{}, err
		}
		f[i] = n
	}
	r := Rule{Month: f[0], Week: f[1], Weekday: f[2], Time: 2 * time.Hour}
	if r.Month < 1 || r.Month > 12 || r.Week < 1 || r.Week > 5 || r.Weekday > 6 {
		return Rule{}, p.errorf("rule out of range")
	}
	if p.peek() == '/' {
		p.pos++
		t, err := p.clock()
		if err != nil {
			return Rule{}, err
		}
		r.Time = t
	}
	return r, nil
}

// Parse parses a TZ string. A DST name without rules gets the US rules POSIX
// implementations default to.
func Parse(s string) (*Zone, error) {
	p := &parser{s: s}
	z := &Zone{}
	var err error
	if z.StdName, err = p.name(); err != nil {
		return nil, err
	}
	off, err := p.clock()
	if err != nil {
		return nil, err
	}
	// POSIX offsets count west of UTC
	z.StdOffset = -int(off / time.Second)
	if p.done() {
		return z, nil
	}
	if z.DSTName, err = p.name(); err != nil {
		return nil, err
	}
	z.DSTOffset = z.StdOffset + 3600
	if c := p.peek(); c == '+' || c == '-' || (c >= '0' && c <= '9') {
		off, err := p.clock()
		if err != nil {
			return nil, err
		}
		z.DSTOffset = -int(off / time.Second)
	}
	z.Start = Rule{Month: 3, Week: 2, Weekday: 0, Time: 2 * time.Hour}
	z.End = Rule{Month: 11, Week: 1, Weekday: 0, Time: 2 * time.Hour}
	if p.done() {
		return z, nil
	}
	for _, r := range []*Rule{&z.Start, &z.End} {
		if p.peek() != ',' {
			return nil, p.errorf("expected ','")
		}
		p.pos++
		if *r, err = p.rule(); err != nil {
			return nil, err
		}
	}
	if !p.done() {
		return nil, p.errorf("trailing characters")
	}
	return z, nil
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// at returns the UTC instant the rule fires in year, given the offset in force just
// before the transition.
func (r Rule) at(year, offset int) time.Time {
	m := time.Month(r.Month)
	first := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC).Weekday()
	day := 1 + (r.Weekday-int(first)+7)%7 + (r.Week-1)*7
	for day > daysIn(m, year) {
		day -= 7
	}
	local := time.Date(year, m, day, 0, 0, 0, 0, time.UTC).Add(r.Time)
	return local.Add(-time.Duration(offset) * time.Second)
}

// IsDST reports whether daylight saving time is in force at t.
func (z *Zone) IsDST(t time.Time) bool {
	if !z.HasDST() {
		return false
	}
	t = t.UTC()
	year := t.Add(time.Duration(z.StdOffset) * time.Second).Year()
	start := z.Start.at(year, z.StdOffset)
	end := z.End.at(year, z.DSTOffset)
	if start.Before(end) {
		return !t.Before(start) && t.Before(end)
	}
	// southern hemisphere: DST spans new year
	return !t.Before(start) || t.Before(end)
}

// Lookup returns the abbreviation and offset in force at t.
func (z *Zone) Lookup(t time.Time) (name string, offset int) {
	if z.IsDST(t) {
		return z.DSTName, z.DSTOffset
	}
	return z.StdName, z.StdOffset
}

// Local converts t to the zone.
func (z *Zone) Local(t time.Time) time.Time {
	name, offset := z.Lookup(t)
	return t.In(time.FixedZone(name, offset))
}
