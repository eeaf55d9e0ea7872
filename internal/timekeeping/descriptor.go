package timekeeping

import (
	"strconv"
	"strings"

	"github.com/ajanata/clock303/internal/config"
)

// UnknownZone names the standard time when no timezone name is stored.
const UnknownZone = "UNK"

// Descriptor is the timezone as stored in the configuration.
type Descriptor struct {
	Name     string
	Offset   int8
	DSTName  string
	DSTStart config.DSTRule
	DSTEnd   config.DSTRule
}

type Config interface {
	Has(tag string) bool
	String(tag, def string) string
	Int8(tag string, def int8) int8
	DSTRule(start bool) config.DSTRule
	FlagSet(mask int8) bool
}

// LoadDescriptor reads the timezone from cfg.
func LoadDescriptor(cfg Config) Descriptor {
	d := Descriptor{
		Name:   UnknownZone,
		Offset: cfg.Int8(config.TagTimezone, 0),
	}
	if cfg.Has(config.TagTZName) {
		d.Name = cfg.String(config.TagTZName, "")
	}
	if cfg.Has(config.TagDSTName) {
		d.DSTName = cfg.String(config.TagDSTName, "")
	}
	if d.DSTName != "" {
		d.DSTStart = cfg.DSTRule(true)
		d.DSTEnd = cfg.DSTRule(false)
	}
	return d
}

// String renders the descriptor as a TZ string, e.g. "GMT0BST,M3.5.0/1,M10.1.0/2".
//
// The stored offset keeps its own sign: +1 is written "+1", which POSIX reads as one
// hour west of UTC. Existing clocks are configured against that reading.
func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteString(d.Name)
	off := int(d.Offset)
	if off < 0 {
		b.WriteByte('-')
		off = -off
	} else if off > 0 {
		b.WriteByte('+')
	}
	b.WriteString(strconv.Itoa(off))
	if d.DSTName != "" {
		b.WriteString(d.DSTName)
		writeRule(&b, d.DSTStart)
		writeRule(&b, d.DSTEnd)
	}
	return b.String()
}

func writeRule(b *strings.Builder, r config.DSTRule) {
	b.WriteString(",M")
	b.WriteString(strconv.Itoa(int(r.Month) + 1))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(int(r.Week) + 1))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(int(r.Weekday)))
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(int(r.Hour)))
}
