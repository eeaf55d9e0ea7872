// Package config is the clock's persistent key-value store. Every value lives in its own
// file under Dir on a tinyfs filesystem, so a torn write only ever loses one setting.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"tinygo.org/x/tinyfs"
)

const Dir = "/cfg"

// Stored tags.
const (
	TagSSID       = "SSID"
	TagPassword   = "PW"
	TagHostname   = "HOST"
	TagNTPServer1 = "NTP1"
	TagNTPServer2 = "NTP2"
	TagNTPServer3 = "NTP3"
	TagFlags      = "CFG"
	TagBrightness = "BRI"
	TagTimezone   = "TZ"
	TagDSTStart   = "DSTS"
	TagDSTEnd     = "DSTE"
	TagTZName     = "TZNAM"
	TagDSTName    = "DSTNAM"
)

// Tags lists every tag the store knows about, in the order Reset clears them.
var Tags = []string{
	TagSSID, TagPassword, TagHostname,
	TagNTPServer1, TagNTPServer2, TagNTPServer3,
	TagFlags, TagBrightness,
	TagTimezone, TagDSTStart, TagDSTEnd, TagTZName, TagDSTName,
}

// Bits of the TagFlags byte.
const (
	Mask24H = 1 << iota
)

// DSTRule is one daylight saving transition: the Week'th Weekday of Month at Hour.
// Weekday 0 is Sunday, Week and Month are zero based and Week 4 means the last one.
type DSTRule struct {
	Weekday uint8 `yaml:"weekday"`
	Week    uint8 `yaml:"week"`
	Month   uint8 `yaml:"month"`
	Hour    uint8 `yaml:"hour"`
}

func (r DSTRule) bytes() []byte {
	return []byte{r.Weekday, r.Week, r.Month, r.Hour}
}

type Store struct {
	fs    tinyfs.Filesystem
	flags int8
	log   *log.Logger
}

// Open prepares the store on an already mounted filesystem.
func Open(fs tinyfs.Filesystem, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "config: ", 0)
	}
	s := &Store{fs: fs, log: logger}
	if _, err := fs.Stat(Dir); err != nil {
		if err := fs.Mkdir(Dir, 0o777); err != nil {
			return nil, fmt.Errorf("create %s: %w", Dir, err)
		}
	}
	s.flags = s.Int8(TagFlags, 0)
	return s, nil
}

func path(tag string) string {
	return Dir + "/" + tag
}

func (s *Store) read(tag string) ([]byte, error) {
	f, err := s.fs.Open(path(tag))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Store) write(tag string, b []byte) error {
	f, err := s.fs.OpenFile(path(tag), os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("open %s: %w", tag, err)
	}
	// littlefs cannot take an empty write; the open already made the empty key
	if len(b) > 0 {
		if _, err := f.Write(b); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", tag, err)
		}
	}
	return f.Close()
}

// Has reports whether tag has been stored.
func (s *Store) Has(tag string) bool {
	_, err := s.fs.Stat(path(tag))
	return err == nil
}

func (s *Store) String(tag, def string) string {
	b, err := s.read(tag)
	if err != nil {
		return def
	}
	return string(b)
}

func (s *Store) Int8(tag string, def int8) int8 {
	b, err := s.read(tag)
	if err != nil || len(b) != 1 {
		return def
	}
	return int8(b[0])
}

// DSTRule returns the start or end transition, zero if none is stored.
func (s *Store) DSTRule(start bool) DSTRule {
	tag := TagDSTEnd
	if start {
		tag = TagDSTStart
	}
	b, err := s.read(tag)
	if err != nil || len(b) != 4 {
		return DSTRule{}
	}
	return DSTRule{Weekday: b[0], Week: b[1], Month: b[2], Hour: b[3]}
}

// SetString stores value unless it is already stored. Flash has limited write cycles.
func (s *Store) SetString(tag, value string) error {
	if s.Has(tag) && s.String(tag, "") == value {
		return nil
	}
	s.log.Printf("setting %q to %q", tag, value)
	return s.write(tag, []byte(value))
}

func (s *Store) SetInt8(tag string, value int8) error {
	if b, err := s.read(tag); err == nil && len(b) == 1 && int8(b[0]) == value {
		return nil
	}
	s.log.Printf("setting %q to %d", tag, value)
	return s.write(tag, []byte{byte(value)})
}

func (s *Store) SetDSTRule(start bool, r DSTRule) error {
	tag := TagDSTEnd
	if start {
		tag = TagDSTStart
	}
	if s.Has(tag) && s.DSTRule(start) == r {
		return nil
	}
	s.log.Printf("setting %s transition to %+v", tag, r)
	return s.write(tag, r.bytes())
}

// Remove deletes tag. Removing a tag that is not stored is not an error.
func (s *Store) Remove(tag string) error {
	if !s.Has(tag) {
		return nil
	}
	s.log.Printf("removing %q", tag)
	if err := s.fs.Remove(path(tag)); err != nil {
		return fmt.Errorf("remove %s: %w", tag, err)
	}
	return nil
}

// Reset removes every stored value.
func (s *Store) Reset() error {
	s.log.Print("resetting config")
	var errs []error
	for _, tag := range Tags {
		errs = append(errs, s.Remove(tag))
	}
	s.flags = 0
	return errors.Join(errs...)
}

// FlagSet reports whether any bit of mask is set in the flags byte.
func (s *Store) FlagSet(mask int8) bool {
	return s.flags&mask != 0
}

func (s *Store) SetFlag(mask int8) error {
	s.flags |= mask
	return s.SetInt8(TagFlags, s.flags)
}

func (s *Store) ClearFlag(mask int8) error {
	s.flags &^= mask
	return s.SetInt8(TagFlags, s.flags)
}
