package config

import (
	"errors"
	"fmt"
)

// Settings is a complete provisioning set. An empty string removes the stored value, so
// the reader's default applies again. NTP server slots are the exception: an empty slot
// is stored empty and skipped when the servers are read.
type Settings struct {
	SSID       string   `yaml:"ssid"`
	Password   string   `yaml:"password"`
	Hostname   string   `yaml:"hostname"`
	NTPServers []string `yaml:"ntp_servers"`
	TZName     string   `yaml:"tz_name"`
	TZOffset   int8     `yaml:"tz_offset"`
	DSTName    string   `yaml:"dst_name"`
	DSTStart   DSTRule  `yaml:"dst_start"`
	DSTEnd     DSTRule  `yaml:"dst_end"`
	Brightness *int8    `yaml:"brightness"`
	TwentyFour bool     `yaml:"twenty_four_hour"`
}

var serverTags = [...]string{TagNTPServer1, TagNTPServer2, TagNTPServer3}

// Validate checks ranges before anything is written.
func (c Settings) Validate() error {
	if len(c.NTPServers) > len(serverTags) {
		return fmt.Errorf("at most %d ntp servers, got %d", len(serverTags), len(c.NTPServers))
	}
	if c.TZOffset < -12 || c.TZOffset > 14 {
		return fmt.Errorf("tz offset %d out of range", c.TZOffset)
	}
	if c.Brightness != nil && (*c.Brightness < 0 || *c.Brightness > 7) {
		return fmt.Errorf("brightness %d out of range", *c.Brightness)
	}
	if c.DSTName != "" {
		for _, r := range []DSTRule{c.DSTStart, c.DSTEnd} {
			if r.Weekday > 6 || r.Week > 4 || r.Month > 11 || r.Hour > 23 {
				return fmt.Errorf("dst rule %+v out of range", r)
			}
		}
	}
	return nil
}

// Apply writes c through the store's setters, so values already stored are not rewritten.
func (c Settings) Apply(s *Store) error {
	if err := c.Validate(); err != nil {
		return err
	}
	var errs []error
	set := func(tag, v string) {
		if v == "" {
			errs = append(errs, s.Remove(tag))
			return
		}
		errs = append(errs, s.SetString(tag, v))
	}
	set(TagSSID, c.SSID)
	set(TagPassword, c.Password)
	set(TagHostname, c.Hostname)
	for i, srv := range c.NTPServers {
		errs = append(errs, s.SetString(serverTags[i], srv))
	}
	set(TagTZName, c.TZName)
	errs = append(errs, s.SetInt8(TagTimezone, c.TZOffset))
	set(TagDSTName, c.DSTName)
	if c.DSTName != "" {
		errs = append(errs, s.SetDSTRule(true, c.DSTStart), s.SetDSTRule(false, c.DSTEnd))
	} else {
		errs = append(errs, s.Remove(TagDSTStart), s.Remove(TagDSTEnd))
	}
	if c.Brightness != nil {
		errs = append(errs, s.SetInt8(TagBrightness, *c.Brightness))
	}
	if c.TwentyFour {
		errs = append(errs, s.SetFlag(Mask24H))
	} else {
		errs = append(errs, s.ClearFlag(Mask24H))
	}
	return errors.Join(errs...)
}
