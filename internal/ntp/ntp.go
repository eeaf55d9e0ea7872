// Package ntp keeps the system clock set from SNTP servers and knows the local timezone.
//
// based on https://github.com/tinygo-org/drivers/blob/release/examples/net/ntpclient/main.go
package ntp

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ajanata/clock303/internal/tz"
)

const (
	packetSize = 48
	port       = "123"

	// seconds between the NTP epoch (1900) and the Unix epoch
	seventyYears = 2208988800

	DefaultTimeout = 2 * time.Second
	DefaultResync  = time.Hour
	DefaultRetry   = 15 * time.Second
)

var (
	ErrBadReply  = errors.New("ntp: bad reply")
	ErrNoServers = errors.New("ntp: no servers")
)

// Options for New. Zero values get defaults.
type Options struct {
	// SetClock moves the system clock to t. On TinyGo boards this is
	// runtime.AdjustTimeOffset.
	SetClock func(t time.Time)
	Dial     func(network, address string) (net.Conn, error)
	Clock    clockwork.Clock
	Logger   *log.Logger
	Timeout  time.Duration
	Resync   time.Duration
	Retry    time.Duration
}

// Service runs SNTP in the background once configured.
type Service struct {
	opts Options

	mu         sync.Mutex
	zone       *tz.Zone
	servers    []string
	configured bool
	callbacks  []func()

	buf [packetSize]byte
}

func New(opts Options) *Service {
	if opts.SetClock == nil {
		opts.SetClock = func(time.Time) {}
	}
	if opts.Dial == nil {
		opts.Dial = net.Dial
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stdout, "ntp: ", 0)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Resync <= 0 {
		opts.Resync = DefaultResync
	}
	if opts.Retry <= 0 {
		opts.Retry = DefaultRetry
	}
	return &Service{opts: opts, zone: tz.UTC}
}

// OnClockSet registers f to run every time the clock is set from a server. Callbacks run
// on the service's goroutine.
func (s *Service) OnClockSet(f func()) {
	s.mu.Lock()
	s.callbacks = append(s.callbacks, f)
	s.mu.Unlock()
}

// Configure sets the timezone and starts syncing against servers. Only the first call
// does anything. An unparseable timezone is logged and UTC is used.
func (s *Service) Configure(tzString string, servers ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured {
		return nil
	}
	zone, err := tz.Parse(tzString)
	if err != nil {
		s.opts.Logger.Printf("timezone %q: %v, using UTC", tzString, err)
		zone = tz.UTC
	}
	s.zone = zone
	for _, srv := range servers {
		if srv != "" {
			s.servers = append(s.servers, srv)
		}
	}
	if len(s.servers) == 0 {
		return ErrNoServers
	}
	s.configured = true
	go s.run()
	return nil
}

// Local converts t to the configured timezone.
func (s *Service) Local(t time.Time) time.Time {
	s.mu.Lock()
	z := s.zone
	s.mu.Unlock()
	return z.Local(t)
}

func (s *Service) run() {
	for {
		wait := s.opts.Resync
		if err := s.Sync(); err != nil {
			s.opts.Logger.Print(err)
			wait = s.opts.Retry
		}
		s.opts.Clock.Sleep(wait)
	}
}

// Sync tries each server in turn and sets the clock from the first good reply.
func (s *Service) Sync() error {
	s.mu.Lock()
	servers := s.servers
	s.mu.Unlock()
	if len(servers) == 0 {
		return ErrNoServers
	}

	var errs []error
	for _, srv := range servers {
		t, err := s.query(srv)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", srv, err))
			continue
		}
		s.opts.SetClock(t)
		s.opts.Logger.Printf("clock set from %s: %s", srv, t.UTC().Format(time.RFC3339))
		s.mu.Lock()
		cbs := s.callbacks
		s.mu.Unlock()
		for _, cb := range cbs {
			cb()
		}
		return nil
	}
	return errors.Join(errs...)
}

func (s *Service) query(host string) (time.Time, error) {
	conn, err := s.opts.Dial("udp", net.JoinHostPort(host, port))
	if err != nil {
		return time.Time{}, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(s.opts.Timeout))

	sent := s.opts.Clock.Now()
	if err := s.sendRequest(conn); err != nil {
		return time.Time{}, err
	}
	n, err := conn.Read(s.buf[:])
	if err != nil && err != io.EOF {
		return time.Time{}, err
	}
	rtt := s.opts.Clock.Since(sent)
	if n != packetSize {
		return time.Time{}, fmt.Errorf("%w: expected packet size of %d: %d", ErrBadReply, packetSize, n)
	}
	t, err := parseReply(s.buf[:])
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(rtt / 2), nil
}

func (s *Service) sendRequest(conn net.Conn) error {
	for i := range s.buf {
		s.buf[i] = 0
	}
	s.buf[0] = 0b11100011 // LI unsynchronized, version 4, mode 3 (client)
	_, err := conn.Write(s.buf[:])
	return err
}

func parseReply(r []byte) (time.Time, error) {
	if mode := r[0] & 7; mode != 4 {
		return time.Time{}, fmt.Errorf("%w: mode %d", ErrBadReply, mode)
	}
	if r[1] == 0 {
		// kiss-o'-death, the code is in the reference id
		return time.Time{}, fmt.Errorf("%w: kiss code %q", ErrBadReply, r[12:16])
	}
	// the transmit timestamp starts at byte 40 and is NTP time (seconds since Jan 1 1900)
	// followed by a 32 bit fraction
	secs := uint32(r[40])<<24 | uint32(r[41])<<16 | uint32(r[42])<<8 | uint32(r[43])
	frac := uint32(r[44])<<24 | uint32(r[45])<<16 | uint32(r[46])<<8 | uint32(r[47])
	if secs == 0 {
		return time.Time{}, fmt.Errorf("%w: no transmit time", ErrBadReply)
	}
	nsec := (int64(frac) * 1e9) >> 32
	// era 0 ends in 2036; NTP seconds below the Unix epoch belong to era 1
	unix := int64(secs) - seventyYears
	if secs < seventyYears {
		unix += 1 << 32
	}
	return time.Unix(unix, nsec), nil
}
