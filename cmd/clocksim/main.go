// Command clocksim runs the clock firmware on a PC. The display is printed to stdout, the
// station joins a pretend network after a delay, and time comes from real NTP servers.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/netip"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"tinygo.org/x/tinyfs"
	"tinygo.org/x/tinyfs/littlefs"

	"github.com/ajanata/clock303/internal/config"
	"github.com/ajanata/clock303/internal/display"
	"github.com/ajanata/clock303/internal/led"
	"github.com/ajanata/clock303/internal/ntp"
	"github.com/ajanata/clock303/internal/timekeeping"
	"github.com/ajanata/clock303/internal/wifi"
)

const tick = 20 * time.Millisecond

func main() {
	configPath := flag.String("config", "clocksim.yaml", "seed configuration")
	flag.Parse()

	cfg, err := loadSimConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	clock := clockwork.NewRealClock()

	fs := littlefs.New(tinyfs.NewMemoryDevice(256, 4096, 64))
	fs.Configure(&littlefs.Config{CacheSize: 256, LookaheadSize: 32, BlockCycles: 100})
	if err := fs.Format(); err != nil {
		log.Fatalf("format: %v", err)
	}
	if err := fs.Mount(); err != nil {
		log.Fatalf("mount: %v", err)
	}
	store, err := config.Open(fs, nil)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Wipe {
		if err := store.Reset(); err != nil {
			log.Fatal(err)
		}
	}
	if err := cfg.Clock.Apply(store); err != nil {
		log.Fatal(err)
	}

	bus := &terminal{}
	disp := display.NewTM1650(bus)
	_ = disp.Configure(int(store.Int8(config.TagBrightness, display.DefaultBrightness)))
	_ = disp.ShowWord(display.Boot)
	bus.flush()

	status := led.New(pin{})
	st := &station{clock: clock, after: cfg.JoinAfter}
	mgr := wifi.New(st, store, disp, status, wifi.Options{
		Clock: clock,
		Sleep: func(d time.Duration) {
			bus.flush()
			clock.Sleep(d)
		},
	})
	mgr.Start()
	bus.flush()

	ts := ntp.New(ntp.Options{
		Clock: clock,
		SetClock: func(t time.Time) {
			log.Printf("ntp: host clock is off by %v, leaving it alone", clock.Since(t).Round(time.Millisecond))
		},
	})
	src := timekeeping.NewSource(mgr, store, ts, disp, timekeeping.Options{Clock: clock})
	sched := timekeeping.NewScheduler(src, store, disp, clock)
	for {
		src.Poll()
		sched.Poll()
		bus.flush()
		clock.Sleep(tick)
	}
}

var errTM1650Registers = errors.New("tm1650 has no registers")

// terminal is an I2C bus with a TM1650 on it that prints what the digits show.
type terminal struct {
	digits  [4]uint8
	control uint8
	dirty   bool
}

func (t *terminal) ReadRegister(addr uint8, r uint8, buf []byte) error {
	return errTM1650Registers
}

func (t *terminal) WriteRegister(addr uint8, r uint8, buf []byte) error {
	return errTM1650Registers
}

func (t *terminal) Tx(addr uint16, w, r []byte) error {
	if len(w) != 1 {
		return fmt.Errorf("tm1650 takes one byte, got %d", len(w))
	}
	switch {
	case addr == 0x24:
		t.control = w[0]
	case addr >= 0x34 && addr < 0x38:
		if t.digits[addr-0x34] != w[0] {
			t.digits[addr-0x34] = w[0]
			t.dirty = true
		}
	default:
		return fmt.Errorf("no device at %#x", addr)
	}
	return nil
}

func (t *terminal) flush() {
	if !t.dirty {
		return
	}
	t.dirty = false
	var b strings.Builder
	for i, bits := range t.digits {
		g, _ := display.Decode(bits)
		b.WriteString(g.String())
		if i == 1 {
			if bits&1 != 0 {
				b.WriteByte(':')
			} else {
				b.WriteByte(' ')
			}
		}
	}
	fmt.Printf("\r[%s]", b.String())
}

type pin struct{}

func (pin) High() { fmt.Println("\nled: off") }
func (pin) Low()  { fmt.Println("\nled: on") }

// station pretends to join a network after a delay.
type station struct {
	clock  clockwork.Clock
	after  time.Duration
	joinAt time.Time
	joined bool
}

func (s *station) Join(ssid, password, hostname string) error {
	fmt.Printf("\nwifi: joining %q as %q\n", ssid, hostname)
	s.joined = s.after >= 0
	s.joinAt = s.clock.Now().Add(s.after)
	return nil
}

func (s *station) Connected() bool {
	return s.joined && !s.clock.Now().Before(s.joinAt)
}

func (s *station) Addr() (netip.Addr, error) {
	return netip.AddrFrom4([4]byte{192, 168, 1, 77}), nil
}

func (s *station) StartAP(cfg wifi.APConfig) error {
	fmt.Printf("\nwifi: access point %q on %s (%s), station kept: %v\n", cfg.SSID, cfg.Addr, cfg.Subnet, cfg.KeepStation)
	return nil
}

func (s *station) StopAP() error {
	fmt.Println("\nwifi: access point down")
	return nil
}
