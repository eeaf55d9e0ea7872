//go:build matrixportal_m4

package main

import (
	"image/color"
	"machine"
	"net/netip"
	"runtime"
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers/netdev"
	"tinygo.org/x/drivers/netlink"
	"tinygo.org/x/drivers/netlink/probe"
	"tinygo.org/x/drivers/ws2812"
	"tinygo.org/x/tinyfs/littlefs"

	"github.com/ajanata/clock303/internal/config"
	"github.com/ajanata/clock303/internal/display"
	"github.com/ajanata/clock303/internal/led"
	"github.com/ajanata/clock303/internal/ntp"
	"github.com/ajanata/clock303/internal/timekeeping"
	"github.com/ajanata/clock303/internal/wifi"
)

// how long the access point stays up between station attempts in hybrid mode
const apHold = time.Minute

func main() {
	time.Sleep(time.Second)
	blink()

	// turn off the NeoPixel
	machine.NEOPIXEL.Configure(machine.PinConfig{Mode: machine.PinOutput})
	np := ws2812.New(machine.NEOPIXEL)
	_ = np.WriteColors([]color.RGBA{{}})

	err := machine.I2C0.Configure(machine.I2CConfig{
		SCL:       machine.I2C0_SCL_PIN,
		SDA:       machine.I2C0_SDA_PIN,
		Frequency: 100 * machine.KHz,
	})
	if err != nil {
		earlyPanic(err)
	}
	blink()

	fs := littlefs.New(machine.Flash)
	fs.Configure(&littlefs.Config{
		CacheSize:     512,
		LookaheadSize: 512,
		BlockCycles:   100,
	})
	if err := fs.Mount(); err != nil {
		println("config: mount failed, formatting:", err.Error())
		if err := fs.Format(); err != nil {
			earlyPanic(err)
		}
		if err := fs.Mount(); err != nil {
			earlyPanic(err)
		}
	}
	store, err := config.Open(fs, nil)
	if err != nil {
		earlyPanic(err)
	}
	if err := provision(store); err != nil {
		println("config: provision:", err.Error())
	}

	disp := display.NewTM1650(machine.I2C0)
	if err := disp.Configure(int(store.Int8(config.TagBrightness, display.DefaultBrightness))); err != nil {
		earlyPanic(err)
	}
	_ = disp.ShowWord(display.Boot)
	blink()

	status := led.New(machine.LED)

	link, dev := probe.Probe()
	st := newStation(link, dev)
	mgr := wifi.New(st, store, disp, status, wifi.Options{})
	mgr.Start()

	ts := ntp.New(ntp.Options{
		SetClock: func(t time.Time) {
			runtime.AdjustTimeOffset(-1 * int64(time.Since(t)))
		},
	})
	src := timekeeping.NewSource(mgr, store, ts, disp, timekeeping.Options{})
	sched := timekeeping.NewScheduler(src, store, disp, nil)
	run(src, sched)
}

// station drives the NINA-W102. Its firmware runs either a station or an access point,
// never both, so in hybrid mode the access point is held for apHold and then dropped
// for one station attempt.
type station struct {
	link netlink.Netlinker
	dev  netdev.Netdever

	sta      *netlink.ConnectParams
	ap       *netlink.ConnectParams
	apWanted atomic.Bool
	up       atomic.Bool
}

func newStation(link netlink.Netlinker, dev netdev.Netdever) *station {
	s := &station{link: link, dev: dev}
	link.NetNotify(func(e netlink.Event) {
		if e == netlink.EventNetDown {
			s.up.Store(false)
		}
	})
	return s
}

func (s *station) Join(ssid, password, hostname string) error {
	if hostname != "" {
		println("wifi: NINA firmware cannot set a hostname, ignoring", hostname)
	}
	auth := netlink.AuthTypeWPA2
	if password == "" {
		auth = netlink.AuthTypeOpen
	}
	s.sta = &netlink.ConnectParams{
		ConnectMode:    netlink.ConnectModeSTA,
		Ssid:           ssid,
		Passphrase:     password,
		AuthType:       auth,
		ConnectTimeout: wifi.JoinAttempts * wifi.JoinInterval,
		Retries:        1,
	}
	go s.loop()
	return nil
}

func (s *station) loop() {
	for {
		if s.up.Load() {
			time.Sleep(time.Second)
			continue
		}
		if s.apWanted.Load() {
			println("wifi: dropping access point for a station attempt")
			s.link.NetDisconnect()
		}
		if err := s.link.NetConnect(s.sta); err == nil {
			s.up.Store(true)
			continue
		}
		if s.apWanted.Load() {
			s.raiseAP()
			time.Sleep(apHold)
		}
	}
}

func (s *station) raiseAP() {
	if err := s.link.NetConnect(s.ap); err != nil {
		println("wifi: access point:", err.Error())
	}
}

func (s *station) Connected() bool {
	return s.up.Load()
}

func (s *station) Addr() (netip.Addr, error) {
	return s.dev.Addr()
}

// StartAP brings the access point up. NINA picks its own AP subnet, so cfg's addresses
// are not applied.
func (s *station) StartAP(cfg wifi.APConfig) error {
	s.ap = &netlink.ConnectParams{
		ConnectMode: netlink.ConnectModeAP,
		Ssid:        cfg.SSID,
		AuthType:    netlink.AuthTypeOpen,
	}
	println("wifi: NINA firmware picks its own access point subnet, not", cfg.String())
	if cfg.KeepStation && s.sta != nil {
		println("wifi: NINA cannot run station and access point together, alternating every", apHold.String())
		// the station loop raises it once its current attempt fails
		s.apWanted.Store(true)
		return nil
	}
	return s.link.NetConnect(s.ap)
}

func (s *station) StopAP() error {
	s.apWanted.Store(false)
	return nil
}
