// Package wifi gets the clock onto a network, or makes it reachable through its own
// access point so it can always be configured.
package wifi

import (
	"fmt"
	"log"
	"net/netip"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ajanata/clock303/internal/config"
	"github.com/ajanata/clock303/internal/display"
)

const (
	JoinAttempts = 20
	JoinInterval = 500 * time.Millisecond

	FlashBlank = 200 * time.Millisecond
	FlashOctet = 1000 * time.Millisecond

	APSSID = "303Clock"
)

var (
	APAddr   = netip.AddrFrom4([4]byte{192, 168, 200, 1})
	APSubnet = netip.PrefixFrom(netip.AddrFrom4([4]byte{192, 168, 200, 0}), 24)
)

// State is where the manager is in getting a network.
type State uint8

const (
	StateIdle State = iota
	// StateAPOnly: no network is configured, only the access point is up.
	StateAPOnly
	StateConnecting
	StateConnected
	// StateHybrid: the join timed out; the access point is up and the join carries on.
	StateHybrid
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAPOnly:
		return "ap-only"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// APConfig describes the access point.
type APConfig struct {
	SSID    string
	Addr    netip.Addr
	Gateway netip.Addr
	Subnet  netip.Prefix
	// KeepStation leaves a station join running alongside the access point.
	KeepStation bool
}

func (c APConfig) String() string {
	s := fmt.Sprintf("%q at %s gw %s on %s", c.SSID, c.Addr, c.Gateway, c.Subnet)
	if c.KeepStation {
		s += " with station"
	}
	return s
}

// Station is the Wi-Fi radio. A radio that cannot honour every field of APConfig starts
// the closest access point it can and logs the difference.
type Station interface {
	// Join starts joining ssid and returns without waiting. password and hostname may
	// be empty.
	Join(ssid, password, hostname string) error
	Connected() bool
	Addr() (netip.Addr, error)
	StartAP(cfg APConfig) error
	StopAP() error
}

type Display interface {
	ShowWord(w [4]display.Glyph) error
	ShowUint8(v uint8) error
	Clear() error
}

type Indicator interface {
	On()
	Off()
}

type Config interface {
	Has(tag string) bool
	String(tag, def string) string
}

type Options struct {
	Clock  clockwork.Clock
	Logger *log.Logger
	// Sleep blocks during the join and address flash. Defaults to Clock.Sleep.
	Sleep func(time.Duration)
}

// Manager is the clock's connectivity. It is not safe for concurrent use.
type Manager struct {
	station Station
	cfg     Config
	disp    Display
	led     Indicator
	log     *log.Logger
	sleep   func(time.Duration)

	state    State
	apActive bool
}

func New(station Station, cfg Config, disp Display, led Indicator, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stdout, "wifi: ", 0)
	}
	if opts.Sleep == nil {
		opts.Sleep = opts.Clock.Sleep
	}
	return &Manager{
		station: station,
		cfg:     cfg,
		disp:    disp,
		led:     led,
		log:     opts.Logger,
		sleep:   opts.Sleep,
	}
}

func (m *Manager) State() State {
	return m.state
}

// APActive reports whether the access point is up.
func (m *Manager) APActive() bool {
	return m.apActive
}

// Start joins the configured network, blocking for up to JoinAttempts*JoinInterval plus
// the address flash. Without a network, or if the join does not finish in time, the
// access point is started.
func (m *Manager) Start() {
	ssid := m.cfg.String(config.TagSSID, "")
	if !m.cfg.Has(config.TagSSID) || ssid == "" {
		m.log.Print("no network configured, starting access point")
		m.state = StateAPOnly
		m.startAP(false)
		return
	}

	var hostname, password string
	if m.cfg.Has(config.TagHostname) {
		hostname = m.cfg.String(config.TagHostname, "")
	}
	if m.cfg.Has(config.TagPassword) {
		password = m.cfg.String(config.TagPassword, "")
	}

	m.state = StateConnecting
	m.log.Printf("joining %q", ssid)
	if err := m.station.Join(ssid, password, hostname); err != nil {
		m.log.Printf("join %q: %v", ssid, err)
	} else {
		for i := 0; i < JoinAttempts; i++ {
			m.sleep(JoinInterval)
			if m.station.Connected() {
				m.state = StateConnected
				m.flashAddr()
				return
			}
		}
	}

	m.log.Print("join timed out, starting access point alongside station")
	m.state = StateHybrid
	m.startAP(true)
}

func (m *Manager) flashAddr() {
	addr, err := m.station.Addr()
	if err != nil || !addr.Is4() {
		m.log.Printf("connected, no IPv4 address to show: %v", err)
		_ = m.disp.Clear()
		return
	}
	m.log.Printf("connected as %s", addr)
	for _, octet := range addr.As4() {
		_ = m.disp.Clear()
		m.sleep(FlashBlank)
		_ = m.disp.ShowUint8(octet)
		m.sleep(FlashOctet)
	}
	_ = m.disp.Clear()
	m.sleep(FlashBlank)
}

func (m *Manager) startAP(keepStation bool) {
	m.led.On()
	cfg := APConfig{
		SSID:        APSSID,
		Addr:        APAddr,
		Gateway:     APAddr,
		Subnet:      APSubnet,
		KeepStation: keepStation,
	}
	m.log.Printf("starting access point %s", cfg)
	if err := m.station.StartAP(cfg); err != nil {
		m.log.Printf("start access point: %v", err)
	}
	_ = m.disp.ShowWord(display.Configure)
	m.apActive = true
}

// IsConnected reports whether the station is on the network. The first call that finds
// the station joined while the access point is up takes the access point down.
func (m *Manager) IsConnected() bool {
	if !m.apActive {
		return m.station.Connected()
	}
	if !m.station.Connected() {
		return false
	}
	m.log.Print("station joined, disabling access point")
	if err := m.station.StopAP(); err != nil {
		m.log.Printf("stop access point: %v", err)
	}
	m.led.Off()
	m.apActive = false
	m.state = StateConnected
	return true
}
