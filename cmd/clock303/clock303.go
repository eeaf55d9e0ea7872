//go:build tinygo

package main

import (
	"machine"
	"time"

	"github.com/ajanata/clock303/internal/config"
	"github.com/ajanata/clock303/internal/timekeeping"
)

const tick = 20 * time.Millisecond

var (
	// TODO better way to set these. for now, create a config.go and set them in an init()
	wifiSSID     string
	wifiPassword string
	hostname     string
	ntpServers   []string
	tzName       string
	tzOffset     int8
)

// provision writes the build-time settings, if any. Unchanged values are not rewritten.
func provision(store *config.Store) error {
	if wifiSSID == "" {
		return nil
	}
	s := config.Settings{
		SSID:       wifiSSID,
		Password:   wifiPassword,
		Hostname:   hostname,
		NTPServers: ntpServers,
		TZName:     tzName,
		TZOffset:   tzOffset,
		TwentyFour: store.FlagSet(config.Mask24H),
	}
	return s.Apply(store)
}

func run(src *timekeeping.Source, sched *timekeeping.Scheduler) {
	for {
		src.Poll()
		sched.Poll()
		time.Sleep(tick)
	}
}

func blink() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	led.High()
	time.Sleep(100 * time.Millisecond)
	led.Low()
	time.Sleep(100 * time.Millisecond)
}

func earlyPanic(err error) {
	for i := 0; ; i++ {
		blink()
		if i%5 == 0 {
			println(err.Error())
		}
	}
}
