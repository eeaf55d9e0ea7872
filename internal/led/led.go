// Package led drives the status LED on the back of the clock.
package led

// Pin is satisfied by machine.Pin.
type Pin interface {
	High()
	Low()
}

// Indicator is an active-low LED.
type Indicator struct {
	pin Pin
	on  bool
}

// New returns an Indicator that starts off.
func New(pin Pin) *Indicator {
	i := &Indicator{pin: pin}
	i.Off()
	return i
}

func (i *Indicator) On() {
	i.pin.Low()
	i.on = true
}

func (i *Indicator) Off() {
	i.pin.High()
	i.on = false
}

func (i *Indicator) IsOn() bool {
	return i.on
}
