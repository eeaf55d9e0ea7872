// Package display drives the four digit TM1650 LED controller on the 303WIFILC01 board.
//
// The TM1650 is not a real I2C device: each digit and the control register answer on their
// own bus address and take a single data byte.
package display

import (
	"fmt"

	"tinygo.org/x/drivers"
)

const (
	controlAddr = 0x24
	digitAddr   = 0x34

	// DefaultBrightness is used when nothing has been stored.
	DefaultBrightness = 7
)

type TM1650 struct {
	bus        drivers.I2C
	brightness uint8
	// digit 1's dp is wired to the colon, so its glyph is kept for SetColon
	digit1 Glyph
	buf    [1]byte
}

func NewTM1650(bus drivers.I2C) *TM1650 {
	return &TM1650{bus: bus, brightness: DefaultBrightness, digit1: Blank}
}

// Configure turns the display on at the given brightness.
func (d *TM1650) Configure(brightness int) error {
	return d.SetBrightness(brightness)
}

// SetBrightness sets the level, 0 (dimmest) to 7. Out of range values wrap.
func (d *TM1650) SetBrightness(brightness int) error {
	d.brightness = uint8(brightness & 7)
	// the controller treats 0 as the brightest of 8 levels
	return d.write(controlAddr, uint8(((brightness+1)&7)<<4|1))
}

func (d *TM1650) Brightness() int {
	return int(d.brightness)
}

func (d *TM1650) setDigit(n int, g Glyph, dp bool) error {
	if n == 1 {
		d.digit1 = g
	}
	b := g.Bitmap()
	if dp {
		b |= dpBit
	}
	if err := d.write(digitAddr+uint16(n), b); err != nil {
		return fmt.Errorf("digit %d: %w", n, err)
	}
	return nil
}

func (d *TM1650) write(addr uint16, b uint8) error {
	d.buf[0] = b
	return d.bus.Tx(addr, d.buf[:], nil)
}

// Show writes all four digits.
func (d *TM1650) Show(g0, g1, g2, g3 Glyph, colon bool) error {
	if err := d.setDigit(0, g0, false); err != nil {
		return err
	}
	if err := d.setDigit(1, g1, colon); err != nil {
		return err
	}
	if err := d.setDigit(2, g2, false); err != nil {
		return err
	}
	return d.setDigit(3, g3, false)
}

// ShowWord writes one of the fixed four glyph words.
func (d *TM1650) ShowWord(w [4]Glyph) error {
	return d.Show(w[0], w[1], w[2], w[3], false)
}

func (d *TM1650) Clear() error {
	return d.Show(Blank, Blank, Blank, Blank, false)
}

// SetColon rewrites digit 1 with the colon on or off.
func (d *TM1650) SetColon(on bool) error {
	return d.setDigit(1, d.digit1, on)
}

// ShowUint8 shows v right aligned with leading blanks, used to flash IP address octets.
func (d *TM1650) ShowUint8(v uint8) error {
	g1, g2 := Blank, Blank
	if v >= 100 {
		g1 = Digit(int(v) / 100)
	}
	if v >= 10 {
		g2 = Digit(int(v) / 10)
	}
	return d.Show(Blank, g1, g2, Digit(int(v)), false)
}
