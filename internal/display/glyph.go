package display

// Glyph indexes the segment bitmap table. Glyphs 0 to 9 are the decimal digits.
type Glyph uint8

const (
	Blank Glyph = iota + 10
	C
	LowerO
	LowerN
	F
	LowerB
	LowerT
	P
	S
	LowerY
)

// bit order is b f a e d c g dp:
//
//	 aaa
//	f   b
//	f   b
//	 ggg
//	e   c
//	e   c
//	 ddd  dp
var bitmaps = [...]uint8{
	0b11111100, // 0
	0b10000100, // 1
	0b10111010, // 2
	0b10101110, // 3
	0b11000110, // 4
	0b01101110, // 5
	0b01111110, // 6
	0b10100100, // 7
	0b11111110, // 8
	0b11101110, // 9
	0b00000000, // blank
	0b01111000, // C
	0b00011110, // o
	0b00010110, // n
	0b01110010, // F
	0b01011110, // b
	0b01011010, // t
	0b11110010, // P
	0b01101110, // S
	0b11001110, // y
}

const dpBit = 0b00000001

// Digit returns the glyph for the lowest decimal digit of v.
func Digit(v int) Glyph {
	if v < 0 {
		v = -v
	}
	return Glyph(v % 10)
}

// Bitmap returns the segment bitmap for g, blank for anything out of range.
func (g Glyph) Bitmap() uint8 {
	if int(g) >= len(bitmaps) {
		return 0
	}
	return bitmaps[g]
}

var runes = [...]rune{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', ' ', 'C', 'o', 'n', 'F', 'b', 't', 'P', 'S', 'y'}

func (g Glyph) String() string {
	if int(g) >= len(runes) {
		return "?"
	}
	return string(runes[g])
}

// Decode maps a segment bitmap back to a glyph, ignoring the dp bit. 5 and S share
// a bitmap; the digit wins.
func Decode(bitmap uint8) (Glyph, bool) {
	bitmap &^= dpBit
	for i, b := range bitmaps {
		if b == bitmap {
			return Glyph(i), true
		}
	}
	return Blank, false
}

// Words shown while the clock is not yet telling the time.
var (
	Boot      = [4]Glyph{LowerB, LowerO, LowerO, LowerT}
	Configure = [4]Glyph{C, LowerO, LowerN, F}
	Sync      = [4]Glyph{S, LowerY, LowerN, C}
)
