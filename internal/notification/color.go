package notification

// Pebble colors are one byte, 0b11RRGGBB: two bits per channel, opaque alpha.
const (
	ColorBlack         byte = 0b11000000
	ColorWhite         byte = 0b11111111
	ColorRed           byte = 0b11110000
	ColorOrange        byte = 0b11111000
	ColorChromeYellow  byte = 0b11111100
	ColorInchworm      byte = 0b11101101
	ColorIslamicGreen  byte = 0b11001000
	ColorJaegerGreen   byte = 0b11000100
	ColorPictonBlue    byte = 0b11010111
	ColorVividCerulean byte = 0b11001011
	ColorBlueMoon      byte = 0b11000111
	ColorPurple        byte = 0b11100010
	ColorVividViolet   byte = 0b11100111
	ColorLightGray     byte = 0b11101010
	ColorDarkGray      byte = 0b11010101
	ColorFallback           = ColorRed
)

// PebbleColorFromRGB quantizes an 8-bit-per-channel color onto the Pebble palette.
func PebbleColorFromRGB(r, g, b uint8) byte {
	q := func(c uint8) byte { return byte((uint16(c) + 42) / 85) }
	return 0b11000000 | q(r)<<4 | q(g)<<2 | q(b)
}
