package model

// Highlight is a hybrid code/bitmask. The low three bits hold one of the
// eight base terminal colors; the remaining bits are style flags.
type Highlight uint8

// Base colors.
const (
	ColorBlack Highlight = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
)

// Style flags.
const (
	ModeBold      Highlight = 1 << 3
	ModeDim       Highlight = 1 << 4
	ModeUnderline Highlight = 1 << 5
	ModeReverse   Highlight = 1 << 6
	ModeStandout  Highlight = 1 << 7
)

const colorMask Highlight = 7

// Color returns the color bits.
func (h Highlight) Color() Highlight {
	return h & colorMask
}

// WithColor replaces the color bits and keeps the flags.
func (h Highlight) WithColor(c Highlight) Highlight {
	return (h &^ colorMask) | (c & colorMask)
}

// Has reports whether every bit of flag is set.
func (h Highlight) Has(flag Highlight) bool {
	return h&flag == flag
}
