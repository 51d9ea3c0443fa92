package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CommandLength is the serialized size of a Command.
const CommandLength = 3

// ErrInvalidCommand is returned by ParseCommand for malformed input.
var ErrInvalidCommand = errors.New("invalid colour command")

// Command is a colour for the bulb.
type Command struct {
	R, G, B uint8
}

// Bytes serializes the command as R, G, B.
func (c Command) Bytes() []byte {
	return []byte{c.R, c.G, c.B}
}

// String returns the colour as #rrggbb.
func (c Command) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseCommand parses a colour in one of these forms:
//
//	#ff0080   ff0080   255,0,128   255 0 128
func ParseCommand(s string) (Command, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Command{}, fmt.Errorf("%w: empty", ErrInvalidCommand)
	}

	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) == 3 {
		var ch [3]uint8
		for i, f := range fields {
			n, err := strconv.ParseUint(f, 10, 8)
			if err != nil {
				return Command{}, fmt.Errorf("%w: channel %q: %v", ErrInvalidCommand, f, err)
			}
			ch[i] = uint8(n)
		}
		return Command{R: ch[0], G: ch[1], B: ch[2]}, nil
	}

	hex := strings.TrimPrefix(s, "#")
	if len(fields) != 1 || len(hex) != 6 {
		return Command{}, fmt.Errorf("%w: %q (use #rrggbb or r,g,b)", ErrInvalidCommand, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %q: %v", ErrInvalidCommand, s, err)
	}
	return Command{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}
