package fluxled

import (
	"errors"
	"fmt"
)

// Protocol selects the wire format spoken by the controller.
type Protocol uint8

const (
	// ProtocolLEDENET is the current protocol with checksummed frames.
	ProtocolLEDENET Protocol = iota

	// ProtocolLEDENETOriginal is the legacy protocol spoken by
	// first-generation controllers. Frames carry no checksum.
	ProtocolLEDENETOriginal
)

// String returns the protocol name.
func (p Protocol) String() string {
	switch p {
	case ProtocolLEDENET:
		return "LEDENET"
	case ProtocolLEDENETOriginal:
		return "LEDENET_ORIGINAL"
	default:
		return "UNKNOWN"
	}
}

// Protocol errors.
var (
	ErrShortStateReply = errors.New("state reply too short")
	ErrBadStateReply   = errors.New("malformed state reply")
)

// stateReplyLen is the size of a state query reply.
const stateReplyLen = 14

// Power bytes in commands and state replies.
const (
	powerOn  = 0x23
	powerOff = 0x24
)

// checksum returns the modulo-256 sum of the frame bytes.
func checksum(frame []byte) byte {
	var sum byte
	for _, b := range frame {
		sum += b
	}
	return sum
}

// withChecksum appends the checksum to the frame.
func withChecksum(frame []byte) []byte {
	return append(frame, checksum(frame))
}

// powerFrame builds the power on/off command.
func powerFrame(p Protocol, on bool) []byte {
	b := byte(powerOff)
	if on {
		b = powerOn
	}
	if p == ProtocolLEDENETOriginal {
		return []byte{0xCC, b, 0x33}
	}
	return withChecksum([]byte{0x71, b, 0x0F})
}

// colorFrame builds the RGBW write command. The legacy protocol has no
// white channel; w is ignored there.
func colorFrame(p Protocol, r, g, b, w byte) []byte {
	if p == ProtocolLEDENETOriginal {
		return []byte{0x56, r, g, b, 0xAA}
	}
	return withChecksum([]byte{0x31, r, g, b, w, 0x00, 0x0F})
}

// presetFrame builds the built-in effect command. speedPct is 0-100,
// higher is faster.
func presetFrame(code byte, speedPct int) []byte {
	return withChecksum([]byte{0x61, code, speedToDelay(speedPct), 0x0F})
}

// Custom pattern transition modes.
const (
	TransitionGradual = 0x3A
	TransitionJump    = 0x3B
	TransitionStrobe  = 0x3C
)

// maxCustomColors is the number of color slots in a custom pattern frame.
const maxCustomColors = 16

// Color is an RGB triplet.
type Color struct {
	R, G, B byte
}

// customFrame builds the custom pattern command. Unused color slots are
// filled with the 0x01,0x02,0x03 terminator the firmware expects.
func customFrame(colors []Color, speedPct int, transition byte) ([]byte, error) {
	if len(colors) == 0 {
		return nil, errors.New("custom pattern needs at least one color")
	}
	if len(colors) > maxCustomColors {
		return nil, fmt.Errorf("custom pattern supports at most %d colors, got %d", maxCustomColors, len(colors))
	}
	switch transition {
	case TransitionGradual, TransitionJump, TransitionStrobe:
	default:
		return nil, fmt.Errorf("unknown transition 0x%02X", transition)
	}

	frame := []byte{0x51}
	for i := 0; i < maxCustomColors; i++ {
		if i < len(colors) {
			c := colors[i]
			frame = append(frame, c.R, c.G, c.B, 0x00)
		} else {
			frame = append(frame, 0x01, 0x02, 0x03, 0x00)
		}
	}
	frame = append(frame, speedToDelay(speedPct), transition, 0xFF, 0x0F)
	return withChecksum(frame), nil
}

// stateQueryFrame builds the state query command.
func stateQueryFrame(p Protocol) []byte {
	if p == ProtocolLEDENETOriginal {
		return []byte{0xEF, 0x01, 0x77}
	}
	return withChecksum([]byte{0x81, 0x8A, 0x8B})
}

// speedToDelay converts an effect speed percentage (0-100, higher is
// faster) into the 1-31 delay byte the controller expects (lower is
// faster).
func speedToDelay(speedPct int) byte {
	if speedPct < 0 {
		speedPct = 0
	}
	if speedPct > 100 {
		speedPct = 100
	}
	delay := 31 - (speedPct*30)/100
	if delay < 1 {
		delay = 1
	}
	return byte(delay)
}

// State is a decoded state query reply.
type State struct {
	// DeviceType is the raw device type byte.
	DeviceType byte

	// On reports whether the output is powered.
	On bool

	// Mode is the raw mode byte: a preset effect code, CustomEffectCode,
	// or a static color mode.
	Mode byte

	// Speed is the raw effect delay byte.
	Speed byte

	// R, G, B, W are the current channel levels.
	R, G, B, W byte

	// RGBW reports whether the controller has a white channel.
	RGBW bool
}

// parseState decodes a state query reply.
func parseState(reply []byte) (State, error) {
	if len(reply) < stateReplyLen {
		return State{}, fmt.Errorf("%w: %d bytes", ErrShortStateReply, len(reply))
	}
	if reply[0] != 0x81 {
		return State{}, fmt.Errorf("%w: leading byte 0x%02X", ErrBadStateReply, reply[0])
	}

	s := State{
		DeviceType: reply[1],
		On:         reply[2] == powerOn,
		Mode:       reply[3],
		Speed:      reply[5],
		R:          reply[6],
		G:          reply[7],
		B:          reply[8],
		W:          reply[9],
	}
	// Device type 0x04 is the RGBW controller family.
	s.RGBW = s.DeviceType == 0x04
	return s, nil
}
