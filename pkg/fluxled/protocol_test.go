package fluxled

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPowerFrames(t *testing.T) {
	assert.Equal(t, []byte{0x71, 0x23, 0x0F, 0xA3}, powerFrame(ProtocolLEDENET, true))
	assert.Equal(t, []byte{0x71, 0x24, 0x0F, 0xA4}, powerFrame(ProtocolLEDENET, false))

	// Legacy frames carry no checksum.
	assert.Equal(t, []byte{0xCC, 0x23, 0x33}, powerFrame(ProtocolLEDENETOriginal, true))
	assert.Equal(t, []byte{0xCC, 0x24, 0x33}, powerFrame(ProtocolLEDENETOriginal, false))
}

func TestColorFrame(t *testing.T) {
	frame := colorFrame(ProtocolLEDENET, 0xFF, 0x80, 0x00, 0x10)
	require.Len(t, frame, 8)
	assert.Equal(t, byte(0x31), frame[0])
	assert.Equal(t, []byte{0xFF, 0x80, 0x00, 0x10}, frame[1:5])
	assert.Equal(t, checksum(frame[:7]), frame[7])

	legacy := colorFrame(ProtocolLEDENETOriginal, 1, 2, 3, 99)
	assert.Equal(t, []byte{0x56, 1, 2, 3, 0xAA}, legacy)
}

func TestPresetFrame(t *testing.T) {
	frame := presetFrame(0x25, 50)
	require.Len(t, frame, 5)
	assert.Equal(t, byte(0x61), frame[0])
	assert.Equal(t, byte(0x25), frame[1])
	assert.Equal(t, speedToDelay(50), frame[2])
}

func TestSpeedToDelay(t *testing.T) {
	tests := []struct {
		speed int
		want  byte
	}{
		{0, 31},
		{100, 1},
		{50, 16},
		{-10, 31}, // clamped
		{200, 1},  // clamped
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, speedToDelay(tt.speed), "speed %d", tt.speed)
	}
}

func TestCustomFrame(t *testing.T) {
	frame, err := customFrame([]Color{{255, 0, 0}, {0, 0, 255}}, 80, TransitionJump)
	require.NoError(t, err)

	// 1 opcode + 16*4 colors + delay + transition + 0xFF + 0x0F + checksum
	require.Len(t, frame, 1+16*4+4+1)
	assert.Equal(t, byte(0x51), frame[0])
	assert.Equal(t, []byte{255, 0, 0, 0}, frame[1:5])
	assert.Equal(t, []byte{0, 0, 255, 0}, frame[5:9])
	// Unused slots carry the terminator triplet.
	assert.Equal(t, []byte{1, 2, 3, 0}, frame[9:13])
	assert.Equal(t, byte(TransitionJump), frame[len(frame)-4])
}

func TestCustomFrameValidation(t *testing.T) {
	_, err := customFrame(nil, 50, TransitionGradual)
	assert.Error(t, err)

	colors := make([]Color, maxCustomColors+1)
	_, err = customFrame(colors, 50, TransitionGradual)
	assert.Error(t, err)

	_, err = customFrame([]Color{{1, 2, 3}}, 50, 0x99)
	assert.Error(t, err)
}

func TestParseState(t *testing.T) {
	reply := []byte{0x81, 0x04, 0x23, 0x25, 0x00, 0x10, 0xFF, 0x00, 0x80, 0x40, 0, 0, 0, 0}
	s, err := parseState(reply)
	require.NoError(t, err)

	assert.True(t, s.On)
	assert.True(t, s.RGBW)
	assert.Equal(t, byte(0x25), s.Mode)
	assert.Equal(t, byte(0xFF), s.R)
	assert.Equal(t, byte(0x00), s.G)
	assert.Equal(t, byte(0x80), s.B)
	assert.Equal(t, byte(0x40), s.W)
}

func TestParseStateErrors(t *testing.T) {
	_, err := parseState([]byte{0x81, 0x04})
	assert.ErrorIs(t, err, ErrShortStateReply)

	bad := make([]byte, stateReplyLen)
	bad[0] = 0x66
	_, err = parseState(bad)
	assert.ErrorIs(t, err, ErrBadStateReply)
}

func TestEffectTables(t *testing.T) {
	code, ok := EffectCode(EffectColorloop)
	require.True(t, ok)
	assert.Equal(t, byte(0x25), code)

	name, ok := EffectName(0x38)
	require.True(t, ok)
	assert.Equal(t, EffectColorjump, name)

	name, ok = EffectName(CustomEffectCode)
	require.True(t, ok)
	assert.Equal(t, EffectCustom, name)

	_, ok = EffectCode("disco_inferno")
	assert.False(t, ok)

	effects := Effects()
	assert.Equal(t, EffectRandom, effects[len(effects)-1])
	assert.Contains(t, effects, EffectColorloop)
}

func TestParseDiscoveryReply(t *testing.T) {
	bulb, ok := parseDiscoveryReply("192.168.1.40,ACCF235FFFFF,HF-LPB100-ZJ200")
	require.True(t, ok)
	assert.Equal(t, "192.168.1.40", bulb.IP)
	assert.Equal(t, "ACCF235FFFFF", bulb.ID)
	assert.Equal(t, "ACCF235FFFFF 192.168.1.40", bulb.Name())

	// The probe echo is not a device reply.
	_, ok = parseDiscoveryReply("HF-A11ASSISTHREAD")
	assert.False(t, ok)

	_, ok = parseDiscoveryReply("not,an-ip,model")
	assert.False(t, ok)
}
