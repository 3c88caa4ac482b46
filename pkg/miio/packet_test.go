package miio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTokenHex = "00112233445566778899aabbccddeeff"

func TestParseToken(t *testing.T) {
	token, err := ParseToken(testTokenHex)
	require.NoError(t, err)
	assert.Equal(t, testTokenHex, token.String())

	_, err = ParseToken("too short")
	assert.ErrorIs(t, err, ErrBadToken)

	_, err = ParseToken("zz112233445566778899aabbccddeeff")
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	token, err := ParseToken(testTokenHex)
	require.NoError(t, err)

	for _, plain := range []string{"", "x", `{"id":1,"method":"get_prop"}`} {
		enc := token.encrypt([]byte(plain))
		assert.Zero(t, len(enc)%16)

		dec, err := token.decrypt(enc)
		require.NoError(t, err)
		assert.Equal(t, plain, string(dec))
	}
}

func TestDecryptRejectsBadInput(t *testing.T) {
	token, err := ParseToken(testTokenHex)
	require.NoError(t, err)

	_, err = token.decrypt(nil)
	assert.ErrorIs(t, err, ErrBadPadding)

	_, err = token.decrypt([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrBadPadding)

	enc := token.encrypt([]byte("hello"))
	enc[len(enc)-1] ^= 0xFF
	_, err = token.decrypt(enc)
	assert.ErrorIs(t, err, ErrBadPadding)
}

func TestPacketRoundtrip(t *testing.T) {
	token, err := ParseToken(testTokenHex)
	require.NoError(t, err)

	payload := []byte(`{"id":7,"method":"set_power","params":["on"]}`)
	frame := buildPacket(token, 0x11223344, 12345, payload)

	p, err := parsePacket(token, frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x11223344), p.DeviceID)
	assert.Equal(t, uint32(12345), p.Stamp)
	assert.Equal(t, payload, p.Payload)
}

func TestParseHelloReply(t *testing.T) {
	reply := make([]byte, headerLen)
	binary.BigEndian.PutUint16(reply[0:2], magic)
	binary.BigEndian.PutUint16(reply[2:4], headerLen)
	binary.BigEndian.PutUint32(reply[8:12], 42)
	binary.BigEndian.PutUint32(reply[12:16], 999)

	token, err := ParseToken(testTokenHex)
	require.NoError(t, err)

	p, err := parsePacket(token, reply)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), p.DeviceID)
	assert.Equal(t, uint32(999), p.Stamp)
	assert.Nil(t, p.Payload)
}

func TestParsePacketErrors(t *testing.T) {
	token, err := ParseToken(testTokenHex)
	require.NoError(t, err)

	_, err = parsePacket(token, []byte{0x21, 0x31})
	assert.ErrorIs(t, err, ErrShortPacket)

	frame := buildPacket(token, 1, 1, []byte(`{}`))

	bad := append([]byte{}, frame...)
	bad[0] = 0x00
	_, err = parsePacket(token, bad)
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = parsePacket(token, frame[:len(frame)-1])
	assert.ErrorIs(t, err, ErrLengthField)

	bad = append([]byte{}, frame...)
	bad[headerLen] ^= 0xFF
	_, err = parsePacket(token, bad)
	assert.ErrorIs(t, err, ErrBadChecksum)
}
