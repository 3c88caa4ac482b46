package miio

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// Packet framing constants.
const (
	magic     = 0x2131
	headerLen = 32
)

// Packet errors.
var (
	ErrBadToken    = errors.New("miio: token must be 32 hex characters")
	ErrShortPacket = errors.New("miio: packet shorter than header")
	ErrBadMagic    = errors.New("miio: bad magic")
	ErrBadChecksum = errors.New("miio: checksum mismatch")
	ErrBadPadding  = errors.New("miio: bad padding")
	ErrLengthField = errors.New("miio: length field mismatch")
)

// Token is the 16-byte device token printed on (or extracted from) the
// device. It keys all payload encryption.
type Token [16]byte

// ParseToken parses the 32-character hex form of a token.
func ParseToken(s string) (Token, error) {
	var t Token
	if len(s) != 32 {
		return t, ErrBadToken
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return t, fmt.Errorf("%w: %w", ErrBadToken, err)
	}
	copy(t[:], raw)
	return t, nil
}

// String returns the hex form of the token.
func (t Token) String() string {
	return hex.EncodeToString(t[:])
}

// key derives the AES key: md5(token).
func (t Token) key() []byte {
	sum := md5.Sum(t[:])
	return sum[:]
}

// iv derives the AES IV: md5(key + token).
func (t Token) iv() []byte {
	key := t.key()
	sum := md5.Sum(append(key, t[:]...))
	return sum[:]
}

// encrypt applies AES-128-CBC with PKCS#7 padding.
func (t Token) encrypt(plain []byte) []byte {
	block, _ := aes.NewCipher(t.key())
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, t.iv()).CryptBlocks(out, padded)
	return out
}

// decrypt reverses encrypt.
func (t Token) decrypt(enc []byte) ([]byte, error) {
	if len(enc) == 0 || len(enc)%aes.BlockSize != 0 {
		return nil, ErrBadPadding
	}
	block, _ := aes.NewCipher(t.key())
	out := make([]byte, len(enc))
	cipher.NewCBCDecrypter(block, t.iv()).CryptBlocks(out, enc)

	pad := int(out[len(out)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(out) {
		return nil, ErrBadPadding
	}
	for _, b := range out[len(out)-pad:] {
		if int(b) != pad {
			return nil, ErrBadPadding
		}
	}
	return out[:len(out)-pad], nil
}

// packet is a decoded miio frame.
type packet struct {
	DeviceID uint32
	Stamp    uint32
	Payload  []byte // decrypted; nil for hello replies
	Checksum [16]byte
}

// helloPacket builds the handshake probe: a bare header with every field
// except the magic and length set to 0xFF.
func helloPacket() []byte {
	p := make([]byte, headerLen)
	binary.BigEndian.PutUint16(p[0:2], magic)
	binary.BigEndian.PutUint16(p[2:4], headerLen)
	for i := 4; i < headerLen; i++ {
		p[i] = 0xFF
	}
	return p
}

// buildPacket encrypts payload and assembles a full frame. The checksum is
// md5 over the header (with the checksum field holding the token) and the
// ciphertext.
func buildPacket(token Token, deviceID, stamp uint32, payload []byte) []byte {
	enc := token.encrypt(payload)
	total := headerLen + len(enc)

	p := make([]byte, total)
	binary.BigEndian.PutUint16(p[0:2], magic)
	binary.BigEndian.PutUint16(p[2:4], uint16(total))
	// bytes 4:8 are reserved, zero
	binary.BigEndian.PutUint32(p[8:12], deviceID)
	binary.BigEndian.PutUint32(p[12:16], stamp)
	copy(p[16:32], token[:])
	copy(p[32:], enc)

	sum := md5.Sum(p)
	copy(p[16:32], sum[:])
	return p
}

// parsePacket validates and decodes a frame. Hello replies (no payload)
// skip checksum validation: the checksum field carries device data there.
func parsePacket(token Token, data []byte) (packet, error) {
	if len(data) < headerLen {
		return packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(data))
	}
	if binary.BigEndian.Uint16(data[0:2]) != magic {
		return packet{}, ErrBadMagic
	}
	total := int(binary.BigEndian.Uint16(data[2:4]))
	if total != len(data) {
		return packet{}, fmt.Errorf("%w: header says %d, got %d", ErrLengthField, total, len(data))
	}

	p := packet{
		DeviceID: binary.BigEndian.Uint32(data[8:12]),
		Stamp:    binary.BigEndian.Uint32(data[12:16]),
	}
	copy(p.Checksum[:], data[16:32])

	if total == headerLen {
		return p, nil
	}

	// Verify the digest before trusting the ciphertext.
	check := make([]byte, total)
	copy(check, data)
	copy(check[16:32], token[:])
	sum := md5.Sum(check)
	if !bytes.Equal(sum[:], p.Checksum[:]) {
		return packet{}, ErrBadChecksum
	}

	payload, err := token.decrypt(data[headerLen:])
	if err != nil {
		return packet{}, err
	}
	p.Payload = payload
	return p, nil
}
