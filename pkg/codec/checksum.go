package codec

// Frame markers and terminators.
const (
	STX byte = 0x02
	ETX byte = 0x03
	ENQ byte = 0x05
	ACK byte = 0x06
	NAK byte = 0x15
	LF  byte = 0x0a
	CR  byte = 0x0d
)

const hexDigits = "0123456789ABCDEF"

// Checksum returns the 8-bit wraparound sum of data.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

func appendHex(dst []byte, b byte) []byte {
	return append(dst, hexDigits[b>>4], hexDigits[b&0x0f])
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
