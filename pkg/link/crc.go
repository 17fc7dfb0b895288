package link

// crc8 is CRC-8 with polynomial 0x07 (x^8 + x^2 + x + 1).
var crc8Table = func() (t [256]byte) {
	for n := 0; n < 256; n++ {
		c := byte(n)
		for i := 0; i < 8; i++ {
			if c&0x80 != 0 {
				c = c<<1 ^ 0x07
			} else {
				c <<= 1
			}
		}
		t[n] = c
	}
	return
}()

// Checksum computes the frame checksum over the given bytes.
func Checksum(p ...[]byte) byte {
	var c byte
	for _, b := range p {
		for _, v := range b {
			c = crc8Table[c^v]
		}
	}
	return c
}
