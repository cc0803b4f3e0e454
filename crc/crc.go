// Package crc implements CRC-8 variants used by device firmware.
package crc

// CRC_POLY_31 is Dallas/Maxim 1-Wire polynomial x^8+x^5+x^4+1,
// processed MSB-first without reflection, as the controller firmware does.
const CRC_POLY_31 byte = 0x31

func CRC8_p31(crc, data byte) byte {
	crc ^= data
	var i byte = 0
	for ; i < 8; i++ {
		if (crc & 0x80) != 0 {
			crc <<= 1
			crc ^= CRC_POLY_31
		} else {
			crc <<= 1
		}
	}
	return crc
}

// CRC8_p31_n continues crc over all bytes of b.
// Start with crc=0 for a fresh checksum.
func CRC8_p31_n(crc byte, b []byte) byte {
	for _, x := range b {
		crc = CRC8_p31(crc, x)
	}
	return crc
}
