package onewire

// CRC8 computes the Dallas/Maxim 1-Wire CRC-8 (polynomial x^8+x^5+x^4+1,
// reflected) used to validate DS2438 scratchpad pages (spec.md §4.2,
// §8). No third-party library in the retrieved corpus packages this
// specific reflected-polynomial variant — amken3d-gopper's CRC16
// (protocol/crc16.go) is hand-rolled the same way for its own protocol,
// which is the idiom followed here.
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8C
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// CRC8Valid reports whether data (payload plus trailing CRC-8 byte) is
// self-consistent: running CRC8 over the whole slice must equal 0
// (spec.md §8: "crc8_check(B ++ [crc8(B)]) = 0").
func CRC8Valid(dataWithCRC []byte) bool {
	return CRC8(dataWithCRC) == 0
}

// CRC16 computes the Dallas/Maxim 1-Wire CRC-16 (polynomial
// x^16+x^15+x^2+1, reflected) used by DS2408 channel-access reads
// (spec.md §4.2, §8).
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// CRC16ValidInverted reports whether the DS2408's inverted CRC-16
// trailer is consistent with data: the device returns crc16(data)
// bit-inverted, so XORing the received value with a freshly computed
// CRC-16 over data must yield 0xFFFF (spec.md §8).
func CRC16ValidInverted(data []byte, receivedInvertedCRC uint16) bool {
	return CRC16(data)^receivedInvertedCRC == 0xFFFF
}

// InvertedCRC16 computes the CRC-16 a DS2408 would report for data: the
// plain CRC-16, bit-inverted.
func InvertedCRC16(data []byte) uint16 {
	return ^CRC16(data)
}
