package packet

// crc16Init is the CRC register seed. An empty input therefore yields 0xFFFF.
const crc16Init = 0xFFFF

// crc16Poly is the CRC-16/CCITT generator polynomial.
const crc16Poly = 0x1021

// CRC16 computes the CRC-16/CCITT checksum used by every navlink frame:
// initial register 0xFFFF, polynomial 0x1021, no reflection, no final XOR.
// Both link endpoints must agree on this exact variant.
func CRC16(data []byte) uint16 {
	crc := uint16(crc16Init)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
