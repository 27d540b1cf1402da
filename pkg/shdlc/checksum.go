package shdlc

// Checksum computes the SHDLC checksum: the one's complement of the
// byte sum of data, truncated to 8 bits.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum
}

// VerifyChecksum recomputes the checksum over data and compares it
// with the claimed value.
func VerifyChecksum(data []byte, claimed byte) bool {
	return Checksum(data) == claimed
}
