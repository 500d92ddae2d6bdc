package crypto

// Zero overwrites a byte slice in memory with zeros. Used to wipe key
// material before a buffer is released.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
