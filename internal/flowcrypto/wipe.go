package flowcrypto

import "crypto/subtle"

// wipe overwrites b with zeros. ConstantTimeCopy keeps the store from being
// optimised away as a dead write.
func wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}
