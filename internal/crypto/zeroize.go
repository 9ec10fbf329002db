package crypto

import "runtime"

// wipePattern is the multi-pass overwrite applied to key material
// before release. Hygiene against naive memory scanners only; in a
// garbage-collected runtime this is best-effort, not a guarantee.
var wipePattern = [5]byte{0x00, 0xFF, 0x00, 0xAA, 0x00}

// Zero overwrites b with zeros. runtime.KeepAlive stops the compiler
// from eliding the writes as dead stores.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// ZeroAll zeros multiple byte slices.
func ZeroAll(slices ...[]byte) {
	for _, s := range slices {
		Zero(s)
	}
}

// Wipe overwrites b with the 5-pass pattern, ending on zeros.
func Wipe(b []byte) {
	for _, p := range wipePattern {
		for i := range b {
			b[i] = p
		}
	}
	runtime.KeepAlive(b)
}
