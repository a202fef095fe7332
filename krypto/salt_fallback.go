package krypto

import (
	"math/rand"
	"time"
)

// fallbackSalt fills buf with a best-effort PRNG when the CSPRNG is
// unavailable. Only ever used for salts, which are public values; nonces
// and keys must never take this path (spec §4.1).
func fallbackSalt(buf []byte) []byte {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := range buf {
		buf[i] = byte(src.Intn(256))
	}
	return buf
}
