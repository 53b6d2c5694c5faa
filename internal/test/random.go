package test

import (
	rand "math/rand/v2"
)

const nameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789-._"

// RandomWorkerName returns a name of printable, space-free characters with a length in
// [minLen, maxLen]. It always starts with a letter.
func RandomWorkerName(minLen, maxLen int) string {
	if minLen <= 0 {
		minLen = 1
	}
	if maxLen < minLen {
		maxLen = minLen
	}
	buf := make([]byte, minLen+rand.IntN(maxLen-minLen+1))
	buf[0] = nameAlphabet[rand.IntN(26)]
	for i := 1; i < len(buf); i++ {
		buf[i] = nameAlphabet[rand.IntN(len(nameAlphabet))]
	}
	return string(buf)
}
