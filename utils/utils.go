package utils

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"unsafe"
)

type Key string

// B2S converts a byte slice to a string without copying. b must not be mutated afterwards.
func B2S(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

// S2B converts a string to a byte slice without copying. The result must not be mutated.
func S2B(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

func GenerateRandomString(n int) (string, error) {
	ret := make([]byte, n)
	max := big.NewInt(int64(len(letters)))
	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		ret[i] = letters[num.Int64()]
	}
	return B2S(ret), nil
}

// GenerateToken returns n random bytes, hex encoded.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
