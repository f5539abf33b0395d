package impl

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"

	"golang.org/x/crypto/argon2"
)

type argonParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// codeDigester issues numeric codes and stores only a salted argon2id
// digest. Codes are low-entropy by nature, so the KDF cost is what
// keeps an exfiltrated digest from being brute-forced offline.
type codeDigester struct {
	params argonParams
}

func newCodeDigester() *codeDigester {
	return &codeDigester{
		params: argonParams{
			Time:    1,
			Memory:  64 * 1024, // 64 MiB
			Threads: 1,
			KeyLen:  32,
			SaltLen: 16,
		},
	}
}

// Generate produces a cryptographically random numeric code of the
// given length, zero-padded.
func (d *codeDigester) Generate(length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

func (d *codeDigester) Digest(code string) (digest, salt []byte, err error) {
	salt = make([]byte, d.params.SaltLen)
	if _, err = rand.Read(salt); err != nil {
		return nil, nil, err
	}
	digest = argon2.IDKey([]byte(code), salt, d.params.Time, d.params.Memory, d.params.Threads, d.params.KeyLen)
	return digest, salt, nil
}

// Verify recomputes the digest and compares in constant time.
func (d *codeDigester) Verify(code string, salt, want []byte) bool {
	got := argon2.IDKey([]byte(code), salt, d.params.Time, d.params.Memory, d.params.Threads, d.params.KeyLen)
	return subtle.ConstantTimeCompare(got, want) == 1
}
