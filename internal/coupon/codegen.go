package coupon

import (
	"crypto/aes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// 32 characters without the ambiguous 0, O, 1 and I
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const codeBodyLen = 10

// CodeGenerator derives coupon codes from a secret, a campaign and an index.
// Codes are stable for the same inputs and hard to guess without the secret.
type CodeGenerator struct {
	secret []byte
}

// NewCodeGenerator creates a generator keyed by secret
func NewCodeGenerator(secret string) *CodeGenerator {
	return &CodeGenerator{secret: []byte(secret)}
}

// Generate returns prefix followed by a 10 character body
func (g *CodeGenerator) Generate(prefix, campaign string, index uint64) (string, error) {
	block, err := aes.NewCipher(g.campaignKey(campaign))
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	// 128-bit plaintext, low 64 bits hold the index
	var plain [16]byte
	binary.BigEndian.PutUint64(plain[8:], index)

	// one AES block
	var cipher [16]byte
	block.Encrypt(cipher[:], plain[:])

	// 5 bits per character, 10 characters of body
	v := binary.BigEndian.Uint64(cipher[8:])
	body := make([]byte, codeBodyLen)
	for i := codeBodyLen - 1; i >= 0; i-- {
		body[i] = codeAlphabet[v&31]
		v >>= 5
	}

	return prefix + string(body), nil
}

// campaignKey derives a 16 byte AES key per campaign
func (g *CodeGenerator) campaignKey(campaign string) []byte {
	h := sha256.New()
	h.Write(g.secret)
	h.Write([]byte{0})
	h.Write([]byte(campaign))
	return h.Sum(nil)[:16]
}
