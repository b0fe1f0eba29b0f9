package translator

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// idAlphabet is the base58 character set, which skips 0, O, I and l so IDs
// survive being read aloud or retyped.
const idAlphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// newID builds a completion ID: the dialect prefix plus 128 bits of
// base58-encoded randomness. If crypto/rand fails the ID degrades to a
// timestamp suffix, which is unique enough for a response envelope.
func newID(prefix string) string {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano())
	}
	return prefix + encodeBase58(raw)
}

func encodeBase58(input []byte) string {
	num := new(big.Int).SetBytes(input)
	if num.Sign() == 0 {
		return string(idAlphabet[0])
	}

	var out []byte
	base := big.NewInt(58)
	rem := new(big.Int)
	for num.Sign() > 0 {
		num.DivMod(num, base, rem)
		out = append(out, idAlphabet[rem.Int64()])
	}

	// Leading zero bytes map to leading '1's.
	for _, b := range input {
		if b != 0 {
			break
		}
		out = append(out, idAlphabet[0])
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
