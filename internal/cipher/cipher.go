// Package cipher implements the symmetric transforms applied to UDP
// payloads: a length-preserving XOR stream and AES-CBC, selected per
// internal/config.CipherAlgorithm.
package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jmeyer977/ethudp/internal/config"
)

// Cipher transforms a cleartext Ethernet frame into a wire payload and
// back. Decrypt returning a zero-length slice (not an error) signals a
// corrupt or forged ciphertext that the caller should silently drop,
// matching the original do_decrypt() contract: a bad frame must not take
// the tunnel down.
type Cipher interface {
	Encrypt(plaintext []byte) []byte
	Decrypt(ciphertext []byte) []byte
}

// pbkdf2Iterations has no security rationale; it only needs to be
// expensive enough to discourage casual brute force of short -k values,
// and is not required to match any other EthUDP deployment's KDF.
const pbkdf2Iterations = 4096

// New builds the configured Cipher from its algorithm name and key
// material. CipherNone returns a passthrough.
func New(algo config.CipherAlgorithm, key string) (Cipher, error) {
	switch algo {
	case config.CipherNone, "":
		return noneCipher{}, nil
	case config.CipherXOR:
		if len(key) == 0 {
			return nil, fmt.Errorf("xor cipher requires a non-empty key")
		}
		return &xorCipher{key: []byte(key)}, nil
	case config.CipherAES128:
		return newAESCBC(key, 16)
	case config.CipherAES192:
		return newAESCBC(key, 24)
	case config.CipherAES256:
		return newAESCBC(key, 32)
	default:
		return nil, fmt.Errorf("unknown cipher algorithm %q", algo)
	}
}

type noneCipher struct{}

func (noneCipher) Encrypt(p []byte) []byte { return p }
func (noneCipher) Decrypt(c []byte) []byte { return c }

// xorCipher repeats key over the plaintext; it is length-preserving and
// symmetric (Encrypt == Decrypt).
type xorCipher struct {
	key []byte
}

func (x *xorCipher) Encrypt(plaintext []byte) []byte { return x.apply(plaintext) }
func (x *xorCipher) Decrypt(ciphertext []byte) []byte { return x.apply(ciphertext) }

func (x *xorCipher) apply(in []byte) []byte {
	out := make([]byte, len(in))
	n := len(x.key)
	for i, b := range in {
		out[i] = b ^ x.key[i%n]
	}
	return out
}

// aesCBCCipher is AES in CBC mode with PKCS#7 padding and a fixed
// all-zero IV. The zero IV is a deliberate compatibility choice (see
// SPEC_FULL.md §10): two independently-started endpoints that share the
// key can decrypt each other's datagrams without exchanging an IV or
// carrying one in the datagram, at the cost of identical
// plaintexts producing identical leading ciphertext blocks. It is not a
// claim of IND-CPA security.
type aesCBCCipher struct {
	block cipher.Block
}

var zeroIV = make([]byte, aes.BlockSize)

func newAESCBC(key string, keyLen int) (*aesCBCCipher, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("aes cipher requires a non-empty key")
	}
	derived := pbkdf2.Key([]byte(key), []byte("ethudp-aes-kdf"), pbkdf2Iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("create aes cipher: %w", err)
	}
	return &aesCBCCipher{block: block}, nil
}

func (a *aesCBCCipher) Encrypt(plaintext []byte) []byte {
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(a.block, zeroIV)
	mode.CryptBlocks(out, padded)
	return out
}

// Decrypt returns nil when ciphertext is malformed (wrong block
// alignment or invalid padding) rather than an error, so the caller can
// treat it the same way as any other unusable datagram.
func (a *aesCBCCipher) Decrypt(ciphertext []byte) []byte {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil
	}
	out := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(a.block, zeroIV)
	mode.CryptBlocks(out, ciphertext)
	unpadded, ok := pkcs7Unpad(out, aes.BlockSize)
	if !ok {
		return nil
	}
	return unpadded
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, false
		}
	}
	return data[:len(data)-padLen], true
}
