package cipher

import (
	"bytes"
	"testing"

	"github.com/jmeyer977/ethudp/internal/config"
)

func TestNoneCipherPassthrough(t *testing.T) {
	c, err := New(config.CipherNone, "")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	plaintext := []byte("frame data")
	if !bytes.Equal(c.Encrypt(plaintext), plaintext) {
		t.Error("none cipher must not modify plaintext")
	}
	if !bytes.Equal(c.Decrypt(plaintext), plaintext) {
		t.Error("none cipher must not modify ciphertext")
	}
}

func TestXORRoundTrip(t *testing.T) {
	c, err := New(config.CipherXOR, "s3cr3t")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	plaintext := []byte("this is an ethernet frame payload of arbitrary length")

	ciphertext := c.Encrypt(plaintext)
	if len(ciphertext) != len(plaintext) {
		t.Fatalf("xor cipher must preserve length, got %d want %d", len(ciphertext), len(plaintext))
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Error("ciphertext should not equal plaintext")
	}

	decrypted := c.Decrypt(ciphertext)
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("round trip mismatch: got %q want %q", decrypted, plaintext)
	}
}

func TestXORRequiresKey(t *testing.T) {
	if _, err := New(config.CipherXOR, ""); err == nil {
		t.Error("expected error for empty xor key")
	}
}

func TestAESCBCRoundTrip(t *testing.T) {
	for _, algo := range []config.CipherAlgorithm{config.CipherAES128, config.CipherAES192, config.CipherAES256} {
		c, err := New(algo, "correct-horse-battery-staple")
		if err != nil {
			t.Fatalf("New(%s) failed: %v", algo, err)
		}

		for _, plaintext := range [][]byte{
			[]byte(""),
			[]byte("a"),
			[]byte("exactly16bytes!!"),
			[]byte("this is a much longer ethernet frame payload than one AES block"),
		} {
			ciphertext := c.Encrypt(plaintext)
			if len(ciphertext)%16 != 0 {
				t.Fatalf("%s: ciphertext not block aligned: %d bytes", algo, len(ciphertext))
			}
			decrypted := c.Decrypt(ciphertext)
			if !bytes.Equal(decrypted, plaintext) {
				t.Errorf("%s round trip mismatch: got %q want %q", algo, decrypted, plaintext)
			}
		}
	}
}

func TestAESCBCDeterministicIV(t *testing.T) {
	c, err := New(config.CipherAES128, "key")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	plaintext := []byte("identical plaintext block")
	first := c.Encrypt(plaintext)
	second := c.Encrypt(plaintext)
	if !bytes.Equal(first, second) {
		t.Error("fixed zero IV must make repeated encryption of identical plaintext deterministic")
	}
}

func TestAESCBCDecryptMalformedReturnsEmpty(t *testing.T) {
	c, err := New(config.CipherAES128, "key")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if got := c.Decrypt([]byte("not block aligned")); got != nil {
		t.Errorf("expected nil for misaligned ciphertext, got %v", got)
	}
	if got := c.Decrypt(bytes.Repeat([]byte{0xff}, 32)); got != nil {
		t.Errorf("expected nil for ciphertext with invalid padding, got %v", got)
	}
}

func TestAESCBCRequiresKey(t *testing.T) {
	if _, err := New(config.CipherAES256, ""); err == nil {
		t.Error("expected error for empty aes key")
	}
}
