package crypto

import (
	"errors"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestSignAndRecover(t *testing.T) {
	key, err := ParsePrivateKey(testKeyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	message := Address(key) + "dt:" + strings.Repeat("ab", 32)
	sig, err := Sign(key, message)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := NewService().Recover(message, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got != Address(key) {
		t.Fatalf("expected %s, got %s", Address(key), got)
	}

	// 0/1 recovery ids and a missing 0x prefix are accepted.
	raw := strings.TrimPrefix(sig, "0x")
	last := raw[len(raw)-2:]
	lowered := raw[:len(raw)-2] + map[string]string{"1b": "00", "1c": "01"}[last]
	got, err = NewService().Recover(message, lowered)
	if err != nil {
		t.Fatalf("recover low v: %v", err)
	}
	if got != Address(key) {
		t.Fatalf("expected %s for low v, got %s", Address(key), got)
	}
}

func TestRecoverDifferentMessage(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sig, err := Sign(key, "signed message")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := NewService().Recover("another message", sig)
	if err == nil && got == Address(key) {
		t.Fatal("recovered signer for a different message")
	}
}

func TestRecoverRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not hex": "0xzz",
		"short":   "0x" + strings.Repeat("00", 64),
		"bad v":   "0x" + strings.Repeat("11", 64) + "05",
		"empty":   "",
	}
	for name, sig := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewService().Recover("message", sig)
			if !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestIsAddress(t *testing.T) {
	key, err := ParsePrivateKey(testKeyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	if !IsAddress(Address(key)) {
		t.Fatal("expected derived address to be valid")
	}
	if IsAddress("0x1234") {
		t.Fatal("expected short address to be rejected")
	}
}
