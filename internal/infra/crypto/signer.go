package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"datatoken/internal/usecase"
)

const signatureLength = 65

var ErrInvalidSignature = errors.New("invalid signature")

// Service recovers signers of personal-sign messages: the message is hashed
// with the "\x19Ethereum Signed Message:\n<len>" prefix and the 65-byte
// signature carries the recovery id in its last byte (0/1 or 27/28).
type Service struct{}

func NewService() *Service {
	return &Service{}
}

func (s *Service) Recover(message, signature string) (string, error) {
	raw := strings.TrimSpace(signature)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}
	sig, err := hexutil.Decode(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != signatureLength {
		return "", fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return "", fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, sig[64])
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub).Hex(), nil
}

// Sign produces a personal-sign signature with a 27/28 recovery id.
func Sign(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func Address(key *ecdsa.PrivateKey) string {
	return ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
}

// IsAddress reports whether s is a 20-byte hex account address.
func IsAddress(s string) bool {
	return common.IsHexAddress(s)
}

var _ usecase.SignatureVerifier = (*Service)(nil)
