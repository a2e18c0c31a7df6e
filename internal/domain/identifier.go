package domain

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// DTScheme is the leading segment of every document identifier.
	DTScheme = "dt"
	// DTMethod is the only method this registry issues.
	DTMethod = "ownership"
	// DTPrefix is the canonical prefix documents and templates must carry.
	DTPrefix = DTScheme + ":" + DTMethod + ":"

	zeroID = "0"
)

var (
	dtPattern     = regexp.MustCompile(`^dt:([a-z0-9]+):([a-zA-Z0-9-.]+)(.*)$`)
	bareHexString = regexp.MustCompile(`^[0x]?[0-9A-Za-z]+$`)
)

// DT is a parsed document identifier.
type DT struct {
	Method string
	ID     string
}

func (d DT) String() string {
	return DTScheme + ":" + d.Method + ":" + d.ID
}

// ParseDT splits a dt string into method and id.
func ParseDT(dt string) (DT, error) {
	match := dtPattern.FindStringSubmatch(dt)
	if match == nil {
		return DT{}, fmt.Errorf("%w: %q", ErrParse, dt)
	}
	return DT{Method: match[1], ID: match[2]}, nil
}

// NewDT issues a fresh identifier backed by 32 random bytes.
func NewDT() string {
	return DTPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// HasDTPrefix reports whether s carries the canonical identifier prefix.
func HasDTPrefix(s string) bool {
	return strings.HasPrefix(s, DTPrefix)
}

// IDToDT renders a hex id (with or without 0x) as an ownership dt. An empty
// id renders as the zero sentinel.
func IDToDT(id string) string {
	id = strip0x(id)
	if id == "" {
		id = zeroID
	}
	return DTPrefix + id
}

// IDBytesToDT is IDToDT for the raw-byte form.
func IDBytesToDT(id []byte) string {
	return IDToDT(hex.EncodeToString(id))
}

// DTToID extracts the id segment of dt.
func DTToID(dt string) (string, error) {
	parsed, err := ParseDT(dt)
	if err != nil {
		return "", err
	}
	return parsed.ID, nil
}

// DTToIDBytes converts dt into its raw-byte id. A bare hex string is rejected:
// callers must pass a dt.
func DTToIDBytes(dt string) ([]byte, error) {
	if bareHexString.MatchString(dt) {
		return nil, fmt.Errorf("%w: %q must be a dt not a hex string", ErrParse, dt)
	}
	parsed, err := ParseDT(dt)
	if err != nil {
		return nil, err
	}
	id := strip0x(parsed.ID)
	if len(id)%2 == 1 {
		id = "0" + id
	}
	out, err := hex.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a valid ownership dt", ErrParse, dt)
	}
	return out, nil
}

func strip0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
