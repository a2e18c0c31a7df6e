package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"datatoken/internal/domain"
)

var errDBUnavailable = errors.New("db unavailable")

func addrKey(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
