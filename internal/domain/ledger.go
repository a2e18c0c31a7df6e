package domain

import (
	"fmt"
	"time"
)

// ResultCode is the outcome a ledger write reports in its receipt.
type ResultCode string

const (
	ResultSuccess       ResultCode = "SUCCESS"
	ResultAlreadyExists ResultCode = "ALREADY_EXISTS"
	ResultNoPermission  ResultCode = "NO_PERMISSION"
	ResultNotFound      ResultCode = "NOT_FOUND"
)

// Err maps a non-success code onto the matching sentinel. ALREADY_EXISTS is
// reported as ErrAlreadyExists; callers decide whether that is fatal.
func (c ResultCode) Err() error {
	switch c {
	case ResultSuccess:
		return nil
	case ResultAlreadyExists:
		return ErrAlreadyExists
	case ResultNoPermission:
		return ErrNoPermission
	case ResultNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("unknown ledger result code %q", string(c))
	}
}

// TokenRecord is the on-ledger registration of a document.
type TokenRecord struct {
	DT        string    `json:"dt"`
	Owner     string    `json:"owner"`
	Issuer    string    `json:"issuer"`
	Checksum  string    `json:"checksum"`
	Locator   string    `json:"locator"`
	IsLeaf    bool      `json:"is_leaf"`
	Activated bool      `json:"activated"`
	CreatedAt time.Time `json:"created_at"`
}

// TemplateRecord is the on-ledger registration of an operation template.
type TemplateRecord struct {
	TID       string    `json:"tid"`
	Name      string    `json:"name"`
	Publisher string    `json:"publisher"`
	Checksum  string    `json:"checksum"`
	Locator   string    `json:"locator"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Enterprise struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Task struct {
	ID          int64  `json:"task_id"`
	Demander    string `json:"demander"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Job records an Algorithm cdt submitted to solve a task.
type Job struct {
	ID     int64  `json:"job_id"`
	Solver string `json:"solver"`
	TaskID int64  `json:"task_id"`
	CDT    string `json:"cdt"`
}

type LedgerStats struct {
	Tokens    int64 `json:"tokens"`
	Templates int64 `json:"templates"`
	Tasks     int64 `json:"tasks"`
	Jobs      int64 `json:"jobs"`
}
