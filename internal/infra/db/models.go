package db

import "time"

type TokenModel struct {
	DT        string    `gorm:"column:dt;primaryKey"`
	Owner     string    `gorm:"not null"`
	OwnerKey  string    `gorm:"index;not null"`
	Issuer    string    `gorm:"not null"`
	Checksum  string    `gorm:"not null"`
	Locator   string    `gorm:"not null"`
	IsLeaf    bool      `gorm:"not null"`
	Activated bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null"`
}

func (TokenModel) TableName() string { return "tokens" }

// GrantModel records that Grantee may use DT.
type GrantModel struct {
	DT        string    `gorm:"column:dt;primaryKey"`
	Grantee   string    `gorm:"primaryKey;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (GrantModel) TableName() string { return "token_grants" }

type TemplateModel struct {
	TID          string    `gorm:"column:tid;primaryKey"`
	Name         string    `gorm:"index;not null"`
	Publisher    string    `gorm:"not null"`
	PublisherKey string    `gorm:"not null"`
	Checksum     string    `gorm:"not null"`
	Locator      string    `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (TemplateModel) TableName() string { return "op_templates" }

type EnterpriseModel struct {
	AddressKey  string `gorm:"primaryKey"`
	Address     string `gorm:"not null"`
	Name        string `gorm:"not null"`
	Description string
	UpdatedAt   time.Time `gorm:"not null"`
}

func (EnterpriseModel) TableName() string { return "enterprises" }

type TaskModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Demander    string `gorm:"index;not null"`
	Name        string `gorm:"not null"`
	Description string
	CreatedAt   time.Time `gorm:"not null"`
}

func (TaskModel) TableName() string { return "tasks" }

type JobModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Solver    string    `gorm:"not null"`
	TaskID    int64     `gorm:"index;not null"`
	CDT       string    `gorm:"column:cdt;index;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (JobModel) TableName() string { return "jobs" }

// DocumentModel holds serialized documents keyed by content locator.
type DocumentModel struct {
	Locator   string    `gorm:"primaryKey"`
	Body      []byte    `gorm:"type:bytea;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (DocumentModel) TableName() string { return "documents" }

func allModels() []any {
	return []any{
		&TokenModel{},
		&GrantModel{},
		&TemplateModel{},
		&EnterpriseModel{},
		&TaskModel{},
		&JobModel{},
		&DocumentModel{},
	}
}
