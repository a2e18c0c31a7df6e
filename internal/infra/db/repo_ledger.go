package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"datatoken/internal/domain"
	"datatoken/internal/usecase"
)

// LedgerRepository is the postgres-backed ledger. Writes that check and
// mutate run in one transaction with the affected token row locked.
type LedgerRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db, now: time.Now}
}

func tokenFromModel(m TokenModel) domain.TokenRecord {
	return domain.TokenRecord{
		DT:        m.DT,
		Owner:     m.Owner,
		Issuer:    m.Issuer,
		Checksum:  m.Checksum,
		Locator:   m.Locator,
		IsLeaf:    m.IsLeaf,
		Activated: m.Activated,
		CreatedAt: m.CreatedAt,
	}
}

func (r *LedgerRepository) GetToken(ctx context.Context, dt string) (*domain.TokenRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model TokenModel
	if err := r.db.WithContext(ctx).First(&model, "dt = ?", dt).Error; err != nil {
		return nil, notFound(err)
	}
	record := tokenFromModel(model)
	return &record, nil
}

func (r *LedgerRepository) ListTokens(ctx context.Context) ([]domain.TokenRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []TokenModel
	if err := r.db.WithContext(ctx).Order("dt ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.TokenRecord, 0, len(models))
	for _, m := range models {
		out = append(out, tokenFromModel(m))
	}
	return out, nil
}

func (r *LedgerRepository) HasPermission(ctx context.Context, dt, grantee string) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&GrantModel{}).
		Where("dt = ? AND grantee = ?", dt, grantee).
		Count(&count).Error
	return count > 0, err
}

func (r *LedgerRepository) Grantees(ctx context.Context, dt string) ([]string, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var out []string
	err := r.db.WithContext(ctx).Model(&GrantModel{}).
		Where("dt = ?", dt).
		Order("grantee ASC").
		Pluck("grantee", &out).Error
	return out, err
}

func (r *LedgerRepository) ChildrenLinked(ctx context.Context, cdt string, children []string) (bool, error) {
	record, err := r.GetToken(ctx, cdt)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !record.Activated {
		return false, nil
	}
	return r.allGranted(r.db.WithContext(ctx), cdt, children)
}

func (r *LedgerRepository) allGranted(tx *gorm.DB, cdt string, children []string) (bool, error) {
	if len(children) == 0 {
		return true, nil
	}
	var count int64
	err := tx.Model(&GrantModel{}).
		Where("grantee = ? AND dt IN ?", cdt, children).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == int64(len(uniqueStrings(children))), nil
}

func (r *LedgerRepository) GetTemplate(ctx context.Context, tid string) (*domain.TemplateRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model TemplateModel
	if err := r.db.WithContext(ctx).First(&model, "tid = ?", tid).Error; err != nil {
		return nil, notFound(err)
	}
	return &domain.TemplateRecord{
		TID:       model.TID,
		Name:      model.Name,
		Publisher: model.Publisher,
		Checksum:  model.Checksum,
		Locator:   model.Locator,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

func (r *LedgerRepository) GetEnterprise(ctx context.Context, address string) (*domain.Enterprise, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model EnterpriseModel
	if err := r.db.WithContext(ctx).First(&model, "address_key = ?", addrKey(address)).Error; err != nil {
		return nil, notFound(err)
	}
	return &domain.Enterprise{Address: model.Address, Name: model.Name, Description: model.Description}, nil
}

func (r *LedgerRepository) GetTask(ctx context.Context, taskID int64) (*domain.Task, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model TaskModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", taskID).Error; err != nil {
		return nil, notFound(err)
	}
	return &domain.Task{ID: model.ID, Demander: model.Demander, Name: model.Name, Description: model.Description}, nil
}

func (r *LedgerRepository) GetJob(ctx context.Context, jobID int64) (*domain.Job, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model JobModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", jobID).Error; err != nil {
		return nil, notFound(err)
	}
	return &domain.Job{ID: model.ID, Solver: model.Solver, TaskID: model.TaskID, CDT: model.CDT}, nil
}

func (r *LedgerRepository) JobsByCDT(ctx context.Context, cdt string) ([]domain.Job, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []JobModel
	if err := r.db.WithContext(ctx).Where("cdt = ?", cdt).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Job, 0, len(models))
	for _, m := range models {
		out = append(out, domain.Job{ID: m.ID, Solver: m.Solver, TaskID: m.TaskID, CDT: m.CDT})
	}
	return out, nil
}

func (r *LedgerRepository) Stats(ctx context.Context) (domain.LedgerStats, error) {
	if r.db == nil {
		return domain.LedgerStats{}, errDBUnavailable
	}
	var stats domain.LedgerStats
	db := r.db.WithContext(ctx)
	counts := []struct {
		model any
		dst   *int64
	}{
		{&TokenModel{}, &stats.Tokens},
		{&TemplateModel{}, &stats.Templates},
		{&TaskModel{}, &stats.Tasks},
		{&JobModel{}, &stats.Jobs},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dst).Error; err != nil {
			return domain.LedgerStats{}, err
		}
	}
	return stats, nil
}

func (r *LedgerRepository) MintToken(ctx context.Context, issuer string, record domain.TokenRecord) (domain.ResultCode, error) {
	if r.db == nil {
		return "", errDBUnavailable
	}
	var code domain.ResultCode
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var issuers int64
		if err := tx.Model(&EnterpriseModel{}).Where("address_key = ?", addrKey(issuer)).Count(&issuers).Error; err != nil {
			return err
		}
		if issuers == 0 {
			code = domain.ResultNoPermission
			return nil
		}
		createdAt := record.CreatedAt
		if createdAt.IsZero() {
			createdAt = r.now().UTC()
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&TokenModel{
			DT:        record.DT,
			Owner:     record.Owner,
			OwnerKey:  addrKey(record.Owner),
			Issuer:    issuer,
			Checksum:  record.Checksum,
			Locator:   record.Locator,
			IsLeaf:    record.IsLeaf,
			CreatedAt: createdAt,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			code = domain.ResultAlreadyExists
			return nil
		}
		code = domain.ResultSuccess
		return nil
	})
	return code, err
}

func (r *LedgerRepository) Grant(ctx context.Context, caller, dt, grantee string) (domain.ResultCode, error) {
	if r.db == nil {
		return "", errDBUnavailable
	}
	var code domain.ResultCode
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var token TokenModel
		if err := tx.First(&token, "dt = ?", dt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				code = domain.ResultNotFound
				return nil
			}
			return err
		}
		var grantees int64
		if err := tx.Model(&TokenModel{}).Where("dt = ?", grantee).Count(&grantees).Error; err != nil {
			return err
		}
		if grantees == 0 {
			code = domain.ResultNotFound
			return nil
		}
		if token.OwnerKey != addrKey(caller) {
			code = domain.ResultNoPermission
			return nil
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&GrantModel{
			DT: dt, Grantee: grantee, CreatedAt: r.now().UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			code = domain.ResultAlreadyExists
			return nil
		}
		code = domain.ResultSuccess
		return nil
	})
	return code, err
}

func (r *LedgerRepository) Activate(ctx context.Context, caller, cdt string, children []string) (domain.ResultCode, error) {
	if r.db == nil {
		return "", errDBUnavailable
	}
	var code domain.ResultCode
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var token TokenModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&token, "dt = ?", cdt).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			code = domain.ResultNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if token.OwnerKey != addrKey(caller) || token.IsLeaf {
			code = domain.ResultNoPermission
			return nil
		}
		if token.Activated {
			code = domain.ResultAlreadyExists
			return nil
		}
		granted, err := r.allGranted(tx, cdt, children)
		if err != nil {
			return err
		}
		if !granted {
			code = domain.ResultNoPermission
			return nil
		}
		if err := tx.Model(&TokenModel{}).Where("dt = ?", cdt).Update("activated", true).Error; err != nil {
			return err
		}
		code = domain.ResultSuccess
		return nil
	})
	return code, err
}

func (r *LedgerRepository) PublishTemplate(ctx context.Context, record domain.TemplateRecord) (domain.ResultCode, error) {
	if r.db == nil {
		return "", errDBUnavailable
	}
	var code domain.ResultCode
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing TemplateModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&existing, "tid = ?", record.TID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil && existing.PublisherKey != addrKey(record.Publisher) {
			code = domain.ResultNoPermission
			return nil
		}
		updatedAt := record.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = r.now().UTC()
		}
		model := TemplateModel{
			TID:          record.TID,
			Name:         record.Name,
			Publisher:    record.Publisher,
			PublisherKey: addrKey(record.Publisher),
			Checksum:     record.Checksum,
			Locator:      record.Locator,
			UpdatedAt:    updatedAt,
		}
		if err := tx.Save(&model).Error; err != nil {
			return err
		}
		code = domain.ResultSuccess
		return nil
	})
	return code, err
}

func (r *LedgerRepository) RegisterEnterprise(ctx context.Context, ent domain.Enterprise) (domain.ResultCode, error) {
	if r.db == nil {
		return "", errDBUnavailable
	}
	model := EnterpriseModel{
		AddressKey:  addrKey(ent.Address),
		Address:     ent.Address,
		Name:        ent.Name,
		Description: ent.Description,
		UpdatedAt:   r.now().UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "name", "description", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return "", err
	}
	return domain.ResultSuccess, nil
}

func (r *LedgerRepository) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	if r.db == nil {
		return domain.Task{}, errDBUnavailable
	}
	model := TaskModel{
		Demander:    task.Demander,
		Name:        task.Name,
		Description: task.Description,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Task{}, err
	}
	task.ID = model.ID
	return task, nil
}

func (r *LedgerRepository) AddJob(ctx context.Context, job domain.Job) (domain.Job, domain.ResultCode, error) {
	if r.db == nil {
		return domain.Job{}, "", errDBUnavailable
	}
	var code domain.ResultCode
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tasks, tokens int64
		if err := tx.Model(&TaskModel{}).Where("id = ?", job.TaskID).Count(&tasks).Error; err != nil {
			return err
		}
		if err := tx.Model(&TokenModel{}).Where("dt = ?", job.CDT).Count(&tokens).Error; err != nil {
			return err
		}
		if tasks == 0 || tokens == 0 {
			code = domain.ResultNotFound
			return nil
		}
		model := JobModel{Solver: job.Solver, TaskID: job.TaskID, CDT: job.CDT, CreatedAt: r.now().UTC()}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		job.ID = model.ID
		code = domain.ResultSuccess
		return nil
	})
	if err != nil || code != domain.ResultSuccess {
		return domain.Job{}, code, err
	}
	return job, code, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

var _ usecase.Ledger = (*LedgerRepository)(nil)
