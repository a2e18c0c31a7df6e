//go:build integration
// +build integration

package db

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"datatoken/internal/domain"
)

var (
	ownerAddr = "0x" + strings.Repeat("Ab", 20)
	aggAddr   = "0x" + strings.Repeat("cD", 20)
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec(`TRUNCATE tokens, token_grants, op_templates, enterprises, tasks, jobs, documents RESTART IDENTITY CASCADE`).Error; err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}

func mustCode(t *testing.T, want domain.ResultCode, got domain.ResultCode, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("ledger write: %v", err)
	}
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestLedgerRepository_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewLedgerRepository(db)
	leaf := domain.DTPrefix + strings.Repeat("01", 32)
	cdt := domain.DTPrefix + strings.Repeat("02", 32)

	code, err := repo.MintToken(ctx, ownerAddr, domain.TokenRecord{DT: leaf, Owner: ownerAddr, Checksum: "aa", Locator: "loc", IsLeaf: true})
	mustCode(t, domain.ResultNoPermission, code, err)

	for _, addr := range []string{ownerAddr, aggAddr} {
		code, err = repo.RegisterEnterprise(ctx, domain.Enterprise{Address: addr, Name: "ent"})
		mustCode(t, domain.ResultSuccess, code, err)
	}
	code, err = repo.MintToken(ctx, ownerAddr, domain.TokenRecord{DT: leaf, Owner: ownerAddr, Checksum: "aa", Locator: "loc", IsLeaf: true})
	mustCode(t, domain.ResultSuccess, code, err)
	code, err = repo.MintToken(ctx, ownerAddr, domain.TokenRecord{DT: leaf, Owner: ownerAddr, Checksum: "bb", Locator: "loc", IsLeaf: true})
	mustCode(t, domain.ResultAlreadyExists, code, err)
	code, err = repo.MintToken(ctx, aggAddr, domain.TokenRecord{DT: cdt, Owner: aggAddr, Checksum: "cc", Locator: "loc2"})
	mustCode(t, domain.ResultSuccess, code, err)

	code, err = repo.Activate(ctx, aggAddr, cdt, []string{leaf})
	mustCode(t, domain.ResultNoPermission, code, err)
	code, err = repo.Grant(ctx, aggAddr, leaf, cdt)
	mustCode(t, domain.ResultNoPermission, code, err)
	code, err = repo.Grant(ctx, strings.ToLower(ownerAddr), leaf, cdt)
	mustCode(t, domain.ResultSuccess, code, err)
	code, err = repo.Grant(ctx, ownerAddr, leaf, cdt)
	mustCode(t, domain.ResultAlreadyExists, code, err)
	code, err = repo.Activate(ctx, aggAddr, cdt, []string{leaf})
	mustCode(t, domain.ResultSuccess, code, err)

	linked, err := repo.ChildrenLinked(ctx, cdt, []string{leaf})
	if err != nil || !linked {
		t.Fatalf("expected children linked, got %v %v", linked, err)
	}
	grantees, err := repo.Grantees(ctx, leaf)
	if err != nil || len(grantees) != 1 || grantees[0] != cdt {
		t.Fatalf("unexpected grantees %v %v", grantees, err)
	}

	task, err := repo.CreateTask(ctx, domain.Task{Demander: ownerAddr, Name: "forecast"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	job, code, err := repo.AddJob(ctx, domain.Job{Solver: aggAddr, TaskID: task.ID, CDT: cdt})
	mustCode(t, domain.ResultSuccess, code, err)
	_, code, err = repo.AddJob(ctx, domain.Job{Solver: aggAddr, TaskID: task.ID + 10, CDT: cdt})
	mustCode(t, domain.ResultNotFound, code, err)

	jobs, err := repo.JobsByCDT(ctx, cdt)
	if err != nil || len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Fatalf("unexpected jobs %v %v", jobs, err)
	}
	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Tokens != 2 || stats.Tasks != 1 || stats.Jobs != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestLedgerRepository_TemplatePublisherGuard(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewLedgerRepository(db)
	tid := domain.DTPrefix + strings.Repeat("03", 32)
	record := domain.TemplateRecord{TID: tid, Name: "sum", Publisher: ownerAddr, Checksum: "aa", Locator: "l1", UpdatedAt: time.Now().UTC()}

	code, err := repo.PublishTemplate(ctx, record)
	mustCode(t, domain.ResultSuccess, code, err)
	record.Checksum = "bb"
	code, err = repo.PublishTemplate(ctx, record)
	mustCode(t, domain.ResultSuccess, code, err)
	record.Publisher = aggAddr
	code, err = repo.PublishTemplate(ctx, record)
	mustCode(t, domain.ResultNoPermission, code, err)

	got, err := repo.GetTemplate(ctx, tid)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if got.Checksum != "bb" || got.Publisher != ownerAddr {
		t.Fatalf("unexpected template %+v", got)
	}
}

func TestContentRepository_PutGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewContentRepository(db)
	locator, err := repo.Put(ctx, []byte(`{"b":2,"a":1}`))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	again, err := repo.Put(ctx, []byte(`{"a":1,"b":2}`))
	if err != nil || again != locator {
		t.Fatalf("expected same locator, got %s %v", again, err)
	}
	body, err := repo.Get(ctx, locator)
	if err != nil || string(body) != `{"b":2,"a":1}` {
		t.Fatalf("unexpected body %s %v", body, err)
	}
	if _, err := repo.Get(ctx, "missing"); err != domain.ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
