package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/hitoshi/inventory/internal/database"
	"github.com/hitoshi/inventory/internal/model"
)

// PostgresDomainRepo/PostgresHostRepoがインターフェースを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ DomainRepository = (*PostgresDomainRepo)(nil)
	var _ HostRepository = (*PostgresHostRepo)(nil)
	var _ Purger = (*PostgresDomainRepo)(nil)
	var _ Purger = (*PostgresHostRepo)(nil)
}

func TestLikePattern_EscapesWildcards(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "%%"},
		{"web", "%web%"},
		{"50%", `%50\%%`},
		{"a_b", `%a\_b%`},
		{`c:\x`, `%c:\\x%`},
	}
	for _, tt := range tests {
		if got := likePattern(tt.in); got != tt.want {
			t.Errorf("likePattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNullTime_RoundTrip(t *testing.T) {
	if nt := nullTime(nil); nt.Valid {
		t.Error("nullTime(nil).Valid = true, want false")
	}
	if nullTimeValue(sql.NullTime{}) != nil {
		t.Error("nullTimeValue(invalid) != nil")
	}

	now := time.Now()
	got := nullTimeValue(nullTime(&now))
	if got == nil || !got.Equal(now) {
		t.Errorf("nullTimeValue(nullTime(now)) = %v, want %v", got, now)
	}
}

// setupTestDB はテスト用データベースを準備する。
// 接続できない場合はテストをスキップする。
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://ib:ib@localhost:5432/ib_test?sslmode=disable"
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}

	if _, err := db.Exec(`
		DROP TABLE IF EXISTS hosts CASCADE;
		DROP TABLE IF EXISTS domains CASCADE;
		DROP TABLE IF EXISTS schema_migrations CASCADE;
	`); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}
	if _, err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresDomainRepo_CRUD(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostgresDomainRepo(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, &model.Entity{
		Name:        "acme",
		Data:        map[string]any{"owner": "ops"},
		CreatedTime: time.Now(),
	})
	if err != nil {
		t.Fatalf("Create() がエラーを返した: %v", err)
	}
	if created.ID == "" {
		t.Fatal("IDが採番されていない")
	}

	found, err := repo.FindByName(ctx, "acme", false)
	if err != nil || found == nil {
		t.Fatalf("FindByName() = %v, %v", found, err)
	}
	if found.Data.(map[string]any)["owner"] != "ops" {
		t.Errorf("Data = %v", found.Data)
	}

	_, err = repo.Create(ctx, &model.Entity{Name: "acme", Data: map[string]any{}, CreatedTime: time.Now()})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("同名のCreate() error = %v, want ErrConflict", err)
	}

	now := time.Now()
	found.Name = "acme-renamed"
	found.ModifiedTime = &now
	updated, err := repo.Update(ctx, found)
	if err != nil {
		t.Fatalf("Update() がエラーを返した: %v", err)
	}
	if updated.Name != "acme-renamed" || updated.ModifiedTime == nil {
		t.Errorf("Update() = %+v", updated)
	}

	ok, err := repo.Delete(ctx, created.ID)
	if err != nil || !ok {
		t.Fatalf("Delete() = %v, %v", ok, err)
	}
	if e, _ := repo.FindByID(ctx, created.ID, false); e != nil {
		t.Error("削除済みドメインが通常の検索で見つかった")
	}
	if e, _ := repo.FindByID(ctx, created.ID, true); e == nil || !e.Deleted {
		t.Errorf("FindByID(allowDeleted) = %+v", e)
	}

	// 削除済みと同名で作成できる
	if _, err := repo.Create(ctx, &model.Entity{Name: "acme-renamed", Data: map[string]any{}, CreatedTime: time.Now()}); err != nil {
		t.Errorf("削除済みと同名のCreate() がエラーを返した: %v", err)
	}
}

func TestPostgresHostRepo_CountAllAndPurge(t *testing.T) {
	db := setupTestDB(t)
	domains := NewPostgresDomainRepo(db)
	hosts := NewPostgresHostRepo(db)
	ctx := context.Background()

	d, err := domains.Create(ctx, &model.Entity{Name: "acme", Data: map[string]any{}, CreatedTime: time.Now()})
	if err != nil {
		t.Fatalf("ドメイン作成に失敗: %v", err)
	}
	h, err := hosts.Create(ctx, &model.Entity{DomainID: d.ID, Name: "web01", Data: map[string]any{}, CreatedTime: time.Now()})
	if err != nil {
		t.Fatalf("ホスト作成に失敗: %v", err)
	}

	if ok, _ := hosts.Delete(ctx, d.ID, h.ID); !ok {
		t.Fatal("ホストの削除に失敗")
	}
	all, _ := hosts.CountAll(ctx, d.ID)
	if all != 1 {
		t.Errorf("CountAll() = %d, want 1", all)
	}

	n, err := hosts.PurgeDeleted(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("PurgeDeleted() がエラーを返した: %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeDeleted() = %d, want 1", n)
	}
	all, _ = hosts.CountAll(ctx, d.ID)
	if all != 0 {
		t.Errorf("パージ後のCountAll() = %d, want 0", all)
	}
}

func TestPostgresHostRepo_GetPageSearch(t *testing.T) {
	db := setupTestDB(t)
	domains := NewPostgresDomainRepo(db)
	hosts := NewPostgresHostRepo(db)
	ctx := context.Background()

	d, _ := domains.Create(ctx, &model.Entity{Name: "acme", Data: map[string]any{}, CreatedTime: time.Now()})
	for _, name := range []string{"web02", "db01", "WEB01"} {
		if _, err := hosts.Create(ctx, &model.Entity{DomainID: d.ID, Name: name, Data: map[string]any{}, CreatedTime: time.Now()}); err != nil {
			t.Fatalf("ホスト作成に失敗: %v", err)
		}
	}

	page, err := hosts.GetPage(ctx, d.ID, 1, 10, "web")
	if err != nil {
		t.Fatalf("GetPage() がエラーを返した: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("GetPage(search=web) = %v, want 2件", names(page))
	}
	count, _ := hosts.GetCount(ctx, d.ID, "web")
	if count != 2 {
		t.Errorf("GetCount(search=web) = %d, want 2", count)
	}
}
