package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/inventory/internal/model"
)

const hostColumns = `id, domain_id, name, data, deleted, created_time, modified_time, deleted_time`

// PostgresHostRepo はPostgreSQLを使用したホストリポジトリ。
type PostgresHostRepo struct {
	db *sql.DB
}

var (
	_ HostRepository = (*PostgresHostRepo)(nil)
	_ Purger         = (*PostgresHostRepo)(nil)
)

// NewPostgresHostRepo はPostgresHostRepoを生成する。
func NewPostgresHostRepo(db *sql.DB) *PostgresHostRepo {
	return &PostgresHostRepo{db: db}
}

// FindByID はドメイン配下の指定IDのホストを取得する。見つからない場合はnilを返す。
func (r *PostgresHostRepo) FindByID(ctx context.Context, domainID, id string, allowDeleted bool) (*model.Entity, error) {
	query := `SELECT ` + hostColumns + ` FROM hosts WHERE domain_id = $1 AND id = $2`
	if !allowDeleted {
		query += ` AND NOT deleted`
	}

	e, err := scanEntity(r.db.QueryRowContext(ctx, query, domainID, id), true)
	if err != nil {
		return nil, fmt.Errorf("ホストの取得に失敗しました: %w", err)
	}
	return e, nil
}

// FindByName はドメイン配下の指定名のホストを取得する。見つからない場合はnilを返す。
func (r *PostgresHostRepo) FindByName(ctx context.Context, domainID, name string, allowDeleted bool) (*model.Entity, error) {
	query := `SELECT ` + hostColumns + ` FROM hosts WHERE domain_id = $1 AND name = $2`
	if !allowDeleted {
		query += ` AND NOT deleted`
	}
	query += ` ORDER BY deleted, deleted_time DESC NULLS LAST LIMIT 1`

	e, err := scanEntity(r.db.QueryRowContext(ctx, query, domainID, name), true)
	if err != nil {
		return nil, fmt.Errorf("名前によるホストの検索に失敗しました: %w", err)
	}
	return e, nil
}

// GetPage はドメイン配下の削除されていないホストを名前の昇順で1ページ分取得する。
func (r *PostgresHostRepo) GetPage(ctx context.Context, domainID string, page, size int, search string) ([]*model.Entity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+hostColumns+`
		 FROM hosts
		 WHERE domain_id = $1 AND NOT deleted AND name ILIKE $2 ESCAPE '\'
		 ORDER BY name, id
		 OFFSET $3 LIMIT $4`,
		domainID, likePattern(search), (page-1)*size, size,
	)
	if err != nil {
		return nil, fmt.Errorf("ホスト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	entities, err := scanEntities(rows, true)
	if err != nil {
		return nil, fmt.Errorf("ホスト一覧の読み取りに失敗しました: %w", err)
	}
	return entities, nil
}

// GetCount はドメイン配下の削除されていないホストの件数を返す。
func (r *PostgresHostRepo) GetCount(ctx context.Context, domainID, search string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM hosts
		 WHERE domain_id = $1 AND NOT deleted AND name ILIKE $2 ESCAPE '\'`,
		domainID, likePattern(search),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ホスト件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// CountAll は論理削除済みを含むドメイン配下のホスト件数を返す。
func (r *PostgresHostRepo) CountAll(ctx context.Context, domainID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM hosts WHERE domain_id = $1`,
		domainID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ホスト件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// Create はホストを作成する。IDが空の場合はUUIDv4を採番する。
func (r *PostgresHostRepo) Create(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	data, err := encodeData(e.Data)
	if err != nil {
		return nil, err
	}

	created, err := scanEntity(r.db.QueryRowContext(ctx,
		`INSERT INTO hosts (id, domain_id, name, data, created_time)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+hostColumns,
		id, e.DomainID, e.Name, data, e.CreatedTime,
	), true)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("ホストの作成に失敗しました: %w", err)
	}
	return created, nil
}

// Update はホストを丸ごと置き換える。
func (r *PostgresHostRepo) Update(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	data, err := encodeData(e.Data)
	if err != nil {
		return nil, err
	}

	updated, err := scanEntity(r.db.QueryRowContext(ctx,
		`UPDATE hosts SET
		    name = $3, data = $4, created_time = $5,
		    modified_time = $6, deleted = $7, deleted_time = $8
		 WHERE domain_id = $1 AND id = $2
		 RETURNING `+hostColumns,
		e.DomainID, e.ID, e.Name, data, e.CreatedTime,
		nullTime(e.ModifiedTime), e.Deleted, nullTime(e.DeletedTime),
	), true)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("ホストの更新に失敗しました: %w", err)
	}
	return updated, nil
}

// Delete はドメイン配下の指定IDのホストを論理削除する。
func (r *PostgresHostRepo) Delete(ctx context.Context, domainID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE hosts SET deleted = true, deleted_time = $3
		 WHERE domain_id = $1 AND id = $2 AND NOT deleted`,
		domainID, id, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("ホストの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n == 1, nil
}

// PurgeDeleted は保持期間を過ぎた論理削除済みホストを物理削除する。
func (r *PostgresHostRepo) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM hosts WHERE deleted AND deleted_time < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("削除済みホストのパージに失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}
