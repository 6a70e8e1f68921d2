package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/inventory/internal/model"
)

const domainColumns = `id, name, data, deleted, created_time, modified_time, deleted_time`

// PostgresDomainRepo はPostgreSQLを使用したドメインリポジトリ。
type PostgresDomainRepo struct {
	db *sql.DB
}

var (
	_ DomainRepository = (*PostgresDomainRepo)(nil)
	_ Purger           = (*PostgresDomainRepo)(nil)
)

// NewPostgresDomainRepo はPostgresDomainRepoを生成する。
func NewPostgresDomainRepo(db *sql.DB) *PostgresDomainRepo {
	return &PostgresDomainRepo{db: db}
}

// FindByID は指定IDのドメインを取得する。見つからない場合はnilを返す。
func (r *PostgresDomainRepo) FindByID(ctx context.Context, id string, allowDeleted bool) (*model.Entity, error) {
	query := `SELECT ` + domainColumns + ` FROM domains WHERE id = $1`
	if !allowDeleted {
		query += ` AND NOT deleted`
	}

	e, err := scanEntity(r.db.QueryRowContext(ctx, query, id), false)
	if err != nil {
		return nil, fmt.Errorf("ドメインの取得に失敗しました: %w", err)
	}
	return e, nil
}

// FindByName は指定名のドメインを取得する。見つからない場合はnilを返す。
func (r *PostgresDomainRepo) FindByName(ctx context.Context, name string, allowDeleted bool) (*model.Entity, error) {
	query := `SELECT ` + domainColumns + ` FROM domains WHERE name = $1`
	if !allowDeleted {
		query += ` AND NOT deleted`
	}
	query += ` ORDER BY deleted, deleted_time DESC NULLS LAST LIMIT 1`

	e, err := scanEntity(r.db.QueryRowContext(ctx, query, name), false)
	if err != nil {
		return nil, fmt.Errorf("名前によるドメインの検索に失敗しました: %w", err)
	}
	return e, nil
}

// GetPage は削除されていないドメインを名前の昇順で1ページ分取得する。
func (r *PostgresDomainRepo) GetPage(ctx context.Context, page, size int, search string) ([]*model.Entity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+domainColumns+`
		 FROM domains
		 WHERE NOT deleted AND name ILIKE $1 ESCAPE '\'
		 ORDER BY name, id
		 OFFSET $2 LIMIT $3`,
		likePattern(search), (page-1)*size, size,
	)
	if err != nil {
		return nil, fmt.Errorf("ドメイン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	entities, err := scanEntities(rows, false)
	if err != nil {
		return nil, fmt.Errorf("ドメイン一覧の読み取りに失敗しました: %w", err)
	}
	return entities, nil
}

// GetCount は削除されていないドメインの件数を返す。
func (r *PostgresDomainRepo) GetCount(ctx context.Context, search string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM domains WHERE NOT deleted AND name ILIKE $1 ESCAPE '\'`,
		likePattern(search),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ドメイン件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// Create はドメインを作成する。IDが空の場合はUUIDv4を採番する。
func (r *PostgresDomainRepo) Create(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	data, err := encodeData(e.Data)
	if err != nil {
		return nil, err
	}

	created, err := scanEntity(r.db.QueryRowContext(ctx,
		`INSERT INTO domains (id, name, data, created_time)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+domainColumns,
		id, e.Name, data, e.CreatedTime,
	), false)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("ドメインの作成に失敗しました: %w", err)
	}
	return created, nil
}

// Update はドメインを丸ごと置き換える。
func (r *PostgresDomainRepo) Update(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	data, err := encodeData(e.Data)
	if err != nil {
		return nil, err
	}

	updated, err := scanEntity(r.db.QueryRowContext(ctx,
		`UPDATE domains SET
		    name = $2, data = $3, created_time = $4,
		    modified_time = $5, deleted = $6, deleted_time = $7
		 WHERE id = $1
		 RETURNING `+domainColumns,
		e.ID, e.Name, data, e.CreatedTime,
		nullTime(e.ModifiedTime), e.Deleted, nullTime(e.DeletedTime),
	), false)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("ドメインの更新に失敗しました: %w", err)
	}
	return updated, nil
}

// Delete は指定IDのドメインを論理削除する。
func (r *PostgresDomainRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE domains SET deleted = true, deleted_time = $2 WHERE id = $1 AND NOT deleted`,
		id, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("ドメインの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n == 1, nil
}

// PurgeDeleted は保持期間を過ぎた論理削除済みドメインを物理削除する。
// ホストが残っているドメインは対象外とする。
func (r *PostgresDomainRepo) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM domains d
		 WHERE d.deleted AND d.deleted_time < $1
		   AND NOT EXISTS (SELECT 1 FROM hosts h WHERE h.domain_id = d.id)`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("削除済みドメインのパージに失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntity は1行を読み取ってEntityを返す。該当行がない場合はnilを返す。
// withDomainがtrueの場合は先頭にdomain_id列があるものとして読み取る。
func scanEntity(row rowScanner, withDomain bool) (*model.Entity, error) {
	e := &model.Entity{}
	var data []byte
	var modified, deleted sql.NullTime

	dest := []any{&e.ID}
	if withDomain {
		dest = append(dest, &e.DomainID)
	}
	dest = append(dest, &e.Name, &data, &e.Deleted, &e.CreatedTime, &modified, &deleted)

	err := row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &e.Data); err != nil {
			return nil, fmt.Errorf("dataのデコードに失敗しました: %w", err)
		}
	}
	e.ModifiedTime = nullTimeValue(modified)
	e.DeletedTime = nullTimeValue(deleted)
	return e, nil
}

func scanEntities(rows *sql.Rows, withDomain bool) ([]*model.Entity, error) {
	var entities []*model.Entity
	for rows.Next() {
		e, err := scanEntity(rows, withDomain)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entities, nil
}

// encodeData はdataをJSONB列に書き込むための文字列に変換する。
// lib/pqは[]byteをbyteaとして送るため文字列で渡す。
func encodeData(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("dataのエンコードに失敗しました: %w", err)
	}
	return string(b), nil
}

// isUniqueViolation はPostgreSQLの一意制約違反（SQLSTATE 23505）かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// likePattern は部分一致検索用のILIKEパターンを生成する。
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}

// nullTime は*time.Timeをsql.NullTimeに変換する。nilの場合はNULLとする。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullTimeValue はsql.NullTimeから*time.Timeを取得する。
func nullTimeValue(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
