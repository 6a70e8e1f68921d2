// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/inventory/internal/model"
)

// ErrConflict はストレージ層で一意制約違反が発生したことを表す。
// IDの重複、または削除されていないレコード間での名前の重複で返される。
var ErrConflict = errors.New("repository: unique constraint violation")

// EntityRepository はスコープ内のエンティティを扱う永続化インターフェース。
// ドメインはそのまま、ホストはScopeHostsで所属ドメインに絞り込んだ形でこのインターフェースを満たす。
type EntityRepository interface {
	// FindByID は指定IDのエンティティを取得する。見つからない場合はnilを返す。
	// allowDeletedがtrueの場合は論理削除済みのレコードも対象にする。
	FindByID(ctx context.Context, id string, allowDeleted bool) (*model.Entity, error)

	// FindByName は指定名のエンティティを取得する。見つからない場合はnilを返す。
	// allowDeletedがtrueで同名のレコードが複数ある場合は、
	// 削除されていないものを優先し、次に最も新しく削除されたものを返す。
	FindByName(ctx context.Context, name string, allowDeleted bool) (*model.Entity, error)

	// GetPage は削除されていないエンティティを名前の昇順で1ページ分取得する。
	// pageは1始まり。searchが空でない場合は名前の部分一致（大文字小文字を区別しない）で絞り込む。
	GetPage(ctx context.Context, page, size int, search string) ([]*model.Entity, error)

	// GetCount は削除されていないエンティティの件数を返す。
	GetCount(ctx context.Context, search string) (int, error)

	// Create はエンティティを作成する。IDが空の場合は採番する。
	// 一意制約に違反した場合はErrConflictを返す。
	Create(ctx context.Context, e *model.Entity) (*model.Entity, error)

	// Update はIDで指定したエンティティを丸ごと置き換える。
	// 対象が存在しない場合はnilを返す。
	Update(ctx context.Context, e *model.Entity) (*model.Entity, error)

	// Delete は指定IDのエンティティを論理削除する。
	// 削除されていないレコードが対象になった場合のみtrueを返す。
	Delete(ctx context.Context, id string) (bool, error)
}

// DomainRepository はドメインデータの永続化インターフェース。
type DomainRepository interface {
	EntityRepository
}

// HostRepository はホストデータの永続化インターフェース。
// すべての操作は所属ドメインのIDでスコープされる。
type HostRepository interface {
	FindByID(ctx context.Context, domainID, id string, allowDeleted bool) (*model.Entity, error)
	FindByName(ctx context.Context, domainID, name string, allowDeleted bool) (*model.Entity, error)
	GetPage(ctx context.Context, domainID string, page, size int, search string) ([]*model.Entity, error)
	GetCount(ctx context.Context, domainID, search string) (int, error)

	// CountAll は論理削除済みを含むドメイン配下のホスト件数を返す。
	CountAll(ctx context.Context, domainID string) (int, error)

	// Create はホストを作成する。e.DomainIDが所属ドメインになる。
	Create(ctx context.Context, e *model.Entity) (*model.Entity, error)
	Update(ctx context.Context, e *model.Entity) (*model.Entity, error)
	Delete(ctx context.Context, domainID, id string) (bool, error)
}

// Purger は論理削除済みレコードを物理削除するインターフェース。
// クリーンアップジョブから利用する。
type Purger interface {
	// PurgeDeleted はdeleted_timeがbeforeより古い論理削除済みレコードを物理削除し、削除件数を返す。
	PurgeDeleted(ctx context.Context, before time.Time) (int64, error)
}

// hostScope はHostRepositoryを特定ドメインにスコープしたEntityRepository。
type hostScope struct {
	repo     HostRepository
	domainID string
}

// ScopeHosts はHostRepositoryを指定ドメイン配下に限定したEntityRepositoryとして返す。
func ScopeHosts(repo HostRepository, domainID string) EntityRepository {
	return &hostScope{repo: repo, domainID: domainID}
}

func (s *hostScope) FindByID(ctx context.Context, id string, allowDeleted bool) (*model.Entity, error) {
	return s.repo.FindByID(ctx, s.domainID, id, allowDeleted)
}

func (s *hostScope) FindByName(ctx context.Context, name string, allowDeleted bool) (*model.Entity, error) {
	return s.repo.FindByName(ctx, s.domainID, name, allowDeleted)
}

func (s *hostScope) GetPage(ctx context.Context, page, size int, search string) ([]*model.Entity, error) {
	return s.repo.GetPage(ctx, s.domainID, page, size, search)
}

func (s *hostScope) GetCount(ctx context.Context, search string) (int, error) {
	return s.repo.GetCount(ctx, s.domainID, search)
}

func (s *hostScope) Create(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	e.DomainID = s.domainID
	return s.repo.Create(ctx, e)
}

func (s *hostScope) Update(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	e.DomainID = s.domainID
	return s.repo.Update(ctx, e)
}

func (s *hostScope) Delete(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, s.domainID, id)
}
