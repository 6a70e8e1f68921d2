package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/inventory/internal/model"
)

// maxIDAttempts はID採番時に衝突した場合の最大試行回数。
const maxIDAttempts = 100

// errIDExhausted はID採番の試行回数を使い切ったことを表す。
var errIDExhausted = errors.New("repository: failed to generate unique id")

// memoryTable はメモリ上のレコード表。論理削除されたレコードは
// Deletedフラグ付きのまま保持され、purgeで取り除かれる。
// レコードはスコープ（ホストの場合はドメインID、ドメインの場合は空文字）ごとに扱う。
// 開発用のバックエンドであり、マネージャ層をまたいだ名前の一意性は保証しない。
type memoryTable struct {
	mu      sync.RWMutex
	records map[string]*model.Entity
	now     func() time.Time
}

func newMemoryTable() *memoryTable {
	return &memoryTable{
		records: make(map[string]*model.Entity),
		now:     time.Now,
	}
}

func (t *memoryTable) findByID(scope, id string, allowDeleted bool) *model.Entity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.records[id]
	if !ok || e.DomainID != scope || (e.Deleted && !allowDeleted) {
		return nil
	}
	return e.Clone()
}

func (t *memoryTable) findByName(scope, name string, allowDeleted bool) *model.Entity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var found *model.Entity
	for _, e := range t.records {
		if e.DomainID != scope || e.Name != name {
			continue
		}
		if !e.Deleted {
			return e.Clone()
		}
		if !allowDeleted {
			continue
		}
		if found == nil || deletedAfter(e, found) {
			found = e
		}
	}
	return found.Clone()
}

func deletedAfter(a, b *model.Entity) bool {
	if a.DeletedTime == nil {
		return false
	}
	if b.DeletedTime == nil {
		return true
	}
	return a.DeletedTime.After(*b.DeletedTime)
}

// active はスコープ内の削除されていないレコードのうち、searchに部分一致するものを名前順で返す。
// 呼び出し側でロックを取得していること。
func (t *memoryTable) active(scope, search string) []*model.Entity {
	needle := strings.ToLower(search)
	var out []*model.Entity
	for _, e := range t.records {
		if e.DomainID != scope || e.Deleted {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Name), needle) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *memoryTable) page(scope string, page, size int, search string) []*model.Entity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := t.active(scope, search)
	start := (page - 1) * size
	if start < 0 || start >= len(all) {
		return []*model.Entity{}
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}

	out := make([]*model.Entity, 0, end-start)
	for _, e := range all[start:end] {
		out = append(out, e.Clone())
	}
	return out
}

func (t *memoryTable) count(scope, search string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.active(scope, search))
}

func (t *memoryTable) countAll(scope string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, e := range t.records {
		if e.DomainID == scope {
			n++
		}
	}
	return n
}

// nameTaken はスコープ内に同名の削除されていない別レコードがあるかを返す。
// 呼び出し側でロックを取得していること。
func (t *memoryTable) nameTaken(scope, name, exceptID string) bool {
	for _, e := range t.records {
		if e.DomainID == scope && e.Name == name && !e.Deleted && e.ID != exceptID {
			return true
		}
	}
	return false
}

func (t *memoryTable) create(e *model.Entity) (*model.Entity, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := e.Clone()
	if rec.ID == "" {
		id, err := t.generateID()
		if err != nil {
			return nil, err
		}
		rec.ID = id
	} else if _, exists := t.records[rec.ID]; exists {
		return nil, ErrConflict
	}
	if !rec.Deleted && t.nameTaken(rec.DomainID, rec.Name, rec.ID) {
		return nil, ErrConflict
	}

	t.records[rec.ID] = rec
	return rec.Clone(), nil
}

// generateID は未使用のUUIDv4を採番する。呼び出し側でロックを取得していること。
func (t *memoryTable) generateID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := uuid.NewString()
		if _, exists := t.records[id]; !exists {
			return id, nil
		}
	}
	return "", errIDExhausted
}

func (t *memoryTable) update(e *model.Entity) (*model.Entity, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.records[e.ID]
	if !ok || cur.DomainID != e.DomainID {
		return nil, nil
	}
	if !e.Deleted && t.nameTaken(e.DomainID, e.Name, e.ID) {
		return nil, ErrConflict
	}

	rec := e.Clone()
	t.records[rec.ID] = rec
	return rec.Clone(), nil
}

func (t *memoryTable) delete(scope, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.records[id]
	if !ok || e.DomainID != scope || e.Deleted {
		return false
	}
	now := t.now()
	e.Deleted = true
	e.DeletedTime = &now
	return true
}

func (t *memoryTable) purge(before time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var n int64
	for id, e := range t.records {
		if e.Deleted && e.DeletedTime != nil && e.DeletedTime.Before(before) {
			delete(t.records, id)
			n++
		}
	}
	return n
}

// MemoryDomainRepo はメモリ上でドメインを保持するリポジトリ。開発・テスト用。
type MemoryDomainRepo struct {
	table *memoryTable
}

var (
	_ DomainRepository = (*MemoryDomainRepo)(nil)
	_ Purger           = (*MemoryDomainRepo)(nil)
)

// NewMemoryDomainRepo はMemoryDomainRepoを生成する。
func NewMemoryDomainRepo() *MemoryDomainRepo {
	return &MemoryDomainRepo{table: newMemoryTable()}
}

func (r *MemoryDomainRepo) FindByID(_ context.Context, id string, allowDeleted bool) (*model.Entity, error) {
	return r.table.findByID("", id, allowDeleted), nil
}

func (r *MemoryDomainRepo) FindByName(_ context.Context, name string, allowDeleted bool) (*model.Entity, error) {
	return r.table.findByName("", name, allowDeleted), nil
}

func (r *MemoryDomainRepo) GetPage(_ context.Context, page, size int, search string) ([]*model.Entity, error) {
	return r.table.page("", page, size, search), nil
}

func (r *MemoryDomainRepo) GetCount(_ context.Context, search string) (int, error) {
	return r.table.count("", search), nil
}

func (r *MemoryDomainRepo) Create(_ context.Context, e *model.Entity) (*model.Entity, error) {
	e.DomainID = ""
	return r.table.create(e)
}

func (r *MemoryDomainRepo) Update(_ context.Context, e *model.Entity) (*model.Entity, error) {
	e.DomainID = ""
	return r.table.update(e)
}

func (r *MemoryDomainRepo) Delete(_ context.Context, id string) (bool, error) {
	return r.table.delete("", id), nil
}

// PurgeDeleted はbeforeより前に論理削除されたドメインを取り除く。
func (r *MemoryDomainRepo) PurgeDeleted(_ context.Context, before time.Time) (int64, error) {
	return r.table.purge(before), nil
}

// MemoryHostRepo はメモリ上でホストを保持するリポジトリ。開発・テスト用。
type MemoryHostRepo struct {
	table *memoryTable
}

var (
	_ HostRepository = (*MemoryHostRepo)(nil)
	_ Purger         = (*MemoryHostRepo)(nil)
)

// NewMemoryHostRepo はMemoryHostRepoを生成する。
func NewMemoryHostRepo() *MemoryHostRepo {
	return &MemoryHostRepo{table: newMemoryTable()}
}

func (r *MemoryHostRepo) FindByID(_ context.Context, domainID, id string, allowDeleted bool) (*model.Entity, error) {
	return r.table.findByID(domainID, id, allowDeleted), nil
}

func (r *MemoryHostRepo) FindByName(_ context.Context, domainID, name string, allowDeleted bool) (*model.Entity, error) {
	return r.table.findByName(domainID, name, allowDeleted), nil
}

func (r *MemoryHostRepo) GetPage(_ context.Context, domainID string, page, size int, search string) ([]*model.Entity, error) {
	return r.table.page(domainID, page, size, search), nil
}

func (r *MemoryHostRepo) GetCount(_ context.Context, domainID, search string) (int, error) {
	return r.table.count(domainID, search), nil
}

func (r *MemoryHostRepo) CountAll(_ context.Context, domainID string) (int, error) {
	return r.table.countAll(domainID), nil
}

func (r *MemoryHostRepo) Create(_ context.Context, e *model.Entity) (*model.Entity, error) {
	return r.table.create(e)
}

func (r *MemoryHostRepo) Update(_ context.Context, e *model.Entity) (*model.Entity, error) {
	return r.table.update(e)
}

func (r *MemoryHostRepo) Delete(_ context.Context, domainID, id string) (bool, error) {
	return r.table.delete(domainID, id), nil
}

// PurgeDeleted はbeforeより前に論理削除されたホストを取り除く。
func (r *MemoryHostRepo) PurgeDeleted(_ context.Context, before time.Time) (int64, error) {
	return r.table.purge(before), nil
}
