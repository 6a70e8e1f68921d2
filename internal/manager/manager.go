// Package manager はドメイン・ホストの業務ルールを提供する。
// 書き込み系の操作は業務上の結果をmodel.SaveResultとして返し、
// errorはストレージ障害など想定外の失敗の場合にのみ返す。
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/inventory/internal/merge"
	"github.com/hitoshi/inventory/internal/model"
	"github.com/hitoshi/inventory/internal/repository"
)

// DeleteGuard は指定IDのレコードを削除してよいかを判定する。
// falseを返した場合、削除はNotDeletableとして扱われる。
type DeleteGuard func(ctx context.Context, id string) (bool, error)

// Manager は1つのスコープ（ドメイン全体、または1ドメイン配下のホスト）に対する業務ロジック。
// 状態を持たないため、リクエストごとに生成してよい。
type Manager struct {
	repo  repository.EntityRepository
	guard DeleteGuard
	now   func() time.Time
}

// NewManager はManagerを生成する。guardがnilの場合は常に削除を許可する。
func NewManager(repo repository.EntityRepository, guard DeleteGuard) *Manager {
	return &Manager{
		repo:  repo,
		guard: guard,
		now:   time.Now,
	}
}

// FindByID は指定IDのレコードを返す。存在しない、または削除済みの場合はnilを返す。
func (m *Manager) FindByID(ctx context.Context, id string) (*model.DTO, error) {
	e, err := m.repo.FindByID(ctx, id, false)
	if err != nil {
		return nil, fmt.Errorf("IDによる検索に失敗しました: %w", err)
	}
	return model.ToDTO(e), nil
}

// FindByName は指定名のレコードを返す。存在しない、または削除済みの場合はnilを返す。
func (m *Manager) FindByName(ctx context.Context, name string) (*model.DTO, error) {
	e, err := m.repo.FindByName(ctx, name, false)
	if err != nil {
		return nil, fmt.Errorf("名前による検索に失敗しました: %w", err)
	}
	return model.ToDTO(e), nil
}

// GetPage は削除されていないレコードを名前の昇順で1ページ分返す。
// 一覧と件数は別々の問い合わせで並行に取得するため、同時に書き込みがあると
// TotalCountと返却されたEntitiesが一致しない場合がある。
func (m *Manager) GetPage(ctx context.Context, page, size int, search string) (*model.Page, error) {
	var (
		entities []*model.Entity
		total    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entities, err = m.repo.GetPage(gctx, page, size, search)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = m.repo.GetCount(gctx, search)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ページの取得に失敗しました: %w", err)
	}

	dtos := make([]*model.DTO, 0, len(entities))
	for _, e := range entities {
		dtos = append(dtos, model.ToDTO(e))
	}

	return &model.Page{
		Entities:   dtos,
		PageNumber: page,
		PageSize:   size,
		TotalCount: total,
		PageCount:  (total + size - 1) / size,
	}, nil
}

// Create は新しいレコードを作成する。
// 同名の削除されていないレコードがある場合はNameConflictを返す。
func (m *Manager) Create(ctx context.Context, dto *model.DTO) (model.SaveResult, error) {
	ok, err := m.nameAvailable(ctx, dto.Name, "")
	if err != nil {
		return model.SaveResult{}, err
	}
	if !ok {
		return model.SaveResult{Status: model.SaveStatusNameConflict}, nil
	}

	created, err := m.repo.Create(ctx, model.NewEntity(dto, m.now()))
	if errors.Is(err, repository.ErrConflict) {
		return model.SaveResult{Status: model.SaveStatusNameConflict}, nil
	}
	if err != nil {
		return model.SaveResult{}, fmt.Errorf("作成に失敗しました: %w", err)
	}

	return model.SaveResult{Status: model.SaveStatusCreated, DTO: model.ToDTO(created)}, nil
}

// SaveByID は指定IDのレコードを名前とデータで丸ごと置き換える。
// 存在しない場合はそのIDで作成し、削除済みの場合は復元する。
// 内容が変わらない場合はNotChangedを返し、書き込みは行わない。
func (m *Manager) SaveByID(ctx context.Context, id string, dto *model.DTO) (model.SaveResult, error) {
	current, err := m.repo.FindByID(ctx, id, true)
	if err != nil {
		return model.SaveResult{}, fmt.Errorf("IDによる検索に失敗しました: %w", err)
	}
	if current == nil {
		return m.Create(ctx, &model.DTO{ID: id, Name: dto.Name, Data: dto.Data})
	}

	return m.replace(ctx, current, &model.DTO{Name: dto.Name, Data: dto.Data})
}

// MergeByID は指定IDのレコードのデータに入力データを深くマージする。
// 名前が指定された場合は名前も置き換える。
// レコードが存在せず名前も指定されていない場合はNotFoundを返す。
func (m *Manager) MergeByID(ctx context.Context, id string, dto *model.DTO) (model.SaveResult, error) {
	current, err := m.repo.FindByID(ctx, id, true)
	if err != nil {
		return model.SaveResult{}, fmt.Errorf("IDによる検索に失敗しました: %w", err)
	}
	if current == nil {
		if dto.Name == "" {
			return model.SaveResult{Status: model.SaveStatusNotFound}, nil
		}
		return m.Create(ctx, &model.DTO{ID: id, Name: dto.Name, Data: dto.Data})
	}

	return m.mergeInto(ctx, current, dto)
}

// MergeByName は指定名のレコードのデータに入力データを深くマージする。
// レコードが存在しない場合は作成する。入力に名前がなければ指定名を使う。
func (m *Manager) MergeByName(ctx context.Context, name string, dto *model.DTO) (model.SaveResult, error) {
	current, err := m.repo.FindByName(ctx, name, true)
	if err != nil {
		return model.SaveResult{}, fmt.Errorf("名前による検索に失敗しました: %w", err)
	}
	if current == nil {
		newName := dto.Name
		if newName == "" {
			newName = name
		}
		return m.Create(ctx, &model.DTO{Name: newName, Data: dto.Data})
	}

	return m.mergeInto(ctx, current, dto)
}

// DeleteByID は指定IDのレコードを論理削除する。
// guardがある場合はレコードの有無より先に判定する。
func (m *Manager) DeleteByID(ctx context.Context, id string) (model.SaveResult, error) {
	if res, blocked, err := m.checkGuard(ctx, id); err != nil || blocked {
		return res, err
	}

	current, err := m.repo.FindByID(ctx, id, false)
	if err != nil {
		return model.SaveResult{}, fmt.Errorf("IDによる検索に失敗しました: %w", err)
	}
	if current == nil {
		return model.SaveResult{Status: model.SaveStatusNotFound}, nil
	}
	return m.delete(ctx, current.ID)
}

// DeleteByName は指定名の削除されていないレコードを論理削除する。
func (m *Manager) DeleteByName(ctx context.Context, name string) (model.SaveResult, error) {
	current, err := m.repo.FindByName(ctx, name, false)
	if err != nil {
		return model.SaveResult{}, fmt.Errorf("名前による検索に失敗しました: %w", err)
	}
	if current == nil {
		return model.SaveResult{Status: model.SaveStatusNotFound}, nil
	}
	if res, blocked, err := m.checkGuard(ctx, current.ID); err != nil || blocked {
		return res, err
	}
	return m.delete(ctx, current.ID)
}

// checkGuard はguardが削除を拒否した場合にNotDeletableの結果とtrueを返す。
func (m *Manager) checkGuard(ctx context.Context, id string) (model.SaveResult, bool, error) {
	if m.guard == nil {
		return model.SaveResult{}, false, nil
	}
	ok, err := m.guard(ctx, id)
	if err != nil {
		return model.SaveResult{}, false, fmt.Errorf("削除可否の判定に失敗しました: %w", err)
	}
	if !ok {
		return model.SaveResult{Status: model.SaveStatusNotDeletable}, true, nil
	}
	return model.SaveResult{}, false, nil
}

func (m *Manager) delete(ctx context.Context, id string) (model.SaveResult, error) {
	deleted, err := m.repo.Delete(ctx, id)
	if err != nil {
		return model.SaveResult{}, fmt.Errorf("削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.SaveResult{Status: model.SaveStatusNotFound}, nil
	}
	return model.SaveResult{Status: model.SaveStatusDeleted}, nil
}

func (m *Manager) mergeInto(ctx context.Context, current *model.Entity, dto *model.DTO) (model.SaveResult, error) {
	merged := &model.DTO{
		Name: current.Name,
		Data: merge.Merge(current.Data, dto.Data),
	}
	if dto.Name != "" {
		merged.Name = dto.Name
	}
	return m.replace(ctx, current, merged)
}

// replace はcurrentをdtoの内容で置き換える。
func (m *Manager) replace(ctx context.Context, current *model.Entity, dto *model.DTO) (model.SaveResult, error) {
	if !current.Deleted && model.EqualContent(model.ToDTO(current), dto) {
		return model.SaveResult{Status: model.SaveStatusNotChanged, DTO: model.ToDTO(current)}, nil
	}

	ok, err := m.nameAvailable(ctx, dto.Name, current.ID)
	if err != nil {
		return model.SaveResult{}, err
	}
	if !ok {
		return model.SaveResult{Status: model.SaveStatusNameConflict}, nil
	}

	saved, err := m.repo.Update(ctx, model.ToUpdatedEntity(dto, current, m.now()))
	if errors.Is(err, repository.ErrConflict) {
		return model.SaveResult{Status: model.SaveStatusNameConflict}, nil
	}
	if err != nil {
		return model.SaveResult{}, fmt.Errorf("更新に失敗しました: %w", err)
	}
	if saved == nil {
		return model.SaveResult{Status: model.SaveStatusNotFound}, nil
	}

	status := model.SaveStatusUpdated
	if current.Deleted {
		status = model.SaveStatusCreated
	}
	return model.SaveResult{Status: status, DTO: model.ToDTO(saved)}, nil
}

// nameAvailable はnameが削除されていない他のレコードに使われていないかを返す。
// exceptIDのレコード自身が同名であるのは許可する。
func (m *Manager) nameAvailable(ctx context.Context, name, exceptID string) (bool, error) {
	found, err := m.repo.FindByName(ctx, name, false)
	if err != nil {
		return false, fmt.Errorf("名前の重複確認に失敗しました: %w", err)
	}
	return found == nil || (exceptID != "" && found.ID == exceptID), nil
}
