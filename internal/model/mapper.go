package model

import (
	"time"

	"github.com/hitoshi/inventory/internal/merge"
)

// ToDTO はEntityを外部公開用のDTOに変換する。
func ToDTO(e *Entity) *DTO {
	if e == nil {
		return nil
	}
	return &DTO{
		ID:       e.ID,
		DomainID: e.DomainID,
		Name:     e.Name,
		Data:     cloneData(e.Data),
	}
}

// ToUpdatedEntity は現在のEntityにDTOの名前とデータを適用した新しいEntityを返す。
// 削除済みのレコードを更新する場合は復元として扱い、作成日時をnowにリセットし
// 更新日時と削除日時をクリアする。それ以外は更新日時をnowにする。
func ToUpdatedEntity(dto *DTO, current *Entity, now time.Time) *Entity {
	e := current.Clone()
	e.Name = dto.Name
	e.Data = cloneData(dto.Data)

	if current.Deleted {
		e.CreatedTime = now
		e.ModifiedTime = nil
		e.DeletedTime = nil
		e.Deleted = false
		return e
	}

	e.ModifiedTime = &now
	return e
}

// NewEntity はDTOから新規作成用のEntityを生成する。
func NewEntity(dto *DTO, now time.Time) *Entity {
	return &Entity{
		ID:          dto.ID,
		DomainID:    dto.DomainID,
		Name:        dto.Name,
		Data:        cloneData(dto.Data),
		CreatedTime: now,
	}
}

// EqualContent は2つのDTOの名前とデータが等しいかを判定する。
func EqualContent(a, b *DTO) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Name == b.Name && merge.Equal(a.Data, b.Data)
}

func cloneData(v any) any {
	return merge.Clone(v)
}
