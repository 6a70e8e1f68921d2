package model

// SaveStatus は書き込み系操作の結果種別。
type SaveStatus string

const (
	SaveStatusCreated      SaveStatus = "created"
	SaveStatusUpdated      SaveStatus = "updated"
	SaveStatusDeleted      SaveStatus = "deleted"
	SaveStatusNotChanged   SaveStatus = "not_changed"
	SaveStatusNameConflict SaveStatus = "name_conflict"
	SaveStatusNotDeletable SaveStatus = "not_deletable"
	SaveStatusNotFound     SaveStatus = "not_found"
)

// SaveResult は書き込み系操作の結果。
// DTOはCreated/Updated/NotChangedの場合のみ設定される。
type SaveResult struct {
	Status SaveStatus
	DTO    *DTO
}

// Changed は結果が永続化された状態を変更したかを返す。
func (r SaveResult) Changed() bool {
	switch r.Status {
	case SaveStatusCreated, SaveStatusUpdated, SaveStatusDeleted:
		return true
	default:
		return false
	}
}
