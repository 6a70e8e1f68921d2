package model

import "time"

// Resource はAPIが扱うリソースの種別を表す。
type Resource string

const (
	ResourceDomain Resource = "domain"
	ResourceHost   Resource = "host"
)

// Entity は永続化されるレコードを表す。ドメインとホストで共通の形を持つ。
// ホストの場合のみDomainIDに所属ドメインのIDが入る。
type Entity struct {
	ID           string
	DomainID     string
	Name         string
	Data         any // JSONデコード済みの任意の値
	Deleted      bool
	CreatedTime  time.Time
	ModifiedTime *time.Time
	DeletedTime  *time.Time
}

// Clone はDataを含めてEntityを深くコピーする。
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.Data = cloneData(e.Data)
	if e.ModifiedTime != nil {
		t := *e.ModifiedTime
		c.ModifiedTime = &t
	}
	if e.DeletedTime != nil {
		t := *e.DeletedTime
		c.DeletedTime = &t
	}
	return &c
}

// DTO はAPIで外部に公開するエンティティの形。
// 削除フラグやタイムスタンプは含まない。
type DTO struct {
	ID       string `json:"id,omitempty"`
	DomainID string `json:"domainId,omitempty"`
	Name     string `json:"name"`
	Data     any    `json:"data"`
	URL      string `json:"url,omitempty"`
}

// Page はページング取得の結果。
type Page struct {
	Entities   []*DTO `json:"entities"`
	PageNumber int    `json:"pageNumber"`
	PageSize   int    `json:"pageSize"`
	TotalCount int    `json:"totalCount"`
	PageCount  int    `json:"pageCount"`
	URL        string `json:"url,omitempty"`
}
