package repository

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hitoshi/inventory/internal/model"
)

type recordingListener struct {
	events []Event
}

func (l *recordingListener) OnEvent(_ context.Context, ev Event) {
	l.events = append(l.events, ev)
}

func TestObservableDomainRepo_PublishesWriteEvents(t *testing.T) {
	listener := &recordingListener{}
	repo := NewObservableDomainRepo(NewMemoryDomainRepo(), nil, listener)
	ctx := context.Background()

	created, err := repo.Create(ctx, &model.Entity{Name: "acme"})
	if err != nil {
		t.Fatalf("Create() がエラーを返した: %v", err)
	}
	created.Name = "acme2"
	if _, err := repo.Update(ctx, created); err != nil {
		t.Fatalf("Update() がエラーを返した: %v", err)
	}
	if _, err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() がエラーを返した: %v", err)
	}

	want := []EventType{EventCreated, EventUpdated, EventDeleted}
	if len(listener.events) != len(want) {
		t.Fatalf("イベント数 = %d, want %d", len(listener.events), len(want))
	}
	for i, ev := range listener.events {
		if ev.Type != want[i] {
			t.Errorf("events[%d].Type = %s, want %s", i, ev.Type, want[i])
		}
		if ev.Resource != model.ResourceDomain {
			t.Errorf("events[%d].Resource = %s, want domain", i, ev.Resource)
		}
	}

	deleted := listener.events[2].Entity
	if deleted == nil || !deleted.Deleted {
		t.Errorf("削除イベントのEntity = %+v, want 論理削除済みレコード", deleted)
	}
}

func TestObservableDomainRepo_NoEventOnFailedWrite(t *testing.T) {
	listener := &recordingListener{}
	repo := NewObservableDomainRepo(NewMemoryDomainRepo(), nil, listener)
	ctx := context.Background()

	repo.Create(ctx, &model.Entity{Name: "acme"})
	repo.Create(ctx, &model.Entity{Name: "acme"}) // ErrConflict
	repo.Delete(ctx, "6f1c7c4e-2b8a-4d8e-9f3a-1c2d3e4f5a6b")

	if len(listener.events) != 1 {
		t.Errorf("イベント数 = %d, want 1（失敗した書き込みは通知しない）", len(listener.events))
	}
}

func TestObservableHostRepo_PublishesWithHostResource(t *testing.T) {
	var got []Event
	repo := NewObservableHostRepo(NewMemoryHostRepo(), nil, EventListenerFunc(func(_ context.Context, ev Event) {
		got = append(got, ev)
	}))
	ctx := context.Background()

	h, _ := repo.Create(ctx, &model.Entity{DomainID: "d1", Name: "web01"})
	repo.Delete(ctx, "d1", h.ID)

	if len(got) != 2 {
		t.Fatalf("イベント数 = %d, want 2", len(got))
	}
	for _, ev := range got {
		if ev.Resource != model.ResourceHost {
			t.Errorf("Resource = %s, want host", ev.Resource)
		}
		if ev.Entity.DomainID != "d1" {
			t.Errorf("Entity.DomainID = %q, want d1", ev.Entity.DomainID)
		}
	}
}

// rereadFailingDomainRepo は論理削除後の再取得だけが失敗するDomainRepository。
type rereadFailingDomainRepo struct {
	*MemoryDomainRepo
}

func (r rereadFailingDomainRepo) FindByID(ctx context.Context, id string, allowDeleted bool) (*model.Entity, error) {
	if allowDeleted {
		return nil, errors.New("connection reset")
	}
	return r.MemoryDomainRepo.FindByID(ctx, id, allowDeleted)
}

// TestObservableDomainRepo_DeleteSucceedsWhenRereadFails は削除後の再取得に失敗しても
// 削除の成功を返し、失敗をログに残すことを検証する。
func TestObservableDomainRepo_DeleteSucceedsWhenRereadFails(t *testing.T) {
	var logs bytes.Buffer
	listener := &recordingListener{}
	inner := rereadFailingDomainRepo{NewMemoryDomainRepo()}
	repo := NewObservableDomainRepo(inner, slog.New(slog.NewJSONHandler(&logs, nil)), listener)
	ctx := context.Background()

	created, err := repo.Create(ctx, &model.Entity{Name: "acme"})
	if err != nil {
		t.Fatalf("Create() がエラーを返した: %v", err)
	}

	ok, err := repo.Delete(ctx, created.ID)
	if err != nil || !ok {
		t.Fatalf("Delete() = (%v, %v), want (true, nil)", ok, err)
	}
	if e, _ := inner.MemoryDomainRepo.FindByID(ctx, created.ID, false); e != nil {
		t.Error("レコードが論理削除されていない")
	}
	if len(listener.events) != 1 {
		t.Errorf("イベント数 = %d, want 1（削除イベントは通知されない）", len(listener.events))
	}
	if !strings.Contains(logs.String(), "connection reset") {
		t.Errorf("再取得の失敗がログに記録されていない: %s", logs.String())
	}
}
