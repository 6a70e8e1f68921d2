package repository

import (
	"context"
	"io"
	"log/slog"

	"github.com/hitoshi/inventory/internal/model"
)

// EventType はリポジトリで発生した変更の種別。
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event はリポジトリの変更通知。
// Deletedの場合のEntityは論理削除後のレコード。
type Event struct {
	Type     EventType
	Resource model.Resource
	Entity   *model.Entity
}

// EventListener はリポジトリの変更通知を受け取るインターフェース。
type EventListener interface {
	OnEvent(ctx context.Context, ev Event)
}

// EventListenerFunc は関数をEventListenerとして扱うためのアダプタ。
type EventListenerFunc func(ctx context.Context, ev Event)

// OnEvent はf(ctx, ev)を呼び出す。
func (f EventListenerFunc) OnEvent(ctx context.Context, ev Event) {
	f(ctx, ev)
}

type publisher struct {
	resource  model.Resource
	listeners []EventListener
	logger    *slog.Logger
}

func newPublisher(resource model.Resource, logger *slog.Logger, listeners []EventListener) publisher {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return publisher{resource: resource, listeners: listeners, logger: logger}
}

// publishDeleted は削除済みレコードを再取得して通知する。
// 削除自体は成功しているため、再取得の失敗はログに残すだけにする。
func (p *publisher) publishDeleted(ctx context.Context, id string, reread func() (*model.Entity, error)) {
	deleted, err := reread()
	if err != nil {
		p.logger.WarnContext(ctx, "削除済みレコードの再取得に失敗しました",
			slog.String("resource", string(p.resource)),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	p.publish(ctx, EventDeleted, deleted)
}

func (p *publisher) publish(ctx context.Context, typ EventType, e *model.Entity) {
	if e == nil {
		return
	}
	for _, l := range p.listeners {
		l.OnEvent(ctx, Event{Type: typ, Resource: p.resource, Entity: e.Clone()})
	}
}

// ObservableDomainRepo は書き込み操作の成功をリスナーへ通知するDomainRepositoryのデコレータ。
type ObservableDomainRepo struct {
	DomainRepository
	pub publisher
}

var _ DomainRepository = (*ObservableDomainRepo)(nil)

// NewObservableDomainRepo はinnerをラップしたObservableDomainRepoを生成する。
// loggerがnilの場合は通知の失敗を記録しない。
func NewObservableDomainRepo(inner DomainRepository, logger *slog.Logger, listeners ...EventListener) *ObservableDomainRepo {
	return &ObservableDomainRepo{
		DomainRepository: inner,
		pub:              newPublisher(model.ResourceDomain, logger, listeners),
	}
}

func (r *ObservableDomainRepo) Create(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	created, err := r.DomainRepository.Create(ctx, e)
	if err != nil {
		return nil, err
	}
	r.pub.publish(ctx, EventCreated, created)
	return created, nil
}

func (r *ObservableDomainRepo) Update(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	updated, err := r.DomainRepository.Update(ctx, e)
	if err != nil {
		return nil, err
	}
	r.pub.publish(ctx, EventUpdated, updated)
	return updated, nil
}

func (r *ObservableDomainRepo) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := r.DomainRepository.Delete(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	r.pub.publishDeleted(ctx, id, func() (*model.Entity, error) {
		return r.DomainRepository.FindByID(ctx, id, true)
	})
	return true, nil
}

// ObservableHostRepo は書き込み操作の成功をリスナーへ通知するHostRepositoryのデコレータ。
type ObservableHostRepo struct {
	HostRepository
	pub publisher
}

var _ HostRepository = (*ObservableHostRepo)(nil)

// NewObservableHostRepo はinnerをラップしたObservableHostRepoを生成する。
func NewObservableHostRepo(inner HostRepository, logger *slog.Logger, listeners ...EventListener) *ObservableHostRepo {
	return &ObservableHostRepo{
		HostRepository: inner,
		pub:            newPublisher(model.ResourceHost, logger, listeners),
	}
}

func (r *ObservableHostRepo) Create(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	created, err := r.HostRepository.Create(ctx, e)
	if err != nil {
		return nil, err
	}
	r.pub.publish(ctx, EventCreated, created)
	return created, nil
}

func (r *ObservableHostRepo) Update(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	updated, err := r.HostRepository.Update(ctx, e)
	if err != nil {
		return nil, err
	}
	r.pub.publish(ctx, EventUpdated, updated)
	return updated, nil
}

func (r *ObservableHostRepo) Delete(ctx context.Context, domainID, id string) (bool, error) {
	ok, err := r.HostRepository.Delete(ctx, domainID, id)
	if err != nil || !ok {
		return ok, err
	}
	r.pub.publishDeleted(ctx, id, func() (*model.Entity, error) {
		return r.HostRepository.FindByID(ctx, domainID, id, true)
	})
	return true, nil
}
