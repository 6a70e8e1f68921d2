package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/inventory/internal/manager"
	"github.com/hitoshi/inventory/internal/middleware"
	"github.com/hitoshi/inventory/internal/model"
)

// Dispatcher はリクエストを解析し、リソースに応じたControllerに振り分ける。
// ホストへのリクエストは親ドメインを解決してからホスト用Controllerに渡す。
type Dispatcher struct {
	domains          *manager.Manager
	domainController *Controller
	hostController   *Controller
	defaultPageSize  int
	errw             errorWriter
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(domains *manager.Manager, domainController, hostController *Controller, defaultPageSize int, logger *slog.Logger, detailed bool) *Dispatcher {
	return &Dispatcher{
		domains:          domains,
		domainController: domainController,
		hostController:   hostController,
		defaultPageSize:  defaultPageSize,
		errw:             errorWriter{logger: logger, detailed: detailed},
	}
}

// ServeHTTP はhttp.Handlerを実装する。
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest(r, d.defaultPageSize)
	if err != nil {
		d.errw.handleServiceError(w, r, err)
		return
	}

	switch req.Resource {
	case model.ResourceDomain:
		d.domainController.Handle(w, r, req)
	case model.ResourceHost:
		domain, err := d.resolveDomain(r.Context(), req)
		if err != nil {
			d.errw.handleServiceError(w, r, err)
			return
		}
		if domain == nil {
			middleware.WriteEnvelope(w, http.StatusNotFound, nil, false)
			return
		}
		req.DomainID = domain.ID
		d.hostController.Handle(w, r, req)
	default:
		d.errw.handleServiceError(w, r, model.NewBadRequestError(model.MessageInvalidURI))
	}
}

// resolveDomain はパスで指定された親ドメインをIDまたは名前で検索する。
// 削除済みのドメインは見つからないものとして扱う。
func (d *Dispatcher) resolveDomain(ctx context.Context, req *Request) (*model.DTO, error) {
	var (
		domain *model.DTO
		err    error
	)
	switch {
	case req.DomainID != "":
		domain, err = d.domains.FindByID(ctx, req.DomainID)
	case req.DomainName != "":
		domain, err = d.domains.FindByName(ctx, req.DomainName)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("親ドメインの解決に失敗しました: %w", err)
	}
	return domain, nil
}
