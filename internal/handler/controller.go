package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/inventory/internal/manager"
	"github.com/hitoshi/inventory/internal/merge"
	"github.com/hitoshi/inventory/internal/middleware"
	"github.com/hitoshi/inventory/internal/model"
)

// maxBodyBytes はリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

// Validator はリクエストボディを検証し、必要に応じて変換する。
// エラーを返した場合はそのメッセージで400を返す。
type Validator interface {
	Validate(ctx context.Context, dto *model.DTO) (*model.DTO, error)
}

// NopValidator は入力をそのまま返すValidator。
type NopValidator struct{}

// Validate はdtoをそのまま返す。
func (NopValidator) Validate(_ context.Context, dto *model.DTO) (*model.DTO, error) {
	return dto, nil
}

// SaveResultRecorder は書き込み操作の結果を記録するインターフェース。
type SaveResultRecorder interface {
	RecordSaveResult(resource model.Resource, status model.SaveStatus)
}

// ControllerOptions はControllerの生成オプション。
type ControllerOptions struct {
	Validator Validator
	PublicURL string
	Recorder  SaveResultRecorder
	Logger    *slog.Logger
	Detailed  bool
}

// Controller はドメインまたはホストに対するHTTPメソッドごとの処理を行う。
type Controller struct {
	resource   model.Resource
	idLabel    string
	managerFor func(req *Request) *manager.Manager
	validator  Validator
	publicURL  string
	recorder   SaveResultRecorder
	logger     *slog.Logger
	errw       errorWriter
}

// NewDomainController はドメイン用のControllerを生成する。
func NewDomainController(domains *manager.Manager, opts ControllerOptions) *Controller {
	return newController(model.ResourceDomain, "domainId", func(*Request) *manager.Manager {
		return domains
	}, opts)
}

// NewHostController はホスト用のControllerを生成する。
// リクエストのDomainIDは解決済みであること。
func NewHostController(hosts *manager.HostManager, opts ControllerOptions) *Controller {
	return newController(model.ResourceHost, "hostId", func(req *Request) *manager.Manager {
		return hosts.In(req.DomainID)
	}, opts)
}

func newController(resource model.Resource, idLabel string, managerFor func(*Request) *manager.Manager, opts ControllerOptions) *Controller {
	validator := opts.Validator
	if validator == nil {
		validator = NopValidator{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Controller{
		resource:   resource,
		idLabel:    idLabel,
		managerFor: managerFor,
		validator:  validator,
		publicURL:  opts.PublicURL,
		recorder:   opts.Recorder,
		logger:     logger,
		errw:       errorWriter{logger: logger, detailed: opts.Detailed},
	}
}

// Handle はリクエストをHTTPメソッドに応じて処理する。
func (c *Controller) Handle(w http.ResponseWriter, r *http.Request, req *Request) {
	var err error
	switch req.Method {
	case http.MethodGet:
		err = c.processGet(w, r, req)
	case http.MethodPost:
		err = c.processPost(w, r, req)
	case http.MethodPut:
		err = c.processPut(w, r, req)
	case http.MethodPatch:
		err = c.processPatch(w, r, req)
	case http.MethodDelete:
		err = c.processDelete(w, r, req)
	default:
		err = model.NewUnsupportedMethodError(req.Method)
	}
	if err != nil {
		c.errw.handleServiceError(w, r, err)
	}
}

// processGet はIDまたは名前による取得、もしくはページング取得を行う。
func (c *Controller) processGet(w http.ResponseWriter, r *http.Request, req *Request) error {
	m := c.managerFor(req)
	ctx := r.Context()

	var (
		dto *model.DTO
		err error
	)
	switch {
	case req.TargetID() != "":
		dto, err = m.FindByID(ctx, req.TargetID())
	case req.TargetName() != "":
		dto, err = m.FindByName(ctx, req.TargetName())
	case req.Page > 0 && req.Size > 0:
		page, err := m.GetPage(ctx, req.Page, req.Size, req.Search)
		if err != nil {
			return err
		}
		middleware.WriteEnvelope(w, http.StatusOK, c.pageWithURL(page, req), false)
		return nil
	default:
		return model.NewBadRequestError(fmt.Sprintf(":%s/name or paging is required as GET parameters", c.idLabel))
	}
	if err != nil {
		return err
	}

	if dto == nil {
		middleware.WriteEnvelope(w, http.StatusNotFound, nil, false)
		return nil
	}
	middleware.WriteEnvelope(w, http.StatusOK, c.withURL(dto), false)
	return nil
}

// processPost はコレクションに対して新しいレコードを作成する。
func (c *Controller) processPost(w http.ResponseWriter, r *http.Request, req *Request) error {
	if req.TargetID() != "" || req.TargetName() != "" {
		return model.NewBadRequestError(fmt.Sprintf(":%s/name is not allowed as a POST parameter", c.idLabel))
	}

	dto, err := c.readBody(r, true)
	if err != nil {
		return err
	}

	result, err := c.managerFor(req).Create(r.Context(), dto)
	if err != nil {
		return err
	}
	c.writeSaveResult(w, result)
	return nil
}

// processPut は指定IDのレコードを丸ごと置き換える。
func (c *Controller) processPut(w http.ResponseWriter, r *http.Request, req *Request) error {
	id := req.TargetID()
	if id == "" {
		return model.NewBadRequestError(fmt.Sprintf(":%s is required as a PUT parameter", c.idLabel))
	}

	dto, err := c.readBody(r, true)
	if err != nil {
		return err
	}

	result, err := c.managerFor(req).SaveByID(r.Context(), id, dto)
	if err != nil {
		return err
	}
	c.writeSaveResult(w, result)
	return nil
}

// processPatch は指定IDまたは名前のレコードに部分的にマージする。
func (c *Controller) processPatch(w http.ResponseWriter, r *http.Request, req *Request) error {
	id, name := req.TargetID(), req.TargetName()
	if id == "" && name == "" {
		return model.NewBadRequestError(fmt.Sprintf(":%s/name is required as a PATCH parameter", c.idLabel))
	}

	dto, err := c.readBody(r, false)
	if err != nil {
		return err
	}

	m := c.managerFor(req)
	var result model.SaveResult
	if id != "" {
		result, err = m.MergeByID(r.Context(), id, dto)
	} else {
		result, err = m.MergeByName(r.Context(), name, dto)
	}
	if err != nil {
		return err
	}
	c.writeSaveResult(w, result)
	return nil
}

// processDelete は指定IDまたは名前のレコードを論理削除する。
func (c *Controller) processDelete(w http.ResponseWriter, r *http.Request, req *Request) error {
	id, name := req.TargetID(), req.TargetName()

	m := c.managerFor(req)
	var (
		result model.SaveResult
		err    error
	)
	switch {
	case id != "":
		result, err = m.DeleteByID(r.Context(), id)
	case name != "":
		result, err = m.DeleteByName(r.Context(), name)
	default:
		return model.NewBadRequestError(fmt.Sprintf(":%s/name is required as a DELETE parameter", c.idLabel))
	}
	if err != nil {
		return err
	}
	c.writeSaveResult(w, result)
	return nil
}

// readBody はリクエストボディをJSONオブジェクトとして読み込み、Validatorを通したDTOを返す。
// requireNameがtrueの場合は空でない文字列のnameを必須とする。
func (c *Controller) readBody(r *http.Request, requireName bool) (*model.DTO, error) {
	var body any
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		return nil, model.NewBadRequestError("Request body must be a JSON object")
	}
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, model.NewBadRequestError("Request body must be a JSON object")
	}

	data, hasData := obj["data"]
	rawName, hasName := obj["name"]
	name, nameIsString := rawName.(string)

	if requireName {
		if !nameIsString || name == "" || !hasData || !merge.Truthy(data) {
			return nil, model.NewBadRequestError("Name and/or data property is missing")
		}
	} else {
		if !hasData || !merge.Truthy(data) {
			return nil, model.NewBadRequestError("Data property is missing")
		}
		if hasName && rawName != nil && !nameIsString {
			return nil, model.NewBadRequestError("Name must be a string")
		}
	}

	validated, err := c.validator.Validate(r.Context(), &model.DTO{Name: name, Data: data})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, model.NewBadRequestError(err.Error())
	}
	return validated, nil
}

// writeSaveResult は書き込み操作の結果をレスポンスに変換する。
func (c *Controller) writeSaveResult(w http.ResponseWriter, result model.SaveResult) {
	if c.recorder != nil {
		c.recorder.RecordSaveResult(c.resource, result.Status)
	}

	switch result.Status {
	case model.SaveStatusCreated:
		middleware.WriteEnvelope(w, http.StatusCreated, c.withURL(result.DTO), true)
	case model.SaveStatusUpdated:
		middleware.WriteEnvelope(w, http.StatusOK, c.withURL(result.DTO), true)
	case model.SaveStatusDeleted:
		middleware.WriteEnvelope(w, http.StatusOK, nil, true)
	case model.SaveStatusNotChanged:
		middleware.WriteEnvelope(w, http.StatusOK, c.withURL(result.DTO), false)
	case model.SaveStatusNameConflict:
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewNameConflictError())
	case model.SaveStatusNotDeletable:
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewNotDeletableError())
	case model.SaveStatusNotFound:
		middleware.WriteEnvelope(w, http.StatusNotFound, nil, false)
	default:
		c.logger.Error("unknown save status", slog.String("status", string(result.Status)))
		middleware.WriteInternalServerError(w, fmt.Errorf("unknown save status: %s", result.Status), nil, c.errw.detailed)
	}
}

// withURL はリソースのURLを付与したDTOのコピーを返す。
func (c *Controller) withURL(dto *model.DTO) *model.DTO {
	if dto == nil {
		return nil
	}
	out := *dto
	if dto.DomainID != "" {
		out.URL = c.publicURL + routeDomains + "/" + url.PathEscape(dto.DomainID) + "/hosts/" + url.PathEscape(dto.ID)
	} else {
		out.URL = c.publicURL + routeDomains + "/" + url.PathEscape(dto.ID)
	}
	return &out
}

// pageWithURL は各エンティティとページ自体にURLを付与したPageのコピーを返す。
func (c *Controller) pageWithURL(page *model.Page, req *Request) *model.Page {
	out := *page
	out.Entities = make([]*model.DTO, 0, len(page.Entities))
	for _, dto := range page.Entities {
		out.Entities = append(out.Entities, c.withURL(dto))
	}

	query := url.Values{}
	query.Set(pageParam, strconv.Itoa(req.Page))
	query.Set(sizeParam, strconv.Itoa(req.Size))
	if req.Search != "" {
		query.Set(searchParam, req.Search)
	}

	collection := c.publicURL + routeDomains
	if c.resource == model.ResourceHost {
		collection += "/" + url.PathEscape(req.DomainID) + "/hosts"
	}
	out.URL = collection + "?" + query.Encode()
	return &out
}
