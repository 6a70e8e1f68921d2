package handler

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/inventory/internal/model"
)

// ルートパターン
const (
	routeDomains = "/domains"
	routeDomain  = "/domains/{domain}"
	routeHosts   = "/domains/{domain}/hosts"
	routeHost    = "/domains/{domain}/hosts/{host}"
)

// クエリパラメータ名
const (
	pageParam   = "page"
	sizeParam   = "size"
	searchParam = "search"
)

var idPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Request はURLとメソッドから解析したリクエスト記述子。
// ID/Nameはパスのセグメントがどちらとして解釈されたかに応じて片方だけが入る。
type Request struct {
	Method     string
	Resource   model.Resource
	DomainID   string
	DomainName string
	HostID     string
	HostName   string
	Page       int
	Size       int
	Search     string
}

// TargetID は操作対象リソースのIDを返す。
func (r *Request) TargetID() string {
	if r.Resource == model.ResourceHost {
		return r.HostID
	}
	return r.DomainID
}

// TargetName は操作対象リソースの名前を返す。
func (r *Request) TargetName() string {
	if r.Resource == model.ResourceHost {
		return r.HostName
	}
	return r.DomainName
}

// ParseRequest はchiでルーティング済みのリクエストから記述子を組み立てる。
// page/sizeは正の整数でなければデフォルト値を使う。
func ParseRequest(r *http.Request, defaultPageSize int) (*Request, error) {
	if !isSupportedMethod(r.Method) {
		return nil, model.NewUnsupportedMethodError(r.Method)
	}

	req := &Request{Method: r.Method}

	var pattern string
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		pattern = rctx.RoutePattern()
	}
	switch pattern {
	case routeDomains, routeDomain:
		req.Resource = model.ResourceDomain
	case routeHosts, routeHost:
		req.Resource = model.ResourceHost
	default:
		return nil, model.NewBadRequestError(model.MessageInvalidURI)
	}

	// chiはRawPathがあればそれで、なければデコード済みのPathでルーティングする
	escaped := r.URL.RawPath != ""
	req.DomainID, req.DomainName = parseIDOrName(chi.URLParam(r, "domain"), escaped)
	req.HostID, req.HostName = parseIDOrName(chi.URLParam(r, "host"), escaped)

	query := r.URL.Query()
	req.Page = parsePositiveInt(query.Get(pageParam), 1)
	req.Size = parsePositiveInt(query.Get(sizeParam), defaultPageSize)
	req.Search = query.Get(searchParam)

	return req, nil
}

func isSupportedMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// parseIDOrName はパスのセグメントがUUIDv4ならIDとして、それ以外は名前として返す。
// escapedがtrueの場合のみセグメントをデコードする。
func parseIDOrName(segment string, escaped bool) (id, name string) {
	if segment == "" {
		return "", ""
	}
	if idPattern.MatchString(segment) {
		if u, err := uuid.Parse(segment); err == nil && u.Version() == 4 && u.Variant() == uuid.RFC4122 {
			return u.String(), ""
		}
	}
	if !escaped {
		return "", segment
	}
	if decoded, err := url.PathUnescape(segment); err == nil {
		return "", decoded
	}
	return "", segment
}

func parsePositiveInt(s string, defaultVal int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
