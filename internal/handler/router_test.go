package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/inventory/internal/manager"
	"github.com/hitoshi/inventory/internal/model"
	"github.com/hitoshi/inventory/internal/repository"
)

const testPublicURL = "http://localhost:3000"

type envelope struct {
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Changed   bool            `json:"changed"`
}

type testResponse struct {
	status int
	header http.Header
	body   envelope
}

func (r testResponse) dto(t *testing.T) model.DTO {
	t.Helper()
	var dto model.DTO
	if err := json.Unmarshal(r.body.Payload, &dto); err != nil {
		t.Fatalf("failed to decode payload as DTO: %v (%s)", err, r.body.Payload)
	}
	return dto
}

func (r testResponse) reason(t *testing.T) string {
	t.Helper()
	var p struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(r.body.Payload, &p); err != nil {
		t.Fatalf("failed to decode payload as error: %v (%s)", err, r.body.Payload)
	}
	return p.Reason
}

// mockMetrics はMetricsのモック実装。
type mockMetrics struct {
	requests []int
	results  []model.SaveStatus
}

func (m *mockMetrics) ObserveRequest(method string, statusCode int, duration time.Duration) {
	m.requests = append(m.requests, statusCode)
}

func (m *mockMetrics) RecordSaveResult(resource model.Resource, status model.SaveStatus) {
	m.results = append(m.results, status)
}

type testEnv struct {
	handler http.Handler
	domains *repository.MemoryDomainRepo
	hosts   *repository.MemoryHostRepo
	metrics *mockMetrics
	logs    *bytes.Buffer
}

func newTestEnv(t *testing.T, opts ...func(*RouterDeps)) *testEnv {
	t.Helper()

	env := &testEnv{
		domains: repository.NewMemoryDomainRepo(),
		hosts:   repository.NewMemoryHostRepo(),
		metrics: &mockMetrics{},
		logs:    &bytes.Buffer{},
	}
	deps := &RouterDeps{
		Logger:          slog.New(slog.NewJSONHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		DomainManager:   manager.NewDomainManager(env.domains, env.hosts),
		HostManager:     manager.NewHostManager(env.hosts),
		PublicURL:       testPublicURL,
		DefaultPageSize: 10,
		Metrics:         env.metrics,
	}
	for _, opt := range opts {
		opt(deps)
	}
	env.handler = NewRouter(deps)
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) testResponse {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	resp := testResponse{status: w.Code, header: w.Header()}
	if err := json.Unmarshal(w.Body.Bytes(), &resp.body); err != nil {
		t.Fatalf("%s %s: failed to decode response: %v (%s)", method, target, err, w.Body.String())
	}
	return resp
}

func (e *testEnv) mustCreate(t *testing.T, target, body string) model.DTO {
	t.Helper()
	resp := e.do(t, http.MethodPost, target, body)
	if resp.status != http.StatusCreated {
		t.Fatalf("POST %s status = %d, want 201 (%s)", target, resp.status, resp.body.Payload)
	}
	return resp.dto(t)
}

// --- エンドツーエンド ---

// TestRouter_DomainLifecycle は作成・取得・ホストを持つドメインの削除拒否を通しで検証する。
func TestRouter_DomainLifecycle(t *testing.T) {
	env := newTestEnv(t)

	created := env.do(t, http.MethodPost, "/domains", `{"name":"acme","data":{}}`)
	if created.status != http.StatusCreated {
		t.Fatalf("POST /domains status = %d, want 201", created.status)
	}
	if !created.body.Changed || created.header.Get("X-Changed") != "true" {
		t.Errorf("changed = %v, X-Changed = %q, want true", created.body.Changed, created.header.Get("X-Changed"))
	}
	if _, err := time.Parse(time.RFC3339Nano, created.body.Timestamp); err != nil {
		t.Errorf("timestamp %q is not ISO-8601: %v", created.body.Timestamp, err)
	}
	domain := created.dto(t)
	if domain.Name != "acme" {
		t.Errorf("name = %q, want acme", domain.Name)
	}
	if want := testPublicURL + "/domains/" + domain.ID; domain.URL != want {
		t.Errorf("url = %q, want %q", domain.URL, want)
	}

	got := env.do(t, http.MethodGet, "/domains/acme", "")
	if got.status != http.StatusOK {
		t.Fatalf("GET /domains/acme status = %d, want 200", got.status)
	}
	if got.body.Changed {
		t.Error("GETのchangedはfalseであること")
	}
	if dto := got.dto(t); dto.ID != domain.ID || dto.URL != domain.URL {
		t.Errorf("GET /domains/acme = %+v, want %+v", dto, domain)
	}

	host := env.mustCreate(t, "/domains/acme/hosts", `{"name":"web01","data":{"ip":"10.0.0.1"}}`)
	if host.DomainID != domain.ID {
		t.Errorf("host domainId = %q, want %q", host.DomainID, domain.ID)
	}
	if want := testPublicURL + "/domains/" + domain.ID + "/hosts/" + host.ID; host.URL != want {
		t.Errorf("host url = %q, want %q", host.URL, want)
	}

	del := env.do(t, http.MethodDelete, "/domains/acme", "")
	if del.status != http.StatusConflict {
		t.Fatalf("DELETE /domains/acme status = %d, want 409", del.status)
	}
	if reason := del.reason(t); reason != "Domain having hosts cannot be removed" {
		t.Errorf("reason = %q", reason)
	}
	if del.body.Changed {
		t.Error("409のchangedはfalseであること")
	}

	if resp := env.do(t, http.MethodGet, "/domains/"+domain.ID, ""); resp.status != http.StatusOK {
		t.Errorf("削除に失敗したドメインは取得できること: status = %d", resp.status)
	}
}

// TestRouter_CreateReturnsInput は作成結果のname/dataが入力と一致することを検証する。
func TestRouter_CreateReturnsInput(t *testing.T) {
	env := newTestEnv(t)

	bodies := []string{
		`{"name":"a","data":{"x":1}}`,
		`{"name":"b","data":[1,2,3]}`,
		`{"name":"c","data":"text"}`,
		`{"name":"d","data":{"nested":{"list":[true,null]}}}`,
	}

	for _, body := range bodies {
		resp := env.do(t, http.MethodPost, "/domains", body)
		if resp.status != http.StatusCreated {
			t.Fatalf("POST %s status = %d, want 201", body, resp.status)
		}

		var in, out map[string]any
		json.Unmarshal([]byte(body), &in)
		json.Unmarshal(resp.body.Payload, &out)

		if out["name"] != in["name"] {
			t.Errorf("name = %v, want %v", out["name"], in["name"])
		}
		inData, _ := json.Marshal(in["data"])
		outData, _ := json.Marshal(out["data"])
		if !bytes.Equal(inData, outData) {
			t.Errorf("data = %s, want %s", outData, inData)
		}
	}
}

// TestRouter_DuplicateNameConflict は同名作成が409になりエンティティを返さないことを検証する。
func TestRouter_DuplicateNameConflict(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "/domains", `{"name":"acme","data":{}}`)

	resp := env.do(t, http.MethodPost, "/domains", `{"name":"acme","data":{"other":true}}`)
	if resp.status != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.status)
	}
	if string(resp.body.Payload) != `{"reason":"Name already exists"}` {
		t.Errorf("payload = %s", resp.body.Payload)
	}
	if resp.header.Get("X-Changed") != "false" {
		t.Errorf("X-Changed = %q, want false", resp.header.Get("X-Changed"))
	}
}

// TestRouter_PutUpsertAndNotChanged はPUTが存在しないIDで作成となり、同一内容ではNotChangedとなることを検証する。
func TestRouter_PutUpsertAndNotChanged(t *testing.T) {
	env := newTestEnv(t)
	const id = "0b9e6a3c-5f2d-4e8a-9c1b-7d3f2a1e4b5c"

	put := env.do(t, http.MethodPut, "/domains/"+id, `{"name":"acme","data":{"a":1}}`)
	if put.status != http.StatusCreated || !put.body.Changed {
		t.Fatalf("PUT(新規) status = %d changed = %v, want 201 true", put.status, put.body.Changed)
	}
	if dto := put.dto(t); dto.ID != id || dto.Name != "acme" {
		t.Errorf("PUT(新規) = %+v", dto)
	}

	before, _ := env.domains.FindByID(context.Background(), id, false)

	same := env.do(t, http.MethodPut, "/domains/"+id, `{"name":"acme","data":{"a":1}}`)
	if same.status != http.StatusOK || same.body.Changed {
		t.Fatalf("PUT(同一) status = %d changed = %v, want 200 false", same.status, same.body.Changed)
	}
	if same.header.Get("X-Changed") != "false" {
		t.Errorf("X-Changed = %q, want false", same.header.Get("X-Changed"))
	}

	after, _ := env.domains.FindByID(context.Background(), id, false)
	if before.ModifiedTime != nil || after.ModifiedTime != nil {
		t.Error("NotChangedではmodifiedTimeが変わらないこと")
	}

	updated := env.do(t, http.MethodPut, "/domains/"+id, `{"name":"acme","data":{"a":2}}`)
	if updated.status != http.StatusOK || !updated.body.Changed {
		t.Errorf("PUT(変更) status = %d changed = %v, want 200 true", updated.status, updated.body.Changed)
	}
}

// TestRouter_PatchByNameMergesData はPATCHがデータを深くマージすることを検証する。
func TestRouter_PatchByNameMergesData(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "/domains", `{"name":"acme","data":{"a":1,"b":2}}`)

	resp := env.do(t, http.MethodPatch, "/domains/acme", `{"data":{"c":3}}`)
	if resp.status != http.StatusOK || !resp.body.Changed {
		t.Fatalf("status = %d changed = %v, want 200 true", resp.status, resp.body.Changed)
	}

	data, _ := json.Marshal(resp.dto(t).Data)
	if string(data) != `{"a":1,"b":2,"c":3}` {
		t.Errorf("data = %s, want {\"a\":1,\"b\":2,\"c\":3}", data)
	}
}

// TestRouter_PatchByNameCreatesWhenAbsent は存在しない名前へのPATCHがパスの名前で作成されることを検証する。
func TestRouter_PatchByNameCreatesWhenAbsent(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPatch, "/domains/newcorp", `{"data":{"a":1}}`)
	if resp.status != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.status)
	}
	if dto := resp.dto(t); dto.Name != "newcorp" {
		t.Errorf("name = %q, want newcorp", dto.Name)
	}
}

// TestRouter_PatchByIDWithoutNameNotFound は存在しないIDへの名前なしPATCHが404になることを検証する。
func TestRouter_PatchByIDWithoutNameNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPatch, "/domains/0b9e6a3c-5f2d-4e8a-9c1b-7d3f2a1e4b5c", `{"data":{"a":1}}`)
	if resp.status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.status)
	}
	if string(resp.body.Payload) != "null" {
		t.Errorf("payload = %s, want null", resp.body.Payload)
	}
}

// TestRouter_HostRecreateAfterSoftDelete は論理削除したホストと同名のホストを作成できることを検証する。
func TestRouter_HostRecreateAfterSoftDelete(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "/domains", `{"name":"acme","data":{}}`)
	first := env.mustCreate(t, "/domains/acme/hosts", `{"name":"web01","data":{"v":1}}`)

	del := env.do(t, http.MethodDelete, "/domains/acme/hosts/web01", "")
	if del.status != http.StatusOK || !del.body.Changed || string(del.body.Payload) != "null" {
		t.Fatalf("DELETE status = %d changed = %v payload = %s", del.status, del.body.Changed, del.body.Payload)
	}

	if resp := env.do(t, http.MethodGet, "/domains/acme/hosts/"+first.ID, ""); resp.status != http.StatusNotFound {
		t.Errorf("削除済みホストのGET status = %d, want 404", resp.status)
	}
	if resp := env.do(t, http.MethodDelete, "/domains/acme/hosts/web01", ""); resp.status != http.StatusNotFound {
		t.Errorf("2回目のDELETE status = %d, want 404", resp.status)
	}

	second := env.mustCreate(t, "/domains/acme/hosts", `{"name":"web01","data":{"v":2}}`)
	if second.ID == first.ID {
		t.Error("新しいホストは別のIDを持つこと")
	}

	// 論理削除済みでもホストを持つドメインは削除できない
	env.do(t, http.MethodDelete, "/domains/acme/hosts/web01", "")
	if resp := env.do(t, http.MethodDelete, "/domains/acme", ""); resp.status != http.StatusConflict {
		t.Errorf("DELETE /domains/acme status = %d, want 409", resp.status)
	}
}

// TestRouter_HostsAreScopedByDomain は同名のホストを別ドメインに作成できることを検証する。
func TestRouter_HostsAreScopedByDomain(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreate(t, "/domains", `{"name":"a","data":{}}`)
	env.mustCreate(t, "/domains", `{"name":"b","data":{}}`)

	env.mustCreate(t, "/domains/a/hosts", `{"name":"web","data":{}}`)
	env.mustCreate(t, "/domains/"+a.ID+"/hosts", `{"name":"db","data":{}}`)
	env.mustCreate(t, "/domains/b/hosts", `{"name":"web","data":{}}`)

	resp := env.do(t, http.MethodGet, "/domains/b/hosts", "")
	var page model.Page
	if err := json.Unmarshal(resp.body.Payload, &page); err != nil {
		t.Fatalf("failed to decode page: %v", err)
	}
	if page.TotalCount != 1 {
		t.Errorf("domain b totalCount = %d, want 1", page.TotalCount)
	}
}

// TestRouter_Paging はページングの件数、並び順、ページ数を検証する。
func TestRouter_Paging(t *testing.T) {
	env := newTestEnv(t)
	for i := 12; i >= 1; i-- {
		env.mustCreate(t, "/domains", fmt.Sprintf(`{"name":"d%02d","data":{}}`, i))
	}

	resp := env.do(t, http.MethodGet, "/domains?page=1&size=10", "")
	if resp.status != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.status)
	}

	var page model.Page
	if err := json.Unmarshal(resp.body.Payload, &page); err != nil {
		t.Fatalf("failed to decode page: %v", err)
	}
	if len(page.Entities) != 10 {
		t.Fatalf("entities = %d, want 10", len(page.Entities))
	}
	for i, e := range page.Entities {
		if want := fmt.Sprintf("d%02d", i+1); e.Name != want {
			t.Errorf("entities[%d].name = %q, want %q", i, e.Name, want)
		}
		if e.URL == "" {
			t.Errorf("entities[%d].url is empty", i)
		}
	}
	if page.TotalCount != 12 || page.PageCount != 2 || page.PageNumber != 1 || page.PageSize != 10 {
		t.Errorf("page = %+v", page)
	}
	if want := testPublicURL + "/domains?page=1&size=10"; page.URL != want {
		t.Errorf("url = %q, want %q", page.URL, want)
	}

	searched := env.do(t, http.MethodGet, "/domains?search=D1", "")
	json.Unmarshal(searched.body.Payload, &page)
	if page.TotalCount != 3 {
		t.Errorf("search totalCount = %d, want 3 (d10, d11, d12)", page.TotalCount)
	}
	if want := testPublicURL + "/domains?page=1&search=D1&size=10"; page.URL != want {
		t.Errorf("url = %q, want %q", page.URL, want)
	}
}

// TestRouter_HostWithUnknownDomain は存在しない親ドメインへのホスト操作が404になることを検証する。
func TestRouter_HostWithUnknownDomain(t *testing.T) {
	env := newTestEnv(t)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		body := ""
		if method == http.MethodPost {
			body = `{"name":"web","data":{}}`
		}
		resp := env.do(t, method, "/domains/missing/hosts", body)
		if resp.status != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", method, resp.status)
		}
		if string(resp.body.Payload) != "null" {
			t.Errorf("%s payload = %s, want null", method, resp.body.Payload)
		}
	}

	count, _ := env.hosts.CountAll(context.Background(), "")
	if count != 0 {
		t.Errorf("ホストが作成されてはならない: %d", count)
	}
}

// TestRouter_BadRequests は不正なリクエストが400と理由を返すことを検証する。
func TestRouter_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "/domains", `{"name":"acme","data":{}}`)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantReason string
	}{
		{"POSTにID指定", http.MethodPost, "/domains/acme", `{"name":"x","data":{}}`, ":domainId/name is not allowed as a POST parameter"},
		{"PUTに名前指定", http.MethodPut, "/domains/acme", `{"name":"x","data":{}}`, ":domainId is required as a PUT parameter"},
		{"PATCHに指定なし", http.MethodPatch, "/domains", `{"data":{}}`, ":domainId/name is required as a PATCH parameter"},
		{"DELETEに指定なし", http.MethodDelete, "/domains/acme/hosts", "", ":hostId/name is required as a DELETE parameter"},
		{"ホストPOSTにID指定", http.MethodPost, "/domains/acme/hosts/web", `{"name":"x","data":{}}`, ":hostId/name is not allowed as a POST parameter"},
		{"nameなし", http.MethodPost, "/domains", `{"data":{"a":1}}`, "Name and/or data property is missing"},
		{"dataなし", http.MethodPost, "/domains", `{"name":"x"}`, "Name and/or data property is missing"},
		{"空のname", http.MethodPost, "/domains", `{"name":"","data":{}}`, "Name and/or data property is missing"},
		{"PATCHでdataなし", http.MethodPatch, "/domains/acme", `{"name":"y"}`, "Data property is missing"},
		{"PATCHでnameが文字列でない", http.MethodPatch, "/domains/acme", `{"name":1,"data":{}}`, "Name must be a string"},
		{"JSONでない", http.MethodPost, "/domains", `not json`, "Request body must be a JSON object"},
		{"配列", http.MethodPost, "/domains", `[1,2]`, "Request body must be a JSON object"},
		{"不明なパス", http.MethodGet, "/domains/acme/hosts/web/extra", "", "Invalid request uri"},
		{"ルート", http.MethodGet, "/", "", "Invalid request uri"},
		{"未対応メソッド", http.MethodOptions, "/domains", "", "Unsupported method: OPTIONS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, tt.method, tt.target, tt.body)
			if resp.status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", resp.status, resp.body.Payload)
			}
			if reason := resp.reason(t); reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", reason, tt.wantReason)
			}
			if resp.body.Changed {
				t.Error("changed = true, want false")
			}
		})
	}
}

// TestRouter_TrailingSlash は末尾スラッシュ付きのパスも受け付けることを検証する。
func TestRouter_TrailingSlash(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "/domains/", `{"name":"acme","data":{}}`)

	if resp := env.do(t, http.MethodGet, "/domains/acme/", ""); resp.status != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.status)
	}
}

// TestRouter_EncodedNames はパーセントエンコードされた名前を一度だけデコードして引くことを検証する。
func TestRouter_EncodedNames(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreate(t, "/domains", `{"name":"a/b","data":{}}`)
	env.mustCreate(t, "/domains", `{"name":"100%41","data":{}}`)
	env.mustCreate(t, "/domains", `{"name":"a%2Fb","data":{}}`)
	env.mustCreate(t, "/domains", `{"name":"acme corp","data":{}}`)

	tests := []struct {
		target string
		want   string
	}{
		{"/domains/a%2Fb", "a/b"},
		{"/domains/a%2Fb/", "a/b"},
		{"/domains/100%2541", "100%41"},
		{"/domains/100%2541/", "100%41"},
		{"/domains/a%252Fb", "a%2Fb"},
		{"/domains/acme%20corp", "acme corp"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, tt.target, "")
			if resp.status != http.StatusOK {
				t.Fatalf("status = %d, want 200 (%s)", resp.status, resp.body.Payload)
			}
			if got := resp.dto(t).Name; got != tt.want {
				t.Errorf("name = %q, want %q", got, tt.want)
			}
		})
	}

	// 存在しない"100A"には解決されない
	if resp := env.do(t, http.MethodGet, "/domains/100A", ""); resp.status != http.StatusNotFound {
		t.Errorf("GET /domains/100A status = %d, want 404", resp.status)
	}
}

type rejectingValidator struct{}

func (rejectingValidator) Validate(_ context.Context, dto *model.DTO) (*model.DTO, error) {
	if strings.Contains(dto.Name, " ") {
		return nil, errors.New("Name must not contain spaces")
	}
	dto.Name = strings.ToLower(dto.Name)
	return dto, nil
}

// TestRouter_ValidatorTransformsAndRejects はValidatorによる変換と拒否を検証する。
func TestRouter_ValidatorTransformsAndRejects(t *testing.T) {
	env := newTestEnv(t, func(d *RouterDeps) {
		d.DomainValidator = rejectingValidator{}
	})

	created := env.mustCreate(t, "/domains", `{"name":"ACME","data":{}}`)
	if created.Name != "acme" {
		t.Errorf("name = %q, want acme", created.Name)
	}

	resp := env.do(t, http.MethodPost, "/domains", `{"name":"a b","data":{}}`)
	if resp.status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.status)
	}
	if reason := resp.reason(t); reason != "Name must not contain spaces" {
		t.Errorf("reason = %q", reason)
	}
}

// failingDomainRepo は検索で常に失敗するDomainRepository。
type failingDomainRepo struct {
	*repository.MemoryDomainRepo
}

func (failingDomainRepo) FindByName(context.Context, string, bool) (*model.Entity, error) {
	return nil, errors.New("connection refused")
}

// TestRouter_InternalError はリポジトリの障害が500になり、本番モードでは詳細を隠すことを検証する。
func TestRouter_InternalError(t *testing.T) {
	tests := []struct {
		name       string
		detailed   bool
		wantDetail bool
	}{
		{"本番モード", false, false},
		{"開発モード", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hosts := repository.NewMemoryHostRepo()
			domains := failingDomainRepo{repository.NewMemoryDomainRepo()}
			env := newTestEnv(t, func(d *RouterDeps) {
				d.DomainManager = manager.NewDomainManager(domains, hosts)
				d.Detailed = tt.detailed
			})

			resp := env.do(t, http.MethodGet, "/domains/acme", "")
			if resp.status != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", resp.status)
			}

			var payload map[string]any
			json.Unmarshal(resp.body.Payload, &payload)
			if payload["reason"] != "Internal server error" {
				t.Errorf("reason = %v", payload["reason"])
			}
			errMsg, hasErr := payload["error"].(string)
			if hasErr != tt.wantDetail {
				t.Errorf("error included = %v, want %v", hasErr, tt.wantDetail)
			}
			if tt.wantDetail && !strings.Contains(errMsg, "connection refused") {
				t.Errorf("error = %q, want containing cause", errMsg)
			}
			if !strings.Contains(env.logs.String(), "connection refused") {
				t.Error("内部エラーはログに記録されること")
			}
		})
	}
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		checker    HealthChecker
		wantStatus int
	}{
		{"チェッカーなし", nil, http.StatusOK},
		{"正常", &mockHealthChecker{}, http.StatusOK},
		{"DB障害", &mockHealthChecker{err: errors.New("down")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(d *RouterDeps) {
				d.HealthChecker = tt.checker
			})
			if resp := env.do(t, http.MethodGet, "/health", ""); resp.status != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.status, tt.wantStatus)
			}
		})
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, func(d *RouterDeps) {
		d.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("inventory_http_requests_total 1\n"))
		})
	})

	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "inventory_http_requests_total") {
		t.Errorf("GET /metrics status = %d body = %q", w.Code, w.Body.String())
	}
}

// TestRouter_RecordsMetrics はリクエストと書き込み結果がメトリクスに記録されることを検証する。
func TestRouter_RecordsMetrics(t *testing.T) {
	env := newTestEnv(t)

	env.mustCreate(t, "/domains", `{"name":"acme","data":{}}`)
	env.do(t, http.MethodPost, "/domains", `{"name":"acme","data":{}}`)

	if len(env.metrics.requests) != 2 || env.metrics.requests[1] != http.StatusConflict {
		t.Errorf("requests = %v, want [201 409]", env.metrics.requests)
	}
	want := []model.SaveStatus{model.SaveStatusCreated, model.SaveStatusNameConflict}
	if len(env.metrics.results) != 2 || env.metrics.results[0] != want[0] || env.metrics.results[1] != want[1] {
		t.Errorf("results = %v, want %v", env.metrics.results, want)
	}
}
