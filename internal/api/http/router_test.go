package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/metrics"
	"serialrent-backend/internal/pricing"
	"serialrent-backend/internal/repository/memory"
	"serialrent-backend/internal/security"
	"serialrent-backend/internal/service"
	"serialrent-backend/internal/storage"
)

const scannerKey = "dock-scanner-key"

type recordingBiller struct {
	mu       sync.Mutex
	requests []domain.BillingRequest
}

func (b *recordingBiller) CreateInvoice(_ context.Context, req domain.BillingRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	return "INV-1", nil
}

type apiEnv struct {
	router http.Handler
	token  string
	biller *recordingBiller
}

type response struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
	Error   *errorBody          `json:"error"`
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	store := memory.NewStore()
	m := metrics.New()

	files, err := storage.NewLocalStorage("", t.TempDir())
	require.NoError(t, err)
	photos := service.NewPhotoService(store, files, time.Minute, []string{"image/jpeg"})

	registry := service.NewSerialRegistry(store, security.NewTagIssuer("tag-secret-tag-secret-tag-secret"), "SN", m)
	engine, err := service.NewAllocationEngine(store, registry, false, m)
	require.NoError(t, err)
	returns := service.NewReturnAssessment(store, pricing.DefaultPolicy(), photos, false, m)
	biller := &recordingBiller{}
	lifecycle, err := service.NewLifecycleService(store, engine, returns, biller, true)
	require.NoError(t, err)
	catalog := service.NewCatalogService(store)
	scans := service.NewScanService(store, registry, lifecycle, m)

	tokens := security.NewTokenManager("access-secret-access-secret-1234", time.Hour)
	hash, err := security.HashAPIKey(scannerKey)
	require.NoError(t, err)
	token, err := tokens.GenerateAccessToken("alice", nil)
	require.NoError(t, err)

	router := NewRouter(RouterDeps{
		Handler: NewHandler(catalog, registry, lifecycle, scans, photos),
		Auth:    NewAuthenticator(tokens, security.NewAPIKeyVerifier([]string{hash}), "scanner"),
		Photos:  NewPhotoFileHandler(files, []string{"image/jpeg"}, 1),
		Metrics: m,
	})
	return &apiEnv{router: router, token: token, biller: biller}
}

func (e *apiEnv) send(t *testing.T, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// call sends an authenticated request and decodes the envelope.
func (e *apiEnv) call(t *testing.T, method, target string, body any) (int, response) {
	t.Helper()
	rec := e.send(t, method, target, body, map[string]string{"Authorization": "Bearer " + e.token})
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func (e *apiEnv) mustCall(t *testing.T, method, target string, body any, wantStatus int, out any) {
	t.Helper()
	status, resp := e.call(t, method, target, body)
	require.Equal(t, wantStatus, status, resp.Message)
	if out != nil {
		require.NoError(t, json.Unmarshal(resp.Data, out))
	}
}

func (e *apiEnv) seedEquipment(t *testing.T, code string, units int) (domain.Equipment, []domain.SerialUnit) {
	t.Helper()
	var eq domain.Equipment
	e.mustCall(t, http.MethodPost, "/api/v1/equipment", map[string]any{
		"code": code, "name": code, "daily_rate": "50", "item_value": "1000", "tracks_serials": true,
	}, http.StatusCreated, &eq)

	var gen domain.GenerateSerialsResult
	e.mustCall(t, http.MethodPost, "/api/v1/equipment/"+itoa(eq.ID)+"/serials/generate",
		map[string]any{"prefix": code, "start": 1, "count": units}, http.StatusCreated, &gen)
	require.Len(t, gen.Created, units)
	return eq, gen.Created
}

func itoa(id int32) string {
	return strconv.Itoa(int(id))
}

func TestAuthentication(t *testing.T) {
	e := newAPIEnv(t)

	rec := e.send(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.send(t, http.MethodGet, "/api/v1/equipment", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.send(t, http.MethodGet, "/api/v1/equipment", nil, map[string]string{"Authorization": "Bearer nonsense"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	status, _ := e.call(t, http.MethodGet, "/api/v1/equipment", nil)
	assert.Equal(t, http.StatusOK, status)

	// Scanner keys only open scanner routes.
	rec = e.send(t, http.MethodGet, "/api/v1/equipment", nil, map[string]string{"X-Api-Key": scannerKey})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.send(t, http.MethodPost, "/api/v1/scan", map[string]string{"token": "X", "action": "verify"},
		map[string]string{"X-Api-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.send(t, http.MethodPost, "/api/v1/scan", map[string]string{"token": "X", "action": "verify"},
		map[string]string{"X-Api-Key": scannerKey})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRentalFlow(t *testing.T) {
	e := newAPIEnv(t)
	eq, serials := e.seedEquipment(t, "CAM", 2)

	today := domain.Day(time.Now())
	start := today.AddDate(0, 0, -1).Format(domain.DateLayout)
	end := today.AddDate(0, 0, 3).Format(domain.DateLayout)

	var avail domain.Availability
	e.mustCall(t, http.MethodGet, "/api/v1/equipment/"+itoa(eq.ID)+"/availability?start="+start+"&end="+end+"&quantity=3",
		nil, http.StatusOK, &avail)
	assert.Equal(t, 2, avail.Available)

	var project struct {
		ID        int32                `json:"id"`
		Reference string               `json:"reference"`
		State     domain.LineItemState `json:"state"`
	}
	e.mustCall(t, http.MethodPost, "/api/v1/projects", map[string]any{
		"customer_name": "Acme Films", "customer_email": "ops@acme.test", "start_date": start, "end_date": end,
	}, http.StatusCreated, &project)
	assert.NotEmpty(t, project.Reference)

	var item domain.RentalLineItem
	e.mustCall(t, http.MethodPost, "/api/v1/projects/"+itoa(project.ID)+"/items",
		map[string]any{"equipment_id": eq.ID, "quantity": 2}, http.StatusCreated, &item)
	assert.Equal(t, domain.LineItemStateDraft, item.State)

	itemURL := "/api/v1/items/" + itoa(item.ID)

	// Returning a draft is not a lifecycle step.
	status, resp := e.call(t, http.MethodPost, itemURL+"/return", map[string]any{})
	assert.Equal(t, http.StatusConflict, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "illegal lifecycle transition", resp.Error.Kind)
	assert.Equal(t, "DRAFT", resp.Error.Current)

	var res service.TransitionResult
	e.mustCall(t, http.MethodPost, itemURL+"/transition", map[string]any{"target": "RESERVED"}, http.StatusOK, &res)
	assert.ElementsMatch(t, []int32{serials[0].ID, serials[1].ID}, res.Item.SerialIDs)

	e.mustCall(t, http.MethodPost, itemURL+"/start", nil, http.StatusOK, &res)
	assert.Equal(t, domain.LineItemStateOngoing, res.Item.State)

	// Both units must be assessed.
	status, resp = e.call(t, http.MethodPost, itemURL+"/return", map[string]any{
		"conditions": []map[string]any{{"serial_id": serials[0].ID, "condition": "GOOD"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, []int32{serials[1].ID}, resp.Error.IDs)

	e.mustCall(t, http.MethodPost, itemURL+"/return", map[string]any{
		"conditions": []map[string]any{
			{"serial_id": serials[0].ID, "condition": "GOOD"},
			{"serial_id": serials[1].ID, "condition": "GOOD"},
		},
	}, http.StatusOK, &res)
	assert.Equal(t, domain.LineItemStateReturned, res.Item.State)
	assert.True(t, res.Item.LateFee.IsZero())

	e.mustCall(t, http.MethodPost, itemURL+"/invoice", nil, http.StatusOK, &res)
	assert.Equal(t, "INV-1", res.Item.InvoiceRef)
	require.Len(t, e.biller.requests, 1)
	assert.True(t, e.biller.requests[0].Total.Equal(decimal.NewFromInt(500)), e.biller.requests[0].Total.String())

	e.mustCall(t, http.MethodGet, "/api/v1/projects/"+itoa(project.ID), nil, http.StatusOK, &project)
	assert.Equal(t, domain.LineItemStateInvoiced, project.State)

	var history []domain.StatusHistoryEntry
	e.mustCall(t, http.MethodGet, "/api/v1/history?line_item_id="+itoa(item.ID)+"&to_state=RETURNED", nil, http.StatusOK, &history)
	assert.Len(t, history, 2)
	for _, h := range history {
		assert.Equal(t, "alice", h.Actor)
	}
}

func TestErrorMapping(t *testing.T) {
	e := newAPIEnv(t)
	_, serials := e.seedEquipment(t, "LENS", 1)
	serialURL := "/api/v1/serials/" + itoa(serials[0].ID)

	status, resp := e.call(t, http.MethodGet, "/api/v1/serials/999", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not found", resp.Error.Kind)

	status, resp = e.call(t, http.MethodPost, serialURL+"/state", map[string]string{"state": "RETURNED"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "illegal serial transition", resp.Error.Kind)
	assert.Equal(t, "AVAILABLE", resp.Error.Current)
	assert.Equal(t, "RETURNED", resp.Error.Requested)

	status, _ = e.call(t, http.MethodPost, "/api/v1/projects", map[string]any{"customer_name": "X", "start_date": "soon"})
	assert.Equal(t, http.StatusBadRequest, status)

	rec := e.send(t, http.MethodPost, "/api/v1/categories", nil, map[string]string{"Authorization": "Bearer " + e.token})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSerialDeleteAndTags(t *testing.T) {
	e := newAPIEnv(t)
	_, serials := e.seedEquipment(t, "MIC", 2)

	var tag map[string]string
	e.mustCall(t, http.MethodGet, "/api/v1/serials/"+itoa(serials[0].ID)+"/tag", nil, http.StatusOK, &tag)
	require.NotEmpty(t, tag["tag"])

	// Scanner keys may resolve tags.
	rec := e.send(t, http.MethodGet, "/api/v1/serials/by-code/"+url.PathEscape(tag["tag"]), nil,
		map[string]string{"X-Api-Key": scannerKey})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"MIC-0001"`)

	var outcome map[string]string
	e.mustCall(t, http.MethodPost, "/api/v1/serials/"+itoa(serials[1].ID)+"/state",
		map[string]string{"state": "DISPOSED", "note": "dropped"}, http.StatusOK, nil)
	e.mustCall(t, http.MethodDelete, "/api/v1/serials/"+itoa(serials[0].ID), nil, http.StatusOK, &outcome)
	assert.Equal(t, "DELETED", outcome["outcome"])

	status, _ := e.call(t, http.MethodDelete, "/api/v1/serials/"+itoa(serials[1].ID)+"?hard=true", nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestScanRecordsScannerActor(t *testing.T) {
	e := newAPIEnv(t)
	_, serials := e.seedEquipment(t, "LIGHT", 1)

	rec := e.send(t, http.MethodPost, "/api/v1/scan",
		map[string]string{"token": "LIGHT-0001", "action": "verify", "actor": "spoofed"},
		map[string]string{"X-Api-Key": scannerKey, "X-Scanner-Id": "dock-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	var result domain.ScanResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, domain.ScanLevelSuccess, result.Level)

	var logs []domain.ScanLog
	e.mustCall(t, http.MethodGet, "/api/v1/serials/"+itoa(serials[0].ID)+"/scans", nil, http.StatusOK, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, "scanner:dock-1", logs[0].Actor)

	// An unknown code is still answered with 200 and an error level.
	rec = e.send(t, http.MethodPost, "/api/v1/scan", map[string]string{"token": "NOPE", "action": "verify"},
		map[string]string{"X-Api-Key": scannerKey})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"level":"error"`)
}

func TestPhotoUploadAndDownload(t *testing.T) {
	e := newAPIEnv(t)
	_, serials := e.seedEquipment(t, "DRONE", 1)

	var upload photoURLResponse
	e.mustCall(t, http.MethodPost, "/api/v1/serials/"+itoa(serials[0].ID)+"/photos",
		map[string]string{"filename": "crack.jpg", "content_type": "image/jpeg"}, http.StatusOK, &upload)
	require.NotEmpty(t, upload.Key)

	put := func(contentType string) int {
		req := httptest.NewRequest(http.MethodPut, upload.URL, bytes.NewReader([]byte("jpeg-bytes")))
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		e.router.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusBadRequest, put("text/plain"))
	assert.Equal(t, http.StatusOK, put("image/jpeg"))
	// upload URLs are single use
	assert.Equal(t, http.StatusForbidden, put("image/jpeg"))

	forged := httptest.NewRequest(http.MethodPut, "/api/v1/upload/forged-token?key="+url.QueryEscape(upload.Key), bytes.NewReader([]byte("x")))
	forged.Header.Set("Content-Type", "image/jpeg")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, forged)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var download photoURLResponse
	e.mustCall(t, http.MethodGet, "/api/v1/photos?key="+url.QueryEscape(upload.Key), nil, http.StatusOK, &download)

	rec = e.send(t, http.MethodGet, download.URL, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg-bytes", rec.Body.String())

	status, _ := e.call(t, http.MethodGet, "/api/v1/photos?key=serials/1/missing.jpg", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newAPIEnv(t)
	e.call(t, http.MethodGet, "/api/v1/serials/42", nil)

	rec := e.send(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `path="/api/v1/serials/{id:[0-9]+}"`)
}
