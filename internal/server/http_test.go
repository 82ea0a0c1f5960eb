package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/common"
	"github.com/joseph-ayodele/shift-reports/internal/export"
	"github.com/joseph-ayodele/shift-reports/internal/extract"
	"github.com/joseph-ayodele/shift-reports/internal/ingest"
	"github.com/joseph-ayodele/shift-reports/internal/ledger"
	"github.com/joseph-ayodele/shift-reports/internal/llm/stub"
	"github.com/joseph-ayodele/shift-reports/internal/objectstore"
	"github.com/joseph-ayodele/shift-reports/internal/pipeline"
	"github.com/joseph-ayodele/shift-reports/internal/records"
	"github.com/joseph-ayodele/shift-reports/internal/render"
	"github.com/joseph-ayodele/shift-reports/internal/repository"
	"github.com/joseph-ayodele/shift-reports/internal/repository/repotest"
	"github.com/joseph-ayodele/shift-reports/internal/server"
)

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func init() { gin.SetMode(gin.TestMode) }

type fakeRenderer struct {
	url string
	err error
}

func (f fakeRenderer) Generate(_ context.Context, docType, entityID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url + "/" + docType + "/" + entityID + ".pdf", nil
}

type harness struct {
	router *gin.Engine
	ledger *ledger.Ledger
	store  *objectstore.BlobStore
}

func newHarness(t *testing.T, renderer server.Renderer) *harness {
	t.Helper()
	db := repotest.NewSQLite(t)
	store := objectstore.NewBlobStore(memblob.OpenBucket(nil), "http://files.test/files", repotest.Logger())
	t.Cleanup(func() { _ = store.Close() })

	l := ledger.New(repository.NewUploadRepository(db, repotest.Logger()), repotest.Logger())
	recs := repository.NewRecordRepository(db, repotest.Logger())
	proc := pipeline.NewProcessor(l,
		extract.NewInvoker(store, stub.New(), 0, repotest.Logger()),
		records.NewWriter(recs, repotest.Logger()),
		pipeline.RetryPolicy{Attempts: 1}, repotest.Logger())
	gw := ingest.NewGateway(store, l, proc, repotest.Logger(), ingest.WithMaxBytes(1<<10))

	router := server.NewRouter(server.HTTPConfig{MaxUploadBytes: 1 << 10}, server.HTTPDeps{
		Gateway:  gw,
		Ledger:   l,
		Records:  recs,
		Exporter: export.NewService(l, recs, repotest.Logger()),
		Renderer: renderer,
		Files:    store,
	}, repotest.Logger())
	return &harness{router: router, ledger: l, store: store}
}

func (h *harness) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, reportType, fileName, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if reportType != "" {
		require.NoError(t, mw.WriteField("report_type", reportType))
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type uploadEnvelope struct {
	Code int `json:"code"`
	Data struct {
		ID            uuid.UUID `json:"id"`
		Status        string    `json:"status"`
		DisplayStatus string    `json:"displayStatus"`
		RecordCount   int       `json:"recordCount"`
		FileURL       string    `json:"fileUrl"`
		StoragePath   string    `json:"storagePath"`
		Flagged       bool      `json:"flagged"`
		FlagReason    *string   `json:"flagReason"`
	} `json:"data"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestUpload_WasteProcessed(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, uploadRequest(t, "waste", "sheet.jpg", "image/jpeg", jpeg))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	got := decode[uploadEnvelope](t, w)
	assert.Equal(t, "processed", got.Data.Status)
	assert.Equal(t, 1, got.Data.RecordCount)
	assert.Equal(t, "http://files.test/files/"+got.Data.StoragePath, got.Data.FileURL)

	w = h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/records/waste", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var rows struct {
		Data []struct {
			WastePercentage string `json:"wastePercentage"`
			WasteUnits      int64  `json:"wasteUnits"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows.Data, 1)
	assert.Equal(t, "0.032", rows.Data[0].WastePercentage)
	assert.EqualValues(t, 120, rows.Data[0].WasteUnits)

	// stored object is served back under /files
	w = h.do(t, httptest.NewRequest(http.MethodGet, "/files/"+got.Data.StoragePath, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, jpeg, w.Body.Bytes())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
}

func TestUpload_Rejections(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name        string
		reportType  string
		contentType string
		data        []byte
		wantStatus  int
		wantKind    string
	}{
		{"unsupported media", "factory", "text/plain", []byte("hello"), http.StatusUnsupportedMediaType, common.CodeUnsupportedMediaType},
		{"bad report type", "payroll", "image/jpeg", jpeg, http.StatusBadRequest, common.CodeInvalidReportType},
		{"missing report type", "", "image/jpeg", jpeg, http.StatusBadRequest, common.CodeInvalidReportType},
		{"too large", "qc", "image/jpeg", bytes.Repeat([]byte{0xff}, 2<<10), http.StatusRequestEntityTooLarge, common.CodePayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(t, uploadRequest(t, tt.reportType, "f.bin", tt.contentType, tt.data))
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			got := decode[server.ErrorResponse](t, w)
			assert.Equal(t, tt.wantKind, got.Kind)
		})
	}

	rows, err := h.ledger.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUpload_MissingFile(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", nil)
	w := h.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploads_ListGetFlagClear(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, uploadRequest(t, "qc", "qc.jpg", "image/jpeg", jpeg))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[uploadEnvelope](t, w).Data.ID

	w = h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/uploads", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []struct {
			ID uuid.UUID `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, id, list.Data[0].ID)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/"+id.String()+"/flag",
		bytes.NewBufferString(`{"reason":"smudged"}`))
	req.Header.Set("Content-Type", "application/json")
	w = h.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	flagged := decode[uploadEnvelope](t, w)
	assert.True(t, flagged.Data.Flagged)
	assert.Equal(t, "flagged", flagged.Data.DisplayStatus)
	assert.Equal(t, "processed", flagged.Data.Status)
	require.NotNil(t, flagged.Data.FlagReason)
	assert.Equal(t, "smudged", *flagged.Data.FlagReason)

	long := `{"reason":"` + strings.Repeat("x", constants.MaxFlagReasonLength+1) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/api/v1/uploads/"+id.String()+"/flag", bytes.NewBufferString(long))
	req.Header.Set("Content-Type", "application/json")
	w = h.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.CodeValidation, decode[server.ErrorResponse](t, w).Kind)

	w = h.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/"+id.String()+"/flag", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[uploadEnvelope](t, w).Data.Flagged)

	w = h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/uploads?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/uploads", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":0,"message":"success","data":{"deleted":1}}`, w.Body.String())

	rows, err := h.ledger.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecords_UnknownType(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/records/payroll", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExport(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/export.xlsx", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "shift-reports.xlsx")
	// xlsx is a zip archive
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

func TestRenderDocument(t *testing.T) {
	tests := []struct {
		name       string
		renderer   server.Renderer
		wantStatus int
	}{
		{"ok", fakeRenderer{url: "https://docs.test"}, http.StatusOK},
		{"not configured", fakeRenderer{err: render.ErrNotConfigured}, http.StatusServiceUnavailable},
		{"remote failure", fakeRenderer{err: errors.New("render service returned 500")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.renderer)
			w := h.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/documents/waste/abc/pdf", nil))
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusOK {
				assert.JSONEq(t, `{"code":0,"message":"success","data":{"downloadUrl":"https://docs.test/waste/abc.pdf"}}`, w.Body.String())
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "shift_reports_")
}

func TestRequestIDPropagated(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := h.do(t, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{common.ErrUnsupportedMediaType, http.StatusUnsupportedMediaType},
		{common.StorageWriteError("k", errors.New("disk full")), http.StatusBadGateway},
		{common.LedgerWriteError("create", errors.New("conn refused")), http.StatusServiceUnavailable},
		{common.ErrInvalidTransition, http.StatusConflict},
		{common.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, server.StatusFor(tt.err), tt.err.Error())
	}
}
