package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	limits "github.com/gin-contrib/size"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/common"
	"github.com/joseph-ayodele/shift-reports/internal/entity"
	"github.com/joseph-ayodele/shift-reports/internal/ingest"
	"github.com/joseph-ayodele/shift-reports/internal/metrics"
	"github.com/joseph-ayodele/shift-reports/internal/repository"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	// multipart framing on top of the file itself
	formOverheadBytes = 1 << 20

	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Submitter interface {
	Submit(ctx context.Context, req ingest.SubmitRequest) (*entity.Upload, error)
	SubmitAsync(ctx context.Context, req ingest.SubmitRequest) (*entity.Upload, error)
}

type UploadLedger interface {
	Recent(ctx context.Context, limit int) ([]*entity.Upload, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Upload, error)
	Flag(ctx context.Context, id uuid.UUID, reason string) (*entity.Upload, error)
	Unflag(ctx context.Context, id uuid.UUID) (*entity.Upload, error)
	Clear(ctx context.Context) (int64, error)
}

type Exporter interface {
	ExportXLSX(ctx context.Context) ([]byte, error)
}

type Renderer interface {
	Generate(ctx context.Context, docType, entityID string) (string, error)
}

// FileReader serves stored objects back under /files.
type FileReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Attributes(ctx context.Context, key string) (contentType string, size int64, err error)
}

type HTTPConfig struct {
	CORSOrigins    []string
	MaxUploadBytes int64
}

// HTTPDeps are the services behind the REST surface. Files and Health are optional.
type HTTPDeps struct {
	Gateway  Submitter
	Ledger   UploadLedger
	Records  repository.RecordRepository
	Exporter Exporter
	Renderer Renderer
	Files    FileReader
	Health   func(ctx context.Context) error
}

type handlers struct {
	deps   HTTPDeps
	logger *slog.Logger
}

// NewRouter builds the gin engine serving the upload, ledger, record and
// export endpoints.
func NewRouter(cfg HTTPConfig, deps HTTPDeps, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = int64(constants.MaxUploadMBDefault) << 20
	}
	h := &handlers{deps: deps, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(RequestID(logger))
	r.Use(AccessLog(logger))

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if deps.Files != nil {
		r.GET("/files/*key", h.file)
	}

	v1 := r.Group("/api/v1")
	{
		uploads := v1.Group("/uploads")
		{
			uploads.POST("", limits.RequestSizeLimiter(cfg.MaxUploadBytes+formOverheadBytes), h.submit)
			uploads.GET("", h.listUploads)
			uploads.DELETE("", h.clearUploads)
			uploads.GET("/:id", h.getUpload)
			uploads.POST("/:id/flag", h.flag)
			uploads.DELETE("/:id/flag", h.unflag)
		}
		v1.GET("/records/:reportType", h.listRecords)
		v1.GET("/export.xlsx", h.export)
		v1.POST("/documents/:type/:id/pdf", h.renderDocument)
	}
	return r
}

func (h *handlers) health(c *gin.Context) {
	if h.deps.Health != nil {
		if err := h.deps.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) submit(c *gin.Context) {
	fh, err := c.FormFile("file")
	if c.IsAborted() {
		// the size limiter already answered 413
		return
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Fail(c, common.NewAppError(common.CodePayloadTooLarge, err.Error(), common.ErrPayloadTooLarge))
		return
	}
	if err != nil {
		Error(c, http.StatusBadRequest, "file is required", err.Error())
		return
	}
	f, err := fh.Open()
	if err != nil {
		Error(c, http.StatusBadRequest, "unreadable file", err.Error())
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		Error(c, http.StatusBadRequest, "unreadable file", err.Error())
		return
	}

	req := ingest.SubmitRequest{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
		ReportType:  c.PostForm("report_type"),
	}
	async, _ := strconv.ParseBool(c.DefaultPostForm("async", c.Query("async")))

	var u *entity.Upload
	if async {
		u, err = h.deps.Gateway.SubmitAsync(c.Request.Context(), req)
	} else {
		u, err = h.deps.Gateway.Submit(c.Request.Context(), req)
	}
	if err != nil {
		_ = c.Error(err)
		Fail(c, err)
		return
	}
	Created(c, viewOf(u))
}

func (h *handlers) listUploads(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	rows, err := h.deps.Ledger.Recent(c.Request.Context(), limit)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, viewsOf(rows))
}

func (h *handlers) getUpload(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	u, err := h.deps.Ledger.Get(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, viewOf(u))
}

type flagRequest struct {
	Reason string `json:"reason"`
}

func (h *handlers) flag(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var body flagRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			Error(c, http.StatusBadRequest, "invalid body", err.Error())
			return
		}
	}
	u, err := h.deps.Ledger.Flag(c.Request.Context(), id, body.Reason)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, viewOf(u))
}

func (h *handlers) unflag(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	u, err := h.deps.Ledger.Unflag(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, viewOf(u))
}

func (h *handlers) clearUploads(c *gin.Context) {
	n, err := h.deps.Ledger.Clear(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"deleted": n})
}

func (h *handlers) listRecords(c *gin.Context) {
	rt, err := constants.ParseReportType(c.Param("reportType"))
	if err != nil {
		Fail(c, fmt.Errorf("%w: %v", common.ErrInvalidReportType, err))
		return
	}
	limit, ok := limitParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var rows any
	switch rt {
	case constants.ReportTypeEfficiency:
		rows, err = h.deps.Records.ListStaffLogs(ctx, limit)
	case constants.ReportTypeFactory:
		rows, err = h.deps.Records.ListMachineChecks(ctx, limit)
	case constants.ReportTypeQC:
		rows, err = h.deps.Records.ListQCFlags(ctx, limit)
	case constants.ReportTypeWaste:
		rows, err = h.deps.Records.ListWasteLogs(ctx, limit)
	}
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, rows)
}

func (h *handlers) export(c *gin.Context) {
	b, err := h.deps.Exporter.ExportXLSX(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="shift-reports.xlsx"`)
	c.Data(http.StatusOK, contentTypeXLSX, b)
}

func (h *handlers) renderDocument(c *gin.Context) {
	url, err := h.deps.Renderer.Generate(c.Request.Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		if StatusFor(err) == http.StatusInternalServerError {
			// anything unclassified came from the remote service
			Error(c, http.StatusBadGateway, "document render failed", err.Error())
			return
		}
		Fail(c, err)
		return
	}
	Success(c, gin.H{"downloadUrl": url})
}

func (h *handlers) file(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || strings.Contains(key, "..") {
		Error(c, http.StatusBadRequest, "invalid key", "")
		return
	}
	ctx := c.Request.Context()
	ct, _, err := h.deps.Files.Attributes(ctx, key)
	if err != nil {
		Fail(c, err)
		return
	}
	b, err := h.deps.Files.Get(ctx, key)
	if err != nil {
		Fail(c, err)
		return
	}
	if ct == "" {
		ct = constants.ContentTypeFromName(key)
	}
	c.Data(http.StatusOK, ct, b)
}

func idParam(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("id")
	if err := common.NewValidator().Field("id", raw, common.Required, common.UUID).Error(); err != nil {
		Fail(c, err)
		return uuid.Nil, false
	}
	return uuid.MustParse(raw), true
}

func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		Error(c, http.StatusBadRequest, "limit must be a positive integer", raw)
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}
