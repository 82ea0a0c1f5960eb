package app_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/app"
	"github.com/joseph-ayodele/shift-reports/internal/common"
	"github.com/joseph-ayodele/shift-reports/internal/ingest"
)

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	cfg := common.LoadConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "file:" + filepath.Join(t.TempDir(), "app.db")
	cfg.Database.AutoMigrate = true
	cfg.Storage.BucketURL = "mem://"
	cfg.Storage.PublicBaseURL = "http://files.test"
	cfg.LLM.Provider = "stub"
	cfg.LLM.RetryAttempts = 1
	cfg.LLM.HEICConverter = ""
	cfg.Watch.Root = ""
	return cfg
}

func newApp(t *testing.T, cfg *common.Config) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(ctx)
	})
	return a
}

func TestNew_SubmitsThroughPipeline(t *testing.T) {
	a := newApp(t, testConfig(t))
	assert.Equal(t, "stub", a.Provider.Name())

	u, err := a.Gateway.Submit(context.Background(), ingest.SubmitRequest{
		FileName: "waste.jpg", ContentType: "image/jpeg", Data: jpeg, ReportType: "waste",
	})
	require.NoError(t, err)
	assert.Equal(t, constants.UploadStatusProcessed, u.Status)

	waste, err := a.Records.ListWasteLogs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, waste, 1)
}

func TestNew_AsyncThroughQueue(t *testing.T) {
	a := newApp(t, testConfig(t))
	ctx := context.Background()

	u, err := a.Gateway.SubmitAsync(ctx, ingest.SubmitRequest{
		FileName: "factory.jpg", ContentType: "image/jpeg", Data: jpeg, ReportType: "factory",
	})
	require.NoError(t, err)
	assert.Equal(t, constants.UploadStatusPending, u.Status)

	require.Eventually(t, func() bool {
		got, err := a.Ledger.Get(ctx, u.ID)
		return err == nil && got.Status == constants.UploadStatusProcessed && got.RecordCount == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNew_WatchFolder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Watch.Root = t.TempDir()
	cfg.Watch.Debounce = 10 * time.Millisecond
	a := newApp(t, cfg)

	// already present when the watcher starts, so the initial scan picks it up
	dir := filepath.Join(cfg.Watch.Root, "qc")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sheet.jpg"), jpeg, 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx) }()

	require.Eventually(t, func() bool {
		rows, err := a.Ledger.List(context.Background())
		return err == nil && len(rows) == 1 && rows[0].Status == constants.UploadStatusProcessed
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRouter_Health(t *testing.T) {
	a := newApp(t, testConfig(t))
	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""
	_, err := app.New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Equal(t, common.CodeConfig, common.CodeOf(err))
}

func TestNew_UnknownHEICConverter(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.HEICConverter = "gimp"
	_, err := app.New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Equal(t, common.CodeConfig, common.CodeOf(err))
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"openai", "gemini", "stub"} {
		p, err := app.NewProvider(common.LLMConfig{Provider: name, APIKey: "k"}, nil)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}
	_, err := app.NewProvider(common.LLMConfig{Provider: "other"}, nil)
	assert.Error(t, err)
}
