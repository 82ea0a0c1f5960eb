package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/shift-reports/internal/cli"
)

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

// setup points reportctl at a fresh sqlite file, a file bucket and the stub provider.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	env := map[string]string{
		"DB_DRIVER":               "sqlite",
		"DB_URL":                  "file:" + filepath.Join(dir, "ledger.db"),
		"DB_AUTO_MIGRATE":         "true",
		"STORAGE_BUCKET_URL":      "file://" + filepath.ToSlash(filepath.Join(dir, "bucket")) + "?create_dir=true",
		"STORAGE_PUBLIC_BASE_URL": "http://files.test",
		"LLM_PROVIDER":            "stub",
		"EXTRACT_RETRY_ATTEMPTS":  "1",
		"WATCH_ROOT":              "",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	return dir
}

func run(t *testing.T, dir string, args ...string) (string, string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	args = append([]string{"--env-file", filepath.Join(dir, "missing.env")}, args...)
	code := cli.Execute(context.Background(), args, &out, &errOut)
	return out.String(), errOut.String(), code
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestMigrate(t *testing.T) {
	dir := setup(t)
	out, errOut, code := run(t, dir, "migrate")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "migrations applied")
}

func TestSubmitListFlagClear(t *testing.T) {
	dir := setup(t)
	a := writeFile(t, filepath.Join(dir, "in", "a.jpg"), jpeg)
	b := writeFile(t, filepath.Join(dir, "in", "b.jpg"), append(append([]byte{}, jpeg...), 'b'))

	out, errOut, code := run(t, dir, "submit", "--type", "waste", a, b)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, 2, strings.Count(out, "processed"), out)

	out, errOut, code = run(t, dir, "submit", "--type", "waste", a)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "processed (duplicate)")

	out, errOut, code = run(t, dir, "list")
	require.Equal(t, 0, code, errOut)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, out)
	id := strings.Fields(lines[1])[0]

	out, errOut, code = run(t, dir, "flag", id, "--reason", "blurry")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "flagged (status processed)")

	out, _, code = run(t, dir, "list")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "blurry")

	_, errOut, code = run(t, dir, "unflag", id)
	require.Equal(t, 0, code, errOut)

	_, errOut, code = run(t, dir, "clear")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--yes")

	out, errOut, code = run(t, dir, "clear", "--yes")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "deleted 2 uploads")
}

func TestSubmit_RejectedFileFails(t *testing.T) {
	dir := setup(t)
	txt := writeFile(t, filepath.Join(dir, "notes.txt"), []byte("not a report"))

	out, errOut, code := run(t, dir, "submit", "-t", "qc", txt)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "rejected")
	assert.Contains(t, errOut, "1 of 1 files failed")

	_, errOut, code = run(t, dir, "submit", "-t", "payroll", txt)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "payroll")
}

func TestIngestDirAndExport(t *testing.T) {
	dir := setup(t)
	root := filepath.Join(dir, "reports")
	writeFile(t, filepath.Join(root, "factory", "line1.jpg"), jpeg)
	writeFile(t, filepath.Join(root, "efficiency", "day.jpg"), jpeg)
	writeFile(t, filepath.Join(root, ".cache", "skip.jpg"), jpeg)

	out, errOut, code := run(t, dir, "ingest-dir", root)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "matched=2 succeeded=2 failed=0 deduplicated=0")

	dest := filepath.Join(dir, "history.xlsx")
	out, errOut, code = run(t, dir, "export", "-o", dest)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "wrote "+dest)

	f, err := excelize.OpenFile(dest)
	require.NoError(t, err)
	defer f.Close()
	machines, err := f.GetRows("Factory")
	require.NoError(t, err)
	assert.Len(t, machines, 3) // header + two machines
	staff, err := f.GetRows("Efficiency")
	require.NoError(t, err)
	assert.Len(t, staff, 3)

	_, errOut, code = run(t, dir, "export", "-o", filepath.Join(dir, "history.csv"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, ".xlsx")
}
