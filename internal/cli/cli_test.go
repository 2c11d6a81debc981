package cli

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felo/eml2doc/internal/config"
	"github.com/felo/eml2doc/internal/db"
	"github.com/felo/eml2doc/internal/handlers"
	"github.com/felo/eml2doc/web"
)

const sampleEML = "From: John Doe <john.doe@example.com>\r\n" +
	"To: Jane Roe <jane@example.com>\r\n" +
	"Subject: Integration Test Email\r\n" +
	"Date: Mon, 02 Jan 2023 15:04:05 +0000\r\n" +
	"Message-ID: <integration@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"This is an integration test email.\r\n" +
	"\r\n" +
	"This is a PRIVATE message. Do not share it for any other purpose.\r\n"

func writeInput(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConvert_RequiresInputAndFormat(t *testing.T) {
	_, err := execute(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input directory is required")
	assert.Contains(t, err.Error(), "output format is required")
}

func TestConvert_UnknownFormat(t *testing.T) {
	in := writeInput(t, nil)

	_, err := execute(t, "--input-dir", in, "--output-format", "docx")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestConvert_WritesDocumentsAndCatalog(t *testing.T) {
	in := writeInput(t, map[string]string{"sample.eml": sampleEML})
	out := filepath.Join(t.TempDir(), "out")

	stdout, err := execute(t, "--input-dir", in, "--output-format", "md", "--output-dir", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 found, 1 converted, 0 skipped, 0 failed")

	data, err := os.ReadFile(filepath.Join(out, "sample.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "integration test email")
	assert.NotContains(t, string(data), "PRIVATE message")

	assert.FileExists(t, filepath.Join(out, "catalog.db"))
}

func TestConvert_NoCatalog(t *testing.T) {
	in := writeInput(t, map[string]string{"sample.eml": sampleEML})
	out := filepath.Join(t.TempDir(), "out")

	_, err := execute(t, "--input-dir", in, "--output-format", "txt", "--output-dir", out, "--no-catalog")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(out, "sample.txt"))
	assert.NoFileExists(t, filepath.Join(out, "catalog.db"))
}

func TestConvert_ConfigFileAndEnv(t *testing.T) {
	in := writeInput(t, map[string]string{"sample.eml": sampleEML})
	out := filepath.Join(t.TempDir(), "out")
	cfgPath := filepath.Join(t.TempDir(), "eml2doc.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf("input_dir: %q\noutput_format: html\n", in)), 0644))

	t.Setenv(configEnvVar, cfgPath)
	t.Setenv("EML2DOC_OUTPUT_DIR", out)
	t.Setenv("EML2DOC_COMBINED", "true")

	_, err := execute(t, "--combined-name", "mailbox")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "mailbox.html"))
}

func TestConvert_KeepGoingReportsFailures(t *testing.T) {
	in := writeInput(t, map[string]string{
		"sample.eml": sampleEML,
		"broken.eml": "",
	})
	out := filepath.Join(t.TempDir(), "out")

	stdout, err := execute(t, "--input-dir", in, "--output-format", "json", "--output-dir", out, "--keep-going")
	require.Error(t, err)
	assert.Contains(t, stdout, "2 found, 1 converted, 0 skipped, 1 failed")
	assert.FileExists(t, filepath.Join(out, "sample.json"))
}

func TestServe_NeedsCatalog(t *testing.T) {
	t.Setenv("EML2DOC_CATALOG_DISABLED", "true")

	_, err := execute(t, "serve")
	assert.ErrorContains(t, err, "catalog")
}

// TestEndToEndWorkflow converts a directory, then browses the result the
// way the serve command does.
func TestEndToEndWorkflow(t *testing.T) {
	in := writeInput(t, map[string]string{"sample.eml": sampleEML})
	out := filepath.Join(t.TempDir(), "out")

	_, err := execute(t, "--input-dir", in, "--output-format", "html", "--output-dir", out)
	require.NoError(t, err)

	catalog, err := db.Open(filepath.Join(out, "catalog.db"))
	require.NoError(t, err)
	defer catalog.Close()

	count, err := catalog.CountConversions()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := catalog.SearchConversions("integration", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	conv := results[0].Conversion
	assert.Equal(t, "Integration Test Email", conv.Subject)
	assert.Contains(t, conv.Sender, "john.doe@example.com")

	run, err := catalog.LastRun()
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, db.RunComplete, run.Status)

	cfg := config.Default()
	cfg.OutputDir = out
	h := handlers.New(catalog, cfg, nil)
	require.NoError(t, h.LoadTemplates(web.Assets))
	static, err := fs.Sub(web.Assets, "static")
	require.NoError(t, err)
	srv := httptest.NewServer(h.Router(static))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/?q=integration")
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Integration Test Email")

	resp, err = http.Get(fmt.Sprintf("%s/documents/%d", srv.URL, conv.ID))
	require.NoError(t, err)
	body = readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "integration test email")
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var b bytes.Buffer
	_, err := b.ReadFrom(resp.Body)
	require.NoError(t, err)
	return b.String()
}
