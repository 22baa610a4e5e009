package web

import (
	"bytes"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tldr-app/uploader/internal/models"
)

func render(t *testing.T, state models.ViewState) string {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, IndexTemplate, PageData{State: state, Version: "test"}, nil))
	return buf.String()
}

func TestRender_Idle(t *testing.T) {
	html := render(t, models.NewViewState("s"))

	assert.Contains(t, html, "<h1>tl;dr</h1>")
	assert.Contains(t, html, `accept="application/pdf"`)
	assert.Contains(t, html, `<p id="file-name" hidden>`)
	assert.Contains(t, html, `<div id="loading" class="spinner" hidden>`)
	assert.Contains(t, html, `<section id="result" hidden>`)
	assert.Contains(t, html, `<p id="error" class="error" hidden>`)
	assert.NotContains(t, html, "http-equiv")
}

func TestRender_SubmittingWithStaleSummary(t *testing.T) {
	state := models.NewViewState("s")
	state.Phase = models.PhaseSubmitting
	state.File = &models.SelectedFile{Name: "report.pdf"}
	state.Summary = "old <b>summary</b>"

	html := render(t, state)

	assert.Contains(t, html, `<p id="file-name">File selected: <span>report.pdf</span></p>`)
	assert.Contains(t, html, `<div id="loading" class="spinner">`)
	assert.Contains(t, html, `<section id="result">`)
	assert.Contains(t, html, `rows="10" readonly>old &lt;b&gt;summary&lt;/b&gt;</textarea>`)
	assert.Contains(t, html, `http-equiv="refresh"`)
}

func TestRender_Failed(t *testing.T) {
	state := models.NewViewState("s")
	state.Phase = models.PhaseFailed
	state.Error = "connection refused"

	html := render(t, state)

	assert.Contains(t, html, `<p id="error" class="error">Summarization failed: <span>connection refused</span></p>`)
	assert.Contains(t, html, `<div id="loading" class="spinner" hidden>`)
}

func TestRegisterStaticRoutes(t *testing.T) {
	e := echo.New()
	require.NoError(t, RegisterStaticRoutes(e))

	req := httptest.NewRequest(http.MethodGet, "/static/app.js", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/ws")

	req = httptest.NewRequest(http.MethodGet, "/static/missing.js", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetFileSystem(t *testing.T) {
	staticFS, err := GetFileSystem()
	require.NoError(t, err)

	data, err := fs.ReadFile(staticFS, "style.css")
	require.NoError(t, err)
	assert.Contains(t, string(data), ".spinner")
}
