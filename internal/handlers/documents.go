package handlers

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/felo/eml2doc/internal/attachments"
	"github.com/felo/eml2doc/internal/convert"
	"github.com/felo/eml2doc/internal/db"
)

// documentCSP lets converted pages use their inline styles and nothing else.
const documentCSP = "default-src 'none'; style-src 'unsafe-inline'; img-src data:"

// ViewDocument serves a converted output file
func (h *Handlers) ViewDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid document ID", http.StatusBadRequest)
		return
	}

	c, err := h.db.GetConversionByID(id)
	if err != nil {
		h.log.Errorw("failed to load conversion", "id", id, "error", err)
		http.Error(w, "Failed to load document", http.StatusInternalServerError)
		return
	}
	if c == nil {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}

	format, err := convert.ParseFormat(c.Format)
	if err != nil {
		format = convert.Format(c.Format)
	}
	w.Header().Set("Content-Type", format.MediaType())
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if format == convert.HTML {
		w.Header().Set("Content-Security-Policy", documentCSP)
	}
	if format == convert.PDF {
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("inline", map[string]string{"filename": filepath.Base(c.OutputPath)}))
	}

	h.serveFile(w, r, c.OutputPath)
}

// DownloadAttachment handles attachment downloads
func (h *Handlers) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid attachment ID", http.StatusBadRequest)
		return
	}

	att, err := h.db.GetAttachmentByID(id)
	if err != nil {
		h.log.Errorw("failed to load attachment", "id", id, "error", err)
		http.Error(w, "Failed to load attachment", http.StatusInternalServerError)
		return
	}
	if att == nil {
		http.Error(w, "Attachment not found", http.StatusNotFound)
		return
	}

	safeFilename := attachments.SanitizeFilename(att.Filename)
	contentType := mime.TypeByExtension(filepath.Ext(safeFilename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{
			"filename": safeFilename,
		}))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")

	h.serveFile(w, r, att.Path)
}

// serveFile streams path if it lies under the output or attachments directory.
func (h *Handlers) serveFile(w http.ResponseWriter, r *http.Request, path string) {
	resolved, err := db.ConfinePath(path, h.roots()...)
	if err != nil {
		h.log.Warnw("refusing to serve file", "path", path, "error", err)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	f, err := os.Open(resolved)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "File no longer exists", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Errorw("failed to open file", "path", resolved, "error", err)
		http.Error(w, "Failed to open file", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "Failed to open file", http.StatusInternalServerError)
		return
	}

	http.ServeContent(w, r, "", info.ModTime(), f)
}
