package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ViewConversion shows what was recorded for one conversion
func (h *Handlers) ViewConversion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversion ID", http.StatusBadRequest)
		return
	}

	c, err := h.db.GetConversionByID(id)
	if err != nil {
		h.log.Errorw("failed to load conversion", "id", id, "error", err)
		http.Error(w, "Failed to load conversion", http.StatusInternalServerError)
		return
	}
	if c == nil {
		http.Error(w, "Conversion not found", http.StatusNotFound)
		return
	}

	atts, err := h.db.GetAttachmentsByConversionID(id)
	if err != nil {
		h.log.Errorw("failed to load attachments", "id", id, "error", err)
		http.Error(w, "Failed to load attachments", http.StatusInternalServerError)
		return
	}

	title := "Conversion - eml2doc"
	if c.Subject != "" {
		title = c.Subject + " - eml2doc"
	}

	h.render(w, "conversion.html", &page{
		PageTitle:   title,
		Conversion:  c,
		Attachments: atts,
	})
}
