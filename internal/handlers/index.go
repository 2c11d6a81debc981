package handlers

import (
	"net/http"
	"strconv"
	"strings"
)

// Index lists catalog entries, filtered by full-text search when ?q= is set
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	pageNum := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 1 {
		pageNum = p
	}

	total, err := h.db.CountSearchResults(query)
	if err != nil {
		h.log.Errorw("search count failed", "query", query, "error", err)
		http.Error(w, "Search failed", http.StatusInternalServerError)
		return
	}

	results, err := h.db.SearchConversions(query, pageSize, (pageNum-1)*pageSize)
	if err != nil {
		h.log.Errorw("search failed", "query", query, "error", err)
		http.Error(w, "Search failed", http.StatusInternalServerError)
		return
	}

	p := &page{
		PageTitle: "Conversions - eml2doc",
		Query:     query,
		Total:     total,
		Results:   results,
	}
	if query != "" {
		p.PageTitle = query + " - eml2doc"
	}
	if pageNum > 1 {
		p.PrevPage = pageNum - 1
	}
	if pageNum*pageSize < total {
		p.NextPage = pageNum + 1
	}

	h.render(w, "index.html", p)
}
