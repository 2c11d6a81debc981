package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// searchHit is one /api/search result
type searchHit struct {
	ID          int64  `json:"id"`
	Source      string `json:"source"`
	Subject     string `json:"subject"`
	From        string `json:"from"`
	Date        string `json:"date,omitempty"`
	Format      string `json:"format"`
	Document    string `json:"document"`
	Attachments int    `json:"attachments"`
	ReplyCount  int    `json:"replyCount"`
	Snippet     string `json:"snippet"`
}

type searchResponse struct {
	Query   string      `json:"query"`
	Total   int         `json:"total"`
	Results []searchHit `json:"results"`
}

// SearchAPI returns search results as JSON
func (h *Handlers) SearchAPI(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	limit := 20
	if parsed, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && parsed > 0 {
		limit = parsed
	}
	if limit > 200 {
		limit = 200
	}

	total, err := h.db.CountSearchResults(query)
	if err != nil {
		h.log.Errorw("search count failed", "query", query, "error", err)
		http.Error(w, "Search failed", http.StatusInternalServerError)
		return
	}
	results, err := h.db.SearchConversions(query, limit, 0)
	if err != nil {
		h.log.Errorw("search failed", "query", query, "error", err)
		http.Error(w, "Search failed", http.StatusInternalServerError)
		return
	}

	resp := searchResponse{Query: query, Total: total, Results: make([]searchHit, 0, len(results))}
	for _, res := range results {
		hit := searchHit{
			ID:          res.ID,
			Source:      res.SourceName,
			Subject:     res.Subject,
			From:        res.Sender,
			Format:      res.Format,
			Document:    documentURL(res.Conversion),
			Attachments: res.AttachmentCount,
			ReplyCount:  res.ReplyCount,
			Snippet:     res.Snippet,
		}
		if res.Date.Valid {
			hit.Date = res.Date.Time.Format(time.RFC3339)
		}
		resp.Results = append(resp.Results, hit)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Errorw("failed to encode search results", "error", err)
	}
}
