package db

import (
	"fmt"
	"strings"
)

// SearchResult is a conversion with a highlighted match snippet
type SearchResult struct {
	Conversion
	Snippet string
}

// ftsQuery turns free text into a prefix query: "john doe" -> "john"* "doe"*.
// Quoting each term keeps FTS5 operators and punctuation literal.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	fuzzyTerms := make([]string, len(terms))
	for i, term := range terms {
		fuzzyTerms[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"*`
	}
	return strings.Join(fuzzyTerms, " ")
}

// SearchConversions performs a full-text search over subject, sender, source
// name and body text. An empty query lists the most recent conversions.
func (db *DB) SearchConversions(query string, limit, offset int) ([]*SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		conversions, err := db.ListConversions(limit, offset)
		if err != nil {
			return nil, err
		}

		results := make([]*SearchResult, len(conversions))
		for i, c := range conversions {
			results[i] = &SearchResult{
				Conversion: *c,
				Snippet:    truncateText(c.BodyTextPreview, 200),
			}
		}
		return results, nil
	}

	rows, err := db.Query(`
		SELECT `+prefixColumns("c.", conversionColumns)+`,
			snippet(conversions_fts, 3, '<mark>', '</mark>', '...', 32) AS snippet
		FROM conversions c
		JOIN conversions_fts ON c.id = conversions_fts.rowid
		WHERE conversions_fts MATCH ?
		ORDER BY rank
		LIMIT ? OFFSET ?
	`, ftsQuery(query), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to search conversions: %w", err)
	}
	defer rows.Close()

	var results []*SearchResult
	for rows.Next() {
		var snippet string
		c, err := scanConversion(rows, &snippet)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, &SearchResult{Conversion: *c, Snippet: snippet})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	return results, nil
}

// CountSearchResults returns how many conversions match query.
func (db *DB) CountSearchResults(query string) (int, error) {
	if strings.TrimSpace(query) == "" {
		return db.CountConversions()
	}
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM conversions_fts WHERE conversions_fts MATCH ?",
		ftsQuery(query),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count search results: %w", err)
	}
	return count, nil
}

func prefixColumns(prefix, columns string) string {
	fields := strings.Split(columns, ",")
	for i, f := range fields {
		fields[i] = prefix + strings.TrimSpace(f)
	}
	return strings.Join(fields, ", ")
}
