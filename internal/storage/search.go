package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"tootkeeper/internal/model"
)

var (
	phraseRe  = regexp.MustCompile(`"([^"]+)"`)
	nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}_]`)
)

// sanitizeQuery turns user input into a safe FTS5 MATCH expression. Quoted
// phrases are preserved, remaining words are AND-ed with prefix matching,
// and FTS operator characters are stripped so user input cannot produce a
// syntax error.
func sanitizeQuery(query string) string {
	if strings.TrimSpace(query) == "" {
		return ""
	}

	var parts []string
	for _, m := range phraseRe.FindAllStringSubmatch(query, -1) {
		parts = append(parts, `"`+m[1]+`"`)
	}

	remaining := phraseRe.ReplaceAllString(query, "")
	for _, word := range strings.Fields(remaining) {
		cleaned := nonWordRe.ReplaceAllString(word, "")
		if cleaned != "" {
			parts = append(parts, `"`+cleaned+`"*`)
		}
	}

	return strings.Join(parts, " AND ")
}

// Search runs a full-text query over the mirrored content, ranked, with
// snippet highlighting and an optional source-type filter.
func (s *SQLite) Search(ctx context.Context, query string, sourceType model.Kind, page, perPage int) ([]model.SearchResult, int, error) {
	ftsQuery := sanitizeQuery(query)
	if ftsQuery == "" {
		return nil, 0, nil
	}

	typeClause := ""
	countArgs := []any{ftsQuery}
	if sourceType != "" {
		typeClause = ` AND source_type = ?`
		countArgs = append(countArgs, string(sourceType))
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_index WHERE search_index MATCH ?`+typeClause,
		countArgs...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	args := append(countArgs, perPage, offset(page, perPage))
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_type, source_id,
		        snippet(search_index, 2, '<mark>', '</mark>', '...', 40),
		        account
		 FROM search_index
		 WHERE search_index MATCH ?`+typeClause+`
		 ORDER BY rank
		 LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query search index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		var kind string
		if err := rows.Scan(&kind, &r.SourceID, &r.Snippet, &r.Account); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		r.SourceType = model.Kind(kind)
		results = append(results, r)
	}
	return results, total, rows.Err()
}
