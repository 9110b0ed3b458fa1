package notebook

import (
	"context"
	"strings"

	"ainotebook/internal/apperr"
	"ainotebook/internal/store"
)

// SearchResult is one page of matching notes.
type SearchResult struct {
	Results    []store.Note `json:"results"`
	Pagination Pagination   `json:"pagination"`
}

// Search finds the user's non-deleted notes whose title, text or tags
// contain query, ignoring case.
func (s *Service) Search(ctx context.Context, userID, query string, page Page) (SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResult{}, apperr.Validation("search query is required")
	}
	logger := s.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"query_len": len(query),
	})
	logger.Debug("starting note search")

	notes, err := s.notes.List(ctx)
	if err != nil {
		logger.WithContext("error", err.Error()).Error("search failed")
		return SearchResult{}, err
	}

	needle := strings.ToLower(query)
	matched := make([]store.Note, 0)
	for _, n := range notes {
		if visible(n, userID) && matches(n, needle) {
			matched = append(matched, n)
		}
	}

	results, pg := paginate(matched, page)
	logger.WithContext("result_count", pg.Total).Debug("search completed")
	return SearchResult{Results: results, Pagination: pg}, nil
}

func matches(n store.Note, needle string) bool {
	if strings.Contains(strings.ToLower(n.Title), needle) ||
		strings.Contains(strings.ToLower(n.ContentText), needle) {
		return true
	}
	for _, t := range n.Tags {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}
