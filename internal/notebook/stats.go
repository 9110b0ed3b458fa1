package notebook

import (
	"context"
	"time"
)

// Stats summarises a user's notes.
type Stats struct {
	TotalNotes     int           `json:"total_notes"`
	TotalNotebooks int           `json:"total_notebooks"`
	TotalWords     int           `json:"total_words"`
	NotesThisMonth int           `json:"notes_this_month"`
	MostUsedTags   []interface{} `json:"most_used_tags"`
	RecentActivity []interface{} `json:"recent_activity"`
}

// Stats computes totals over the user's non-deleted notes. Words are
// counted as characters of string content with HTML tags removed.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	notebooks, err := s.notebooks.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	notes, err := s.notes.List(ctx)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		MostUsedTags:   []interface{}{},
		RecentActivity: []interface{}{},
	}
	for _, nb := range notebooks {
		if nb.UserID == userID {
			st.TotalNotebooks++
		}
	}

	now := s.now()
	for _, n := range notes {
		if !visible(n, userID) {
			continue
		}
		st.TotalNotes++
		if text, ok := contentString(n); ok {
			st.TotalWords += len([]rune(stripTags(text)))
		}
		if sameMonth(n.CreatedAt, now) {
			st.NotesThisMonth++
		}
	}
	return st, nil
}

func sameMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}
