package notebook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ainotebook/internal/apperr"
	"ainotebook/internal/store"
)

// Export is everything a user owns, with API keys masked.
type Export struct {
	User       store.PublicUser  `json:"user"`
	Notebooks  []store.Notebook  `json:"notebooks"`
	Notes      []store.Note      `json:"notes"`
	Tags       []store.Tag       `json:"tags"`
	APIConfigs []store.APIConfig `json:"api_configs"`
	ExportedAt time.Time         `json:"exported_at"`
}

// Export collects the user's records. Notes in the trash are included.
func (s *Service) Export(ctx context.Context, userID string) (Export, error) {
	u, err := s.users.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Export{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return Export{}, err
	}

	notebooks, err := s.ListNotebooks(ctx, userID)
	if err != nil {
		return Export{}, fmt.Errorf("export notebooks: %w", err)
	}

	allNotes, err := s.notes.List(ctx)
	if err != nil {
		return Export{}, fmt.Errorf("export notes: %w", err)
	}
	notes := make([]store.Note, 0)
	for _, n := range allNotes {
		if n.UserID == userID {
			notes = append(notes, n)
		}
	}

	allTags, err := s.tags.List(ctx)
	if err != nil {
		return Export{}, fmt.Errorf("export tags: %w", err)
	}
	tags := make([]store.Tag, 0)
	for _, t := range allTags {
		if t.UserID == userID {
			tags = append(tags, t)
		}
	}

	allConfigs, err := s.configs.List(ctx)
	if err != nil {
		return Export{}, fmt.Errorf("export api configs: %w", err)
	}
	configs := make([]store.APIConfig, 0)
	for _, c := range allConfigs {
		if c.UserID == userID {
			configs = append(configs, c.Masked())
		}
	}

	return Export{
		User:       u.Public(),
		Notebooks:  notebooks,
		Notes:      notes,
		Tags:       tags,
		APIConfigs: configs,
		ExportedAt: s.now(),
	}, nil
}

// PurgeUser deletes the notes, notebooks, tags and API configs owned by
// userID.
func (s *Service) PurgeUser(ctx context.Context, userID string) error {
	notes, err := s.notes.DeleteWhere(ctx, func(n store.Note) bool { return n.UserID == userID })
	if err != nil {
		return fmt.Errorf("purge notes: %w", err)
	}
	notebooks, err := s.notebooks.DeleteWhere(ctx, func(nb store.Notebook) bool { return nb.UserID == userID })
	if err != nil {
		return fmt.Errorf("purge notebooks: %w", err)
	}
	tags, err := s.tags.DeleteWhere(ctx, func(t store.Tag) bool { return !t.Shared() && t.UserID == userID })
	if err != nil {
		return fmt.Errorf("purge tags: %w", err)
	}
	configs, err := s.configs.DeleteWhere(ctx, func(c store.APIConfig) bool { return c.UserID == userID })
	if err != nil {
		return fmt.Errorf("purge api configs: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":     userID,
		"notes":       notes,
		"notebooks":   notebooks,
		"tags":        tags,
		"api_configs": configs,
	}).Info("purged user data")
	return nil
}
