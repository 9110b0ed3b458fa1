package notebook

import (
	"context"
	"errors"
	"strings"

	"ainotebook/internal/apperr"
	"ainotebook/internal/store"
)

var errNotebookNotFound = apperr.NotFound("notebook not found")

// ListNotebooks returns the user's notebooks with note counts.
func (s *Service) ListNotebooks(ctx context.Context, userID string) ([]store.Notebook, error) {
	all, err := s.notebooks.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.noteCounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]store.Notebook, 0, len(all))
	for _, nb := range all {
		if nb.UserID != userID {
			continue
		}
		nb.NoteCount = counts[nb.ID]
		out = append(out, nb)
	}
	return out, nil
}

// GetNotebook returns one notebook with its note count.
func (s *Service) GetNotebook(ctx context.Context, userID, id string) (store.Notebook, error) {
	nb, err := s.notebooks.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && nb.UserID != userID) {
		return store.Notebook{}, errNotebookNotFound
	}
	if err != nil {
		return store.Notebook{}, err
	}
	counts, err := s.noteCounts(ctx, userID)
	if err != nil {
		return store.Notebook{}, err
	}
	nb.NoteCount = counts[nb.ID]
	return nb, nil
}

// CreateNotebook stores a new notebook for userID.
func (s *Service) CreateNotebook(ctx context.Context, userID string, in CreateNotebookInput) (store.Notebook, error) {
	if err := in.Validate(); err != nil {
		return store.Notebook{}, err
	}
	color := in.Color
	if color == "" {
		color = DefaultColor
	}

	nb, err := s.notebooks.Create(ctx, func(existing []store.Notebook) (store.Notebook, error) {
		now := s.now()
		return store.Notebook{
			ID:          store.NextSequentialID(existing),
			Title:       strings.TrimSpace(in.Title),
			Description: in.Description,
			Color:       color,
			UserID:      userID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	})
	if err != nil {
		return store.Notebook{}, err
	}

	s.events.Publish(userID, EventNotebookCreated, nb)
	return nb, nil
}

// UpdateNotebook applies the fields present in in.
func (s *Service) UpdateNotebook(ctx context.Context, userID, id string, in UpdateNotebookInput) (store.Notebook, error) {
	if err := in.Validate(); err != nil {
		return store.Notebook{}, err
	}

	nb, err := s.notebooks.Update(ctx, id, func(nb *store.Notebook) error {
		if nb.UserID != userID {
			return errNotebookNotFound
		}
		if in.Title != nil {
			nb.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			nb.Description = *in.Description
		}
		if in.Color != nil && *in.Color != "" {
			nb.Color = *in.Color
		}
		nb.UpdatedAt = s.now()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.Notebook{}, errNotebookNotFound
	}
	if err != nil {
		return store.Notebook{}, err
	}

	counts, err := s.noteCounts(ctx, userID)
	if err != nil {
		return store.Notebook{}, err
	}
	nb.NoteCount = counts[nb.ID]
	s.events.Publish(userID, EventNotebookUpdated, nb)
	return nb, nil
}

// DeleteNotebook removes a notebook. Its notes keep their notebook_id.
func (s *Service) DeleteNotebook(ctx context.Context, userID, id string) error {
	nb, err := s.notebooks.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && nb.UserID != userID) {
		return errNotebookNotFound
	}
	if err != nil {
		return err
	}
	if _, err := s.notebooks.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errNotebookNotFound
		}
		return err
	}
	s.events.Publish(userID, EventNotebookDeleted, map[string]string{"id": id})
	return nil
}

// noteCounts maps notebook id to the number of the user's non-deleted notes
// filed under it.
func (s *Service) noteCounts(ctx context.Context, userID string) (map[string]int, error) {
	notes, err := s.notes.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, n := range notes {
		if visible(n, userID) && n.NotebookID != nil {
			counts[*n.NotebookID]++
		}
	}
	return counts, nil
}
