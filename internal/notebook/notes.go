package notebook

import (
	"context"
	"errors"

	"ainotebook/internal/apperr"
	"ainotebook/internal/store"
)

var errNoteNotFound = apperr.NotFound("note not found")

// NoteList is one page of notes.
type NoteList struct {
	Notes      []store.Note `json:"notes"`
	Pagination Pagination   `json:"pagination"`
}

// ListNotes returns the user's non-deleted notes matching filter, in
// insertion order.
func (s *Service) ListNotes(ctx context.Context, userID string, filter NoteFilter, page Page) (NoteList, error) {
	all, err := s.notes.List(ctx)
	if err != nil {
		return NoteList{}, err
	}

	matched := make([]store.Note, 0, len(all))
	for _, n := range all {
		if n.UserID != userID || n.IsDeleted {
			continue
		}
		if filter.NotebookID != "" && !n.InNotebook(filter.NotebookID) {
			continue
		}
		if filter.Favorite != nil && n.IsFavorite != *filter.Favorite {
			continue
		}
		if filter.Archived != nil && n.IsArchived != *filter.Archived {
			continue
		}
		matched = append(matched, n)
	}

	notes, pg := paginate(matched, page)
	return NoteList{Notes: notes, Pagination: pg}, nil
}

// GetNote returns a non-deleted note owned by userID.
func (s *Service) GetNote(ctx context.Context, userID, id string) (store.Note, error) {
	n, err := s.notes.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !visible(n, userID)) {
		return store.Note{}, errNoteNotFound
	}
	return n, err
}

// CreateNote stores a new note for userID.
func (s *Service) CreateNote(ctx context.Context, userID string, in CreateNoteInput) (store.Note, error) {
	if err := in.Validate(); err != nil {
		return store.Note{}, err
	}

	content := in.Content
	if !truthy(content) {
		content = emptyContent
	}
	d := deriveContent(content)

	title := in.Title
	if title == "" {
		title = DefaultTitle
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	status := in.Status
	if status == "" {
		status = DefaultStatus
	}

	note, err := s.notes.Create(ctx, func(existing []store.Note) (store.Note, error) {
		now := s.now()
		return store.Note{
			ID:          store.NextSequentialID(existing),
			Title:       title,
			Content:     d.content,
			ContentText: d.text,
			Excerpt:     d.excerpt,
			NotebookID:  in.NotebookID.normalized(),
			UserID:      userID,
			Tags:        tags,
			Status:      status,
			Metadata:    d.metadata,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	})
	if err != nil {
		return store.Note{}, err
	}

	s.events.Publish(userID, EventNoteCreated, note)
	return note, nil
}

// UpdateNote applies the fields present in in.
func (s *Service) UpdateNote(ctx context.Context, userID, id string, in UpdateNoteInput) (store.Note, error) {
	if err := in.Validate(); err != nil {
		return store.Note{}, err
	}

	note, err := s.mutateNote(ctx, userID, id, func(n *store.Note) {
		if in.Title != nil {
			n.Title = *in.Title
		}
		if in.Content != nil {
			d := deriveContent(in.Content)
			n.Content = d.content
			n.ContentText = d.text
			n.Excerpt = d.excerpt
			n.Metadata = d.metadata
		}
		if in.NotebookID.Set {
			n.NotebookID = in.NotebookID.normalized()
		}
		if in.Tags != nil {
			n.Tags = append([]string{}, (*in.Tags)...)
		}
		if in.Status != nil {
			n.Status = *in.Status
		}
	})
	if err != nil {
		return store.Note{}, err
	}

	s.events.Publish(userID, EventNoteUpdated, note)
	return note, nil
}

// ToggleFavorite flips is_favorite.
func (s *Service) ToggleFavorite(ctx context.Context, userID, id string) (store.Note, error) {
	note, err := s.mutateNote(ctx, userID, id, func(n *store.Note) {
		n.IsFavorite = !n.IsFavorite
	})
	if err != nil {
		return store.Note{}, err
	}
	s.events.Publish(userID, EventNoteUpdated, note)
	return note, nil
}

// ToggleArchive flips is_archived.
func (s *Service) ToggleArchive(ctx context.Context, userID, id string) (store.Note, error) {
	note, err := s.mutateNote(ctx, userID, id, func(n *store.Note) {
		n.IsArchived = !n.IsArchived
	})
	if err != nil {
		return store.Note{}, err
	}
	s.events.Publish(userID, EventNoteUpdated, note)
	return note, nil
}

// DeleteNote soft-deletes a note, or removes it when permanent is set.
// Soft-deleted notes can still be deleted permanently.
func (s *Service) DeleteNote(ctx context.Context, userID, id string, permanent bool) error {
	owned := func(n store.Note) error {
		if n.UserID != userID {
			return errNoteNotFound
		}
		return nil
	}

	if permanent {
		n, err := s.notes.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return errNoteNotFound
		}
		if err != nil {
			return err
		}
		if err := owned(n); err != nil {
			return err
		}
		if _, err := s.notes.Delete(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errNoteNotFound
			}
			return err
		}
	} else {
		_, err := s.notes.Update(ctx, id, func(n *store.Note) error {
			if err := owned(*n); err != nil {
				return err
			}
			now := s.now()
			n.IsDeleted = true
			n.DeletedAt = &now
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			return errNoteNotFound
		}
		if err != nil {
			return err
		}
	}

	s.events.Publish(userID, EventNoteDeleted, map[string]interface{}{"id": id, "permanent": permanent})
	return nil
}

// mutateNote applies fn to a visible note and bumps updated_at.
func (s *Service) mutateNote(ctx context.Context, userID, id string, fn func(*store.Note)) (store.Note, error) {
	note, err := s.notes.Update(ctx, id, func(n *store.Note) error {
		if !visible(*n, userID) {
			return errNoteNotFound
		}
		fn(n)
		n.UpdatedAt = s.now()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.Note{}, errNoteNotFound
	}
	return note, err
}

func visible(n store.Note, userID string) bool {
	return n.UserID == userID && !n.IsDeleted
}
