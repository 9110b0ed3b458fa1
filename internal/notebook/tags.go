package notebook

import (
	"context"
	"errors"
	"strings"

	"ainotebook/internal/apperr"
	"ainotebook/internal/store"
)

var errTagNotFound = apperr.NotFound("tag not found")

// ListTags returns the user's own tags and the shared ones.
func (s *Service) ListTags(ctx context.Context, userID string) ([]store.Tag, error) {
	all, err := s.tags.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]store.Tag, 0, len(all))
	for _, t := range all {
		if inScope(t, userID) {
			out = append(out, t)
		}
	}
	return out, nil
}

// CreateTag adds a tag owned by userID. The name must not already exist
// among the user's tags or the shared ones.
func (s *Service) CreateTag(ctx context.Context, userID string, in TagInput) (store.Tag, error) {
	if err := in.Validate(); err != nil {
		return store.Tag{}, err
	}
	name := strings.TrimSpace(in.Name)

	tag, err := s.tags.Create(ctx, func(existing []store.Tag) (store.Tag, error) {
		if nameTaken(existing, userID, name, "") {
			return store.Tag{}, apperr.Conflict("tag already exists")
		}
		return store.Tag{
			ID:        store.NextSequentialID(existing),
			Name:      name,
			UserID:    userID,
			CreatedAt: s.now(),
		}, nil
	})
	if err != nil {
		return store.Tag{}, err
	}
	s.events.Publish(userID, EventTagCreated, tag)
	return tag, nil
}

// RenameTag changes the name of a tag owned by userID.
func (s *Service) RenameTag(ctx context.Context, userID, id string, in TagInput) (store.Tag, error) {
	if err := in.Validate(); err != nil {
		return store.Tag{}, err
	}
	name := strings.TrimSpace(in.Name)

	tag, err := s.tags.UpdateChecked(ctx, id, func(existing []store.Tag, t *store.Tag) error {
		if t.UserID != userID {
			return errTagNotFound
		}
		if nameTaken(existing, userID, name, id) {
			return apperr.Conflict("tag already exists")
		}
		t.Name = name
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.Tag{}, errTagNotFound
	}
	if err != nil {
		return store.Tag{}, err
	}
	s.events.Publish(userID, EventTagUpdated, tag)
	return tag, nil
}

// DeleteTag removes a tag owned by userID. Shared tags cannot be deleted.
func (s *Service) DeleteTag(ctx context.Context, userID, id string) error {
	t, err := s.tags.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && t.UserID != userID) {
		return errTagNotFound
	}
	if err != nil {
		return err
	}
	if _, err := s.tags.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errTagNotFound
		}
		return err
	}
	s.events.Publish(userID, EventTagDeleted, map[string]string{"id": id})
	return nil
}

func inScope(t store.Tag, userID string) bool {
	return t.UserID == userID || t.Shared()
}

func nameTaken(tags []store.Tag, userID, name, exceptID string) bool {
	for _, t := range tags {
		if t.ID != exceptID && t.Name == name && inScope(t, userID) {
			return true
		}
	}
	return false
}
