// Package notebook implements notes, notebooks and tags for a single
// authenticated user at a time. Every operation is scoped by user id.
package notebook

import (
	"time"

	"ainotebook/internal/logging"
	"ainotebook/internal/store"
)

// Event types published after successful mutations.
const (
	EventNoteCreated     = "note.created"
	EventNoteUpdated     = "note.updated"
	EventNoteDeleted     = "note.deleted"
	EventNotebookCreated = "notebook.created"
	EventNotebookUpdated = "notebook.updated"
	EventNotebookDeleted = "notebook.deleted"
	EventTagCreated      = "tag.created"
	EventTagUpdated      = "tag.updated"
	EventTagDeleted      = "tag.deleted"
)

// Publisher receives change events for a user.
type Publisher interface {
	Publish(userID, eventType string, payload interface{})
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, interface{}) {}

// Service operates on the notes, notebooks and tags collections.
type Service struct {
	notes     store.Collection[store.Note]
	notebooks store.Collection[store.Notebook]
	tags      store.Collection[store.Tag]
	users     store.Collection[store.User]
	configs   store.Collection[store.APIConfig]
	events    Publisher
	logger    *logging.Logger
	now       func() time.Time
}

// NewService creates the service over st. events may be nil.
func NewService(st *store.Store, events Publisher, logger *logging.Logger) *Service {
	if events == nil {
		events = nopPublisher{}
	}
	return &Service{
		notes:     st.Notes,
		notebooks: st.Notebooks,
		tags:      st.Tags,
		users:     st.Users,
		configs:   st.APIConfigs,
		events:    events,
		logger:    logger,
		now:       store.Now,
	}
}
