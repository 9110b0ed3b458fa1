package notebook

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ainotebook/internal/apperr"
	"ainotebook/internal/store"
)

func TestNotebooks_CRUDAndNoteCount(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.CreateNotebook(ctx, "u1", CreateNotebookInput{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	nb, err := s.CreateNotebook(ctx, "u1", CreateNotebookInput{Title: "Work"})
	require.NoError(t, err)
	assert.Equal(t, "2", nb.ID, "seed notebook holds id 1")
	assert.Equal(t, DefaultColor, nb.Color)
	assert.Equal(t, "", nb.Description)

	list, err := s.ListNotebooks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 0, list[0].NoteCount)

	in := OptionalString{Set: true, Value: &nb.ID}
	for i := 0; i < 3; i++ {
		mustCreate(t, s, "u1", CreateNoteInput{Title: "n", NotebookID: in})
	}
	deleted := mustCreate(t, s, "u1", CreateNoteInput{Title: "gone", NotebookID: in})
	require.NoError(t, s.DeleteNote(ctx, "u1", deleted.ID, false))
	mustCreate(t, s, "u2", CreateNoteInput{Title: "foreign", NotebookID: in})

	list, err = s.ListNotebooks(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, list[0].NoteCount)

	got, err := s.GetNotebook(ctx, "u1", nb.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.NoteCount)

	_, err = s.GetNotebook(ctx, "u2", nb.ID)
	assert.EqualError(t, err, "notebook not found")

	color := "#ff0000"
	updated, err := s.UpdateNotebook(ctx, "u1", nb.ID, UpdateNotebookInput{Color: &color})
	require.NoError(t, err)
	assert.Equal(t, "Work", updated.Title)
	assert.Equal(t, "#ff0000", updated.Color)
	assert.Equal(t, 3, updated.NoteCount)

	_, err = s.UpdateNotebook(ctx, "u2", nb.ID, UpdateNotebookInput{Color: &color})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.True(t, apperr.Is(s.DeleteNotebook(ctx, "u2", nb.ID), apperr.KindNotFound))
	require.NoError(t, s.DeleteNotebook(ctx, "u1", nb.ID))

	notes, err := s.ListNotes(ctx, "u1", NoteFilter{NotebookID: nb.ID}, Page{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Len(t, notes.Notes, 3, "deleting a notebook does not cascade")
}

func TestTags(t *testing.T) {
	s, _, rec := newTestService(t)
	ctx := context.Background()

	tags, err := s.ListTags(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, tags, 3)

	_, err = s.CreateTag(ctx, "u1", TagInput{Name: "work"})
	assert.True(t, apperr.Is(err, apperr.KindConflict), "shared names are taken")

	mine, err := s.CreateTag(ctx, "u1", TagInput{Name: "golang"})
	require.NoError(t, err)
	assert.Equal(t, "4", mine.ID)
	assert.Equal(t, "u1", mine.UserID)

	_, err = s.CreateTag(ctx, "u1", TagInput{Name: "golang"})
	assert.EqualError(t, err, "tag already exists")

	theirs, err := s.CreateTag(ctx, "u2", TagInput{Name: "golang"})
	require.NoError(t, err, "same name in another user's scope")

	tags, err = s.ListTags(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, tags, 4)

	_, err = s.RenameTag(ctx, "u1", mine.ID, TagInput{Name: "life"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	renamed, err := s.RenameTag(ctx, "u1", mine.ID, TagInput{Name: "go"})
	require.NoError(t, err)
	assert.Equal(t, "go", renamed.Name)
	_, err = s.RenameTag(ctx, "u1", theirs.ID, TagInput{Name: "x"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.True(t, apperr.Is(s.DeleteTag(ctx, "u1", "1"), apperr.KindNotFound), "shared tags are not owned")
	assert.True(t, apperr.Is(s.DeleteTag(ctx, "u1", theirs.ID), apperr.KindNotFound))
	require.NoError(t, s.DeleteTag(ctx, "u1", mine.ID))

	_, err = s.CreateTag(ctx, "u1", TagInput{Name: " "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	assert.Contains(t, rec.kinds(), EventTagDeleted)
}

func TestRenameTag_ConcurrentRenamesStayUnique(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		tag, err := s.CreateTag(ctx, "u1", TagInput{Name: fmt.Sprintf("tag-%d", i)})
		require.NoError(t, err)
		ids = append(ids, tag.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.RenameTag(ctx, "u1", id, TagInput{Name: "same"})
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindConflict), err.Error())
	}
	assert.Equal(t, 1, succeeded)

	tags, err := s.ListTags(ctx, "u1")
	require.NoError(t, err)
	same := 0
	for _, tag := range tags {
		if tag.Name == "same" {
			same++
		}
	}
	assert.Equal(t, 1, same)
}

func TestExportAndPurge(t *testing.T) {
	s, st, _ := newTestService(t)
	ctx := context.Background()

	_, err := st.Users.Create(ctx, func([]store.User) (store.User, error) {
		return store.User{ID: "u1", Username: "ann", Email: "ann@example.com", Password: "hash"}, nil
	})
	require.NoError(t, err)
	_, err = st.APIConfigs.Create(ctx, func([]store.APIConfig) (store.APIConfig, error) {
		return store.APIConfig{ID: "c1", Name: "openai", BaseURL: "https://api.openai.com/v1", APIKey: "sk-secret-9876", UserID: "u1"}, nil
	})
	require.NoError(t, err)
	_, err = s.CreateNotebook(ctx, "u1", CreateNotebookInput{Title: "nb"})
	require.NoError(t, err)
	n := mustCreate(t, s, "u1", CreateNoteInput{Title: "a"})
	require.NoError(t, s.DeleteNote(ctx, "u1", n.ID, false))
	mustCreate(t, s, "u1", CreateNoteInput{Title: "b"})
	mustCreate(t, s, "u2", CreateNoteInput{Title: "other"})
	_, err = s.CreateTag(ctx, "u1", TagInput{Name: "mine"})
	require.NoError(t, err)

	exp, err := s.Export(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ann", exp.User.Username)
	assert.Len(t, exp.Notebooks, 1)
	assert.Len(t, exp.Notes, 2, "trashed notes are exported")
	assert.Len(t, exp.Tags, 1)
	require.Len(t, exp.APIConfigs, 1)
	assert.Equal(t, "***9876", exp.APIConfigs[0].APIKey)
	assert.False(t, exp.ExportedAt.IsZero())

	_, err = s.Export(ctx, "ghost")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, s.PurgeUser(ctx, "u1"))
	notes, err := st.Notes.List(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "u2", notes[0].UserID)

	configs, err := st.APIConfigs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, configs)

	tags, err := st.Tags.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 3, "shared tags survive")

	nbs, err := s.ListNotebooks(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, nbs)
}

func TestDeriveContent(t *testing.T) {
	d := deriveContent(nil)
	assert.Equal(t, "", d.text)
	assert.Equal(t, 1, d.metadata.ReadingTime)

	d = deriveContent(raw("x"))
	assert.Equal(t, store.NoteMetadata{WordCount: 1, ReadingTime: 1}, d.metadata)

	d = deriveContent(raw([]int{1, 2}))
	assert.Equal(t, "[1,2]", d.text)
	assert.Equal(t, "", d.excerpt)

	assert.True(t, truthy(raw(map[string]int{})))
	assert.True(t, truthy(raw([]int{})))
	assert.False(t, truthy(raw("")))
	assert.Equal(t, "hi there", stripTags("<b>hi</b> <i>there</i>"))
}
