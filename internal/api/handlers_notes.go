package api

import (
	"github.com/labstack/echo/v4"

	"ainotebook/internal/apperr"
	"ainotebook/internal/auth"
	"ainotebook/internal/ingest"
	"ainotebook/internal/notebook"
)

func (s *Server) handleListNotes(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	page, err := notebook.ParsePage(c.QueryParam("page"), c.QueryParam("limit"))
	if err != nil {
		return err
	}
	filter := notebook.NoteFilter{
		NotebookID: c.QueryParam("notebook_id"),
		Favorite:   notebook.ParseFlag(c.QueryParam("favorite")),
		Archived:   notebook.ParseFlag(c.QueryParam("archived")),
	}
	list, err := s.notes.ListNotes(c.Request().Context(), userID, filter, page)
	if err != nil {
		return err
	}
	return ok(c, list)
}

func (s *Server) handleGetNote(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	note, err := s.notes.GetNote(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return err
	}
	return ok(c, note)
}

func (s *Server) handleCreateNote(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var in notebook.CreateNoteInput
	if err := bind(c, &in); err != nil {
		return err
	}
	note, err := s.notes.CreateNote(c.Request().Context(), userID, in)
	if err != nil {
		return err
	}
	return created(c, "Note created", note)
}

func (s *Server) handleClipNote(c echo.Context) error {
	if s.clipper == nil {
		return apperr.Validation("web clipping is disabled")
	}
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var in ingest.ClipInput
	if err := bind(c, &in); err != nil {
		return err
	}
	note, err := s.clipper.Clip(c.Request().Context(), userID, in)
	if err != nil {
		return err
	}
	return created(c, "Page clipped", note)
}

func (s *Server) handleUpdateNote(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var in notebook.UpdateNoteInput
	if err := bind(c, &in); err != nil {
		return err
	}
	note, err := s.notes.UpdateNote(c.Request().Context(), userID, c.Param("id"), in)
	if err != nil {
		return err
	}
	return okMessage(c, "Note updated", note)
}

func (s *Server) handleDeleteNote(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	permanent := c.QueryParam("permanent") == "true"
	if err := s.notes.DeleteNote(c.Request().Context(), userID, c.Param("id"), permanent); err != nil {
		return err
	}
	if permanent {
		return okMessage(c, "Note permanently deleted", nil)
	}
	return okMessage(c, "Note deleted", nil)
}

func (s *Server) handleToggleFavorite(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	note, err := s.notes.ToggleFavorite(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return err
	}
	return ok(c, note)
}

func (s *Server) handleToggleArchive(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	note, err := s.notes.ToggleArchive(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return err
	}
	return ok(c, note)
}

func (s *Server) handleSearch(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	page, err := notebook.ParsePage(c.QueryParam("page"), c.QueryParam("limit"))
	if err != nil {
		return err
	}
	result, err := s.notes.Search(c.Request().Context(), userID, c.QueryParam("q"), page)
	if err != nil {
		return err
	}
	return ok(c, result)
}

func (s *Server) handleListNotebooks(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	notebooks, err := s.notes.ListNotebooks(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return ok(c, notebooks)
}

func (s *Server) handleGetNotebook(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	nb, err := s.notes.GetNotebook(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return err
	}
	return ok(c, nb)
}

func (s *Server) handleCreateNotebook(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var in notebook.CreateNotebookInput
	if err := bind(c, &in); err != nil {
		return err
	}
	nb, err := s.notes.CreateNotebook(c.Request().Context(), userID, in)
	if err != nil {
		return err
	}
	return created(c, "Notebook created", nb)
}

func (s *Server) handleUpdateNotebook(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var in notebook.UpdateNotebookInput
	if err := bind(c, &in); err != nil {
		return err
	}
	nb, err := s.notes.UpdateNotebook(c.Request().Context(), userID, c.Param("id"), in)
	if err != nil {
		return err
	}
	return okMessage(c, "Notebook updated", nb)
}

func (s *Server) handleDeleteNotebook(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	if err := s.notes.DeleteNotebook(c.Request().Context(), userID, c.Param("id")); err != nil {
		return err
	}
	return okMessage(c, "Notebook deleted", nil)
}

func (s *Server) handleListTags(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	tags, err := s.notes.ListTags(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return ok(c, tags)
}

func (s *Server) handleCreateTag(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var in notebook.TagInput
	if err := bind(c, &in); err != nil {
		return err
	}
	tag, err := s.notes.CreateTag(c.Request().Context(), userID, in)
	if err != nil {
		return err
	}
	return created(c, "Tag created", tag)
}

func (s *Server) handleRenameTag(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var in notebook.TagInput
	if err := bind(c, &in); err != nil {
		return err
	}
	tag, err := s.notes.RenameTag(c.Request().Context(), userID, c.Param("id"), in)
	if err != nil {
		return err
	}
	return okMessage(c, "Tag updated", tag)
}

func (s *Server) handleDeleteTag(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	if err := s.notes.DeleteTag(c.Request().Context(), userID, c.Param("id")); err != nil {
		return err
	}
	return okMessage(c, "Tag deleted", nil)
}
