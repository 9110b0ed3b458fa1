package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"ainotebook/internal/auth"
	"ainotebook/internal/chat"
)

func (s *Server) handleSendMessage(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var in chat.SendMessageInput
	if err := bind(c, &in); err != nil {
		return err
	}
	reply, err := s.chat.SendMessage(c.Request().Context(), userID, in)
	if err != nil {
		return err
	}
	return ok(c, reply)
}

func (s *Server) handleModels(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	models, err := s.chat.AvailableModels(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return ok(c, models)
}

func (s *Server) handleListConfigs(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	configs, err := s.chat.ListConfigs(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return ok(c, configs)
}

func (s *Server) handleCreateConfig(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var in chat.CreateConfigInput
	if err := bind(c, &in); err != nil {
		return err
	}
	cfg, err := s.chat.CreateConfig(c.Request().Context(), userID, in)
	if err != nil {
		return err
	}
	return created(c, "API config created", cfg)
}

func (s *Server) handleUpdateConfig(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var in chat.UpdateConfigInput
	if err := bind(c, &in); err != nil {
		return err
	}
	cfg, err := s.chat.UpdateConfig(c.Request().Context(), userID, c.Param("id"), in)
	if err != nil {
		return err
	}
	return okMessage(c, "API config updated", cfg)
}

func (s *Server) handleDeleteConfig(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	if err := s.chat.DeleteConfig(c.Request().Context(), userID, c.Param("id")); err != nil {
		return err
	}
	return okMessage(c, "API config deleted", nil)
}

func (s *Server) handleConfigStats(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	stats, err := s.chat.ConfigStats(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return ok(c, stats)
}

// handleTestConfig reports the outcome in the success flag itself.
func (s *Server) handleTestConfig(c echo.Context) error {
	var in chat.TestConfigInput
	if err := bind(c, &in); err != nil {
		return err
	}
	if s.chat.TestConfig(c.Request().Context(), in) {
		return c.JSON(http.StatusOK, Envelope{Success: true, Message: "API config works"})
	}
	return c.JSON(http.StatusOK, Envelope{Success: false, Message: "API config test failed"})
}
