package api

import (
	"github.com/labstack/echo/v4"

	"ainotebook/internal/auth"
)

func (s *Server) handleRegister(c echo.Context) error {
	var in auth.RegisterInput
	if err := bind(c, &in); err != nil {
		return err
	}
	session, err := s.auth.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return created(c, "Registration successful", session)
}

func (s *Server) handleLogin(c echo.Context) error {
	var in auth.LoginInput
	if err := bind(c, &in); err != nil {
		return err
	}
	session, err := s.auth.Login(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return okMessage(c, "Login successful", session)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(c echo.Context) error {
	var in refreshRequest
	if err := bind(c, &in); err != nil {
		return err
	}
	tokens, err := s.auth.Refresh(c.Request().Context(), in.RefreshToken)
	if err != nil {
		return err
	}
	return okMessage(c, "Token refreshed", tokens)
}

func (s *Server) handleMe(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	user, err := s.auth.Me(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return ok(c, user)
}

// handleLogout only acknowledges; tokens stay valid until they expire.
func (s *Server) handleLogout(c echo.Context) error {
	return okMessage(c, "Logged out", nil)
}

func (s *Server) handleStats(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	stats, err := s.notes.Stats(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return ok(c, stats)
}

func (s *Server) handleUpdateProfile(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var in auth.ProfileInput
	if err := bind(c, &in); err != nil {
		return err
	}
	user, err := s.auth.UpdateProfile(c.Request().Context(), userID, in)
	if err != nil {
		return err
	}
	return okMessage(c, "Profile updated", user)
}

func (s *Server) handleChangePassword(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var in auth.PasswordInput
	if err := bind(c, &in); err != nil {
		return err
	}
	if err := s.auth.ChangePassword(c.Request().Context(), userID, in); err != nil {
		return err
	}
	return okMessage(c, "Password changed", nil)
}

func (s *Server) handleDeleteAccount(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	if err := s.auth.DeleteAccount(c.Request().Context(), userID); err != nil {
		return err
	}
	return okMessage(c, "Account deleted", nil)
}

func (s *Server) handleExport(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	export, err := s.notes.Export(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return ok(c, export)
}
