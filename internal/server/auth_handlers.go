package server

import (
	"tidepool/internal/middleware"
	"tidepool/internal/models"
	"tidepool/internal/service"
	"tidepool/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// Register handles POST /api/auth/register
func (s *Server) Register(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewInvalidArgumentError("Invalid request body"))
	}

	if err := validation.ValidateUsername(req.Username); err != nil {
		return models.RespondWithError(c, models.NewInvalidArgumentError(err.Error()))
	}
	if err := validation.ValidateEmail(req.Email); err != nil {
		return models.RespondWithError(c, models.NewInvalidArgumentError(err.Error()))
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		return models.RespondWithError(c, models.NewInvalidArgumentError(err.Error()))
	}

	user, token, err := s.authService.Register(c.UserContext(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Login handles POST /api/auth/login. The credential may be a username or an
// email address.
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		UsernameOrEmail string `json:"username_or_email"`
		Password        string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewInvalidArgumentError("Invalid request body"))
	}
	if req.UsernameOrEmail == "" || req.Password == "" {
		return models.RespondWithError(c, models.NewInvalidArgumentError("Username/email and password are required"))
	}

	user, token, err := s.authService.Login(c.UserContext(), req.UsernameOrEmail, req.Password)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Logout handles POST /api/auth/logout. Idempotent: an absent or already
// destroyed session still yields success.
func (s *Server) Logout(c *fiber.Ctx) error {
	token := middleware.SessionToken(c)
	if err := s.authService.Logout(c.UserContext(), token); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// Me handles GET /api/auth/me
func (s *Server) Me(c *fiber.Ctx) error {
	user, err := s.authService.Me(c.UserContext(), middleware.SessionToken(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(user)
}

// ForgotPassword handles POST /api/auth/forgot-password. The response does
// not reveal whether the email exists.
func (s *Server) ForgotPassword(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewInvalidArgumentError("Invalid request body"))
	}
	if req.Email == "" {
		return models.RespondWithError(c, models.NewInvalidArgumentError("Email is required"))
	}

	if err := s.authService.RequestReset(c.UserContext(), req.Email); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// ChangePassword handles POST /api/auth/change-password, consuming a reset
// token delivered out-of-band.
func (s *Server) ChangePassword(c *fiber.Ctx) error {
	var req struct {
		UserID      uint   `json:"user_id"`
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewInvalidArgumentError("Invalid request body"))
	}
	if req.UserID == 0 || req.Token == "" {
		return models.RespondWithError(c, models.NewInvalidArgumentError("user_id and token are required"))
	}
	if err := validation.ValidatePassword(req.NewPassword); err != nil {
		return models.RespondWithError(c, models.NewInvalidArgumentError(err.Error()))
	}

	if err := s.authService.ConsumeReset(c.UserContext(), req.UserID, req.Token, req.NewPassword); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
