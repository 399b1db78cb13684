package server

import (
	"forum/internal/models"
	"forum/internal/service"

	"github.com/gofiber/fiber/v2"
)

// RegisterProfile handles POST /api/users/me. It provisions the forum
// profile of the authenticated identity-provider user.
func (s *Server) RegisterProfile(c *fiber.Ctx) error {
	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	profile, err := s.profiles.Register(c.UserContext(), service.RegisterInput{
		UserID:      currentUserID(c),
		Username:    req.Username,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(profile)
}

// GetMyProfile handles GET /api/users/me
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	profile, err := s.profiles.GetProfile(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(profile)
}

// UpdateMyProfile handles PUT /api/users/me
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	var req struct {
		DisplayName string `json:"display_name"`
		Bio         string `json:"bio"`
		Location    string `json:"location"`
		Website     string `json:"website"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	profile, err := s.profiles.UpdateProfile(c.UserContext(), currentUserID(c), service.UpdateProfileInput{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		Location:    req.Location,
		Website:     req.Website,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(profile)
}

// GetUserProfile handles GET /api/users/:id
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, 10)

	activity, err := s.profiles.Activity(c.UserContext(), id, page.Limit)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(activity)
}

// GetMembers handles GET /api/members
func (s *Server) GetMembers(c *fiber.Ctx) error {
	page := parsePagination(c, 50)

	members, err := s.profiles.ListMembers(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(members)
}

// GetFeatureFlags handles GET /api/users/me/feature-flags. It returns the
// flags evaluated for the current user.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	if s.featureFlags == nil {
		return c.JSON(fiber.Map{"evaluated": map[string]bool{}})
	}
	return c.JSON(fiber.Map{
		"evaluated": s.featureFlags.Snapshot(currentUserID(c)),
	})
}
