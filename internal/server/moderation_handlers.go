package server

import (
	"context"

	"forum/internal/models"
	"forum/internal/service"

	"github.com/gofiber/fiber/v2"
)

type moderationAction func(ctx context.Context, actorID, targetID uint) (*service.ModerationResult, error)

// moderate adapts a moderation transition to a POST /api/mod/.../:id/<action>
// route.
func (s *Server) moderate(action moderationAction) fiber.Handler {
	return func(c *fiber.Ctx) error {
		targetID, err := parseID(c, "id")
		if err != nil {
			return nil
		}

		result, err := action(c.UserContext(), currentUserID(c), targetID)
		if err != nil {
			return models.RespondWithAppError(c, err)
		}
		return c.JSON(result)
	}
}

// GetModerationStats handles GET /api/mod/stats
func (s *Server) GetModerationStats(c *fiber.Ctx) error {
	stats, err := s.moderation.Stats(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(stats)
}

// GetModerationUsers handles GET /api/mod/users
func (s *Server) GetModerationUsers(c *fiber.Ctx) error {
	page := parsePagination(c, 50)

	users, err := s.moderation.Users(c.UserContext(), currentUserID(c), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(users)
}

// GetModerationPosts handles GET /api/mod/posts
func (s *Server) GetModerationPosts(c *fiber.Ctx) error {
	page := parsePagination(c, 20)

	posts, err := s.moderation.RecentPosts(c.UserContext(), currentUserID(c), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// GetModerationLog handles GET /api/mod/log
func (s *Server) GetModerationLog(c *fiber.Ctx) error {
	page := parsePagination(c, 50)

	entries, err := s.moderation.Log(c.UserContext(), currentUserID(c), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(entries)
}
