package server

import (
	"forum/internal/models"
	"forum/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetCategories handles GET /api/categories
func (s *Server) GetCategories(c *fiber.Ctx) error {
	categories, err := s.threads.ListCategories(c.UserContext())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(categories)
}

// GetCategoryThreads handles GET /api/categories/:slug/threads
func (s *Server) GetCategoryThreads(c *fiber.Ctx) error {
	page := parsePagination(c, 20)

	category, threads, err := s.threads.ListThreads(c.UserContext(), c.Params("slug"), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"category": category,
		"threads":  threads,
	})
}

// GetActiveThreads handles GET /api/threads/active
func (s *Server) GetActiveThreads(c *fiber.Ctx) error {
	page := parsePagination(c, 10)

	threads, err := s.threads.ActiveThreads(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(threads)
}

// GetRecentThreads handles GET /api/threads/recent
func (s *Server) GetRecentThreads(c *fiber.Ctx) error {
	page := parsePagination(c, 20)

	threads, err := s.threads.RecentThreads(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(threads)
}

// GetThread handles GET /api/threads/:id
func (s *Server) GetThread(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, 50)

	detail, err := s.threads.GetThread(c.UserContext(), id, currentUserID(c), page.Limit)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(detail)
}

// GetThreadPosts handles GET /api/threads/:id/posts
func (s *Server) GetThreadPosts(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, 50)

	posts, err := s.threads.ListPosts(c.UserContext(), id, page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// ViewThread handles POST /api/threads/:id/view
func (s *Server) ViewThread(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.views.IncrementView(c.UserContext(), id); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CreateThread handles POST /api/threads
func (s *Server) CreateThread(c *fiber.Ctx) error {
	var req struct {
		CategoryID uint   `json:"category_id"`
		Title      string `json:"title"`
		Content    string `json:"content"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	thread, err := s.threads.CreateThread(c.UserContext(), service.CreateThreadInput{
		AuthorID:   currentUserID(c),
		CategoryID: req.CategoryID,
		Title:      req.Title,
		Content:    req.Content,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(thread)
}

// CreatePost handles POST /api/threads/:id/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	threadID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.threads.CreatePost(c.UserContext(), service.CreatePostInput{
		AuthorID: currentUserID(c),
		ThreadID: threadID,
		Content:  req.Content,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// DeleteThread handles DELETE /api/threads/:id and DELETE /api/mod/threads/:id.
// Authors may delete their own threads; moderators may delete any.
func (s *Server) DeleteThread(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	result, err := s.moderation.DeleteThread(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(result)
}

// DeletePost handles DELETE /api/posts/:id and DELETE /api/mod/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	result, err := s.moderation.DeletePost(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(result)
}

// ToggleLike handles POST /api/posts/:id/like
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	outcome, err := s.likes.ToggleLike(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(outcome)
}

// Search handles GET /api/search?q=...
func (s *Server) Search(c *fiber.Ctx) error {
	results, err := s.threads.Search(c.UserContext(), c.Query("q"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(results)
}
