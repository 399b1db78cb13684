package server

import (
	"forum/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetNotifications handles GET /api/notifications. Pass unread=true to list
// only unread notifications.
func (s *Server) GetNotifications(c *fiber.Ctx) error {
	userID := currentUserID(c)
	page := parsePagination(c, 20)

	var (
		list []*models.Notification
		err  error
	)
	if c.QueryBool("unread", false) {
		list, err = s.dispatcher.ListUnread(c.UserContext(), userID, page.Limit, page.Offset)
	} else {
		list, err = s.dispatcher.ListAll(c.UserContext(), userID, page.Limit, page.Offset)
	}
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(list)
}

// GetUnreadCount handles GET /api/notifications/unread-count
func (s *Server) GetUnreadCount(c *fiber.Ctx) error {
	count, err := s.dispatcher.UnreadCount(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}

// MarkNotificationRead handles POST /api/notifications/:id/read
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.dispatcher.MarkRead(c.UserContext(), currentUserID(c), id); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkAllNotificationsRead handles POST /api/notifications/read-all
func (s *Server) MarkAllNotificationsRead(c *fiber.Ctx) error {
	updated, err := s.dispatcher.MarkAllRead(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"updated": updated})
}

// DeleteNotification handles DELETE /api/notifications/:id
func (s *Server) DeleteNotification(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.dispatcher.Delete(c.UserContext(), currentUserID(c), id); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
