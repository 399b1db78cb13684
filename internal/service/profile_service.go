package service

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"forum/internal/cache"
	"forum/internal/models"
	"forum/internal/repository"

	"gorm.io/gorm"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)

// ProfileService provisions and presents profiles.
type ProfileService struct {
	runner *repository.Runner
	repos  Repositories
}

type RegisterInput struct {
	UserID      uint
	Username    string
	DisplayName string
}

type UpdateProfileInput struct {
	DisplayName string
	Bio         string
	Location    string
	Website     string
}

// ProfilePage is a profile with its recent visible activity.
type ProfilePage struct {
	Profile    *models.Profile  `json:"profile"`
	Threads    []*models.Thread `json:"threads"`
	Posts      []*models.Post   `json:"posts"`
	LikedPosts []*models.Post   `json:"liked_posts"`
}

func NewProfileService(runner *repository.Runner, repos Repositories) *ProfileService {
	return &ProfileService{runner: runner, repos: repos}
}

// Register creates the forum profile of an identity-provider user. New
// profiles are active members.
func (s *ProfileService) Register(ctx context.Context, in RegisterInput) (*models.Profile, error) {
	if in.UserID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	username := strings.TrimSpace(in.Username)
	if !usernamePattern.MatchString(username) {
		return nil, models.NewValidationError("Username must be 3-50 letters, digits or underscores")
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		return nil, models.NewValidationError(fmt.Sprintf("Display name too long (max %d characters)", maxDisplayNameLen))
	}

	return repository.Execute(ctx, s.runner, "profile.register", func(tx *gorm.DB) (*models.Profile, error) {
		profile := &models.Profile{
			ID:          in.UserID,
			Username:    username,
			DisplayName: displayName,
			Role:        models.RoleMember,
			BanState:    models.BanStateActive,
			JoinedAt:    now(),
		}
		profiles := s.repos.Profiles.WithTx(tx)
		if _, err := profiles.GetByUsername(ctx, username); err == nil {
			return nil, models.NewConflictError("Username already taken")
		} else if !models.IsCode(err, models.CodeNotFound) {
			return nil, err
		}
		if err := profiles.Create(ctx, profile); err != nil {
			return nil, err
		}
		return profile, nil
	})
}

// GetProfile returns a profile for display. The result may be cached and
// is never used for authorization.
func (s *ProfileService) GetProfile(ctx context.Context, id uint) (*models.Profile, error) {
	var profile models.Profile
	err := cache.Aside(ctx, cache.ProfileKey(id), &profile, cache.ProfileTTL, func() error {
		p, err := s.repos.Profiles.GetByID(ctx, id)
		if err != nil {
			return err
		}
		profile = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *ProfileService) UpdateProfile(ctx context.Context, id uint, in UpdateProfileInput) (*models.Profile, error) {
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		return nil, models.NewValidationError("Display name is required")
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		return nil, models.NewValidationError(fmt.Sprintf("Display name too long (max %d characters)", maxDisplayNameLen))
	}
	if utf8.RuneCountInString(in.Bio) > maxBioLen {
		return nil, models.NewValidationError(fmt.Sprintf("Bio too long (max %d characters)", maxBioLen))
	}
	location := strings.TrimSpace(in.Location)
	if utf8.RuneCountInString(location) > maxLocationLen {
		return nil, models.NewValidationError(fmt.Sprintf("Location too long (max %d characters)", maxLocationLen))
	}
	website, err := normalizeWebsite(in.Website)
	if err != nil {
		return nil, err
	}
	details := models.ProfileDetails{DisplayName: displayName, Bio: in.Bio, Location: location, Website: website}

	var updated *models.Profile
	err = s.runner.Do(ctx, "profile.update", func(tx *gorm.DB) error {
		profiles := s.repos.Profiles.WithTx(tx)
		if err := profiles.UpdateDetails(ctx, id, details); err != nil {
			return err
		}
		var err error
		updated, err = profiles.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidateProfiles(ctx, id)
	return updated, nil
}

// normalizeWebsite accepts an empty value or an absolute http(s) URL.
func normalizeWebsite(raw string) (string, error) {
	website := strings.TrimSpace(raw)
	if website == "" {
		return "", nil
	}
	if utf8.RuneCountInString(website) > maxWebsiteLen {
		return "", models.NewValidationError(fmt.Sprintf("Website too long (max %d characters)", maxWebsiteLen))
	}
	u, err := url.Parse(website)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", models.NewValidationError("Website must be an http or https URL")
	}
	return website, nil
}

// ListMembers returns active profiles by reputation.
func (s *ProfileService) ListMembers(ctx context.Context, limit, offset int) ([]*models.Profile, error) {
	return s.repos.Profiles.ListMembers(ctx, limit, offset)
}

// Activity returns the profile page: the profile plus its recent visible
// threads and posts, and the visible posts it liked most recently.
func (s *ProfileService) Activity(ctx context.Context, id uint, limit int) (*ProfilePage, error) {
	profile, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	threads, err := s.repos.Threads.ListByAuthor(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	posts, err := s.repos.Posts.ListByAuthor(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	liked, err := s.repos.Posts.ListLikedBy(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	return &ProfilePage{Profile: profile, Threads: threads, Posts: posts, LikedPosts: liked}, nil
}
