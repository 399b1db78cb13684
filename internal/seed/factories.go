// Package seed creates reference categories and demo forum data. Demo data
// goes through the services so every counter stays consistent with the
// rows behind it.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"forum/internal/middleware"
	"forum/internal/models"
	"forum/internal/notifications"
	"forum/internal/repository"
	"forum/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options sizes the demo data set.
type Options struct {
	Members        int
	Threads        int
	PostsPerThread int
	LikesPerPost   int
	// FirstMemberID is the identity-provider id given to the first fake
	// member; later members count up from it.
	FirstMemberID uint
	// Seed makes generated content reproducible when non-zero.
	Seed int64
}

// Factory builds demo members and content through the services.
type Factory struct {
	db         *gorm.DB
	opts       Options
	rng        *rand.Rand
	profiles   *service.ProfileService
	threads    *service.ThreadService
	likes      *service.LikeService
	dispatcher *notifications.Dispatcher
}

// NewFactory creates a Factory bound to db.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	if opts.FirstMemberID == 0 {
		opts.FirstMemberID = 1000
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gofakeit.Seed(seed)

	runner := repository.NewRunner(db, repository.DefaultRetryPolicy())
	repos := service.NewRepositories(db)
	dispatcher := notifications.NewDispatcher(runner, notifications.Options{})

	return &Factory{
		db:         db,
		opts:       opts,
		rng:        rand.New(rand.NewSource(seed)),
		profiles:   service.NewProfileService(runner, repos),
		threads:    service.NewThreadService(runner, repos, dispatcher, nil),
		likes:      service.NewLikeService(runner, repos, dispatcher),
		dispatcher: dispatcher,
	}
}

// CreateMember registers a fake member with the given identity-provider id.
func (f *Factory) CreateMember(ctx context.Context, id uint) (*models.Profile, error) {
	username := strings.ToLower(gofakeit.Username())
	username = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return '_'
	}, username)
	if len(username) > 40 {
		username = username[:40]
	}
	username = fmt.Sprintf("%s_%d", username, id)

	return f.profiles.Register(ctx, service.RegisterInput{
		UserID:      id,
		Username:    username,
		DisplayName: gofakeit.Name(),
	})
}

// CreateThread opens a thread with generated title and content.
func (f *Factory) CreateThread(ctx context.Context, authorID, categoryID uint) (*models.Thread, error) {
	return f.threads.CreateThread(ctx, service.CreateThreadInput{
		AuthorID:   authorID,
		CategoryID: categoryID,
		Title:      strings.TrimSuffix(gofakeit.Sentence(6), "."),
		Content:    gofakeit.Paragraph(2, 3, 12, "\n\n"),
	})
}

// CreatePost replies to a thread with generated content.
func (f *Factory) CreatePost(ctx context.Context, authorID, threadID uint) (*models.Post, error) {
	return f.threads.CreatePost(ctx, service.CreatePostInput{
		AuthorID: authorID,
		ThreadID: threadID,
		Content:  gofakeit.Paragraph(1, 2, 10, "\n\n"),
	})
}

// Summary counts what Demo created.
type Summary struct {
	Members int
	Threads int
	Posts   int
	Likes   int
	Events  int
}

// Demo fills the active categories with members, threads, replies and
// likes, then drains the notification outbox.
func (f *Factory) Demo(ctx context.Context) (*Summary, error) {
	categories, err := repository.NewCategoryRepository(f.db).List(ctx)
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("no active categories to seed into")
	}

	var summary Summary
	members := make([]*models.Profile, 0, f.opts.Members)
	for i := 0; i < f.opts.Members; i++ {
		p, err := f.CreateMember(ctx, f.opts.FirstMemberID+uint(i))
		if err != nil {
			return nil, fmt.Errorf("create member: %w", err)
		}
		members = append(members, p)
	}
	summary.Members = len(members)
	if len(members) == 0 {
		return &summary, nil
	}

	for i := 0; i < f.opts.Threads; i++ {
		category := categories[f.rng.Intn(len(categories))]
		thread, err := f.CreateThread(ctx, f.pick(members).ID, category.ID)
		if err != nil {
			return nil, fmt.Errorf("create thread: %w", err)
		}
		summary.Threads++

		for j := 0; j < f.opts.PostsPerThread; j++ {
			post, err := f.CreatePost(ctx, f.pick(members).ID, thread.ID)
			if err != nil {
				return nil, fmt.Errorf("create post: %w", err)
			}
			summary.Posts++

			likers := f.rng.Perm(len(members))
			for k := 0; k < f.opts.LikesPerPost && k < len(likers); k++ {
				if _, err := f.likes.ToggleLike(ctx, members[likers[k]].ID, post.ID); err != nil {
					return nil, fmt.Errorf("like post: %w", err)
				}
				summary.Likes++
			}
		}
	}

	if summary.Events, err = f.dispatcher.Drain(ctx); err != nil {
		return nil, fmt.Errorf("drain notifications: %w", err)
	}

	middleware.Logger.InfoContext(ctx, "demo data seeded",
		slog.Int("members", summary.Members),
		slog.Int("threads", summary.Threads),
		slog.Int("posts", summary.Posts),
		slog.Int("likes", summary.Likes),
	)
	return &summary, nil
}

func (f *Factory) pick(members []*models.Profile) *models.Profile {
	return members[f.rng.Intn(len(members))]
}
