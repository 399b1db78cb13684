package repository

import (
	"context"

	"forum/internal/models"

	"gorm.io/gorm"
)

// ProfileRepository defines data operations for profiles.
type ProfileRepository interface {
	WithTx(tx *gorm.DB) ProfileRepository
	Create(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id uint) (*models.Profile, error)
	GetByUsername(ctx context.Context, username string) (*models.Profile, error)
	Lock(ctx context.Context, id uint, strength LockStrength) (*models.Profile, error)
	SetStanding(ctx context.Context, id uint, standing models.Standing) error
	UpdateDetails(ctx context.Context, id uint, details models.ProfileDetails) error
	IncrementPostCount(ctx context.Context, id uint) error
	AdjustReputation(ctx context.Context, id uint, delta int64) error
	ListMembers(ctx context.Context, limit, offset int) ([]*models.Profile, error)
	ListAll(ctx context.Context, limit, offset int) ([]*models.Profile, error)
	Search(ctx context.Context, query string, limit int) ([]*models.Profile, error)
	Counts(ctx context.Context) (members, banned, moderators int64, err error)
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) WithTx(tx *gorm.DB) ProfileRepository {
	return &profileRepository{db: tx}
}

func (r *profileRepository) Create(ctx context.Context, profile *models.Profile) error {
	err := r.db.WithContext(ctx).Create(profile).Error
	if isUniqueConstraintError(err) {
		return models.NewConflictError("profile already exists")
	}
	return err
}

func (r *profileRepository) GetByID(ctx context.Context, id uint) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).First(&profile, id).Error; err != nil {
		return nil, notFound(err, "Profile", id)
	}
	return &profile, nil
}

func (r *profileRepository) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&profile).Error; err != nil {
		return nil, notFound(err, "Profile", username)
	}
	return &profile, nil
}

// Lock reads the profile under a row lock held until the transaction ends.
func (r *profileRepository) Lock(ctx context.Context, id uint, strength LockStrength) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Clauses(locking(strength)).First(&profile, id).Error
	if err != nil {
		return nil, notFound(err, "Profile", id)
	}
	return &profile, nil
}

func (r *profileRepository) SetStanding(ctx context.Context, id uint, standing models.Standing) error {
	res := r.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).
		Updates(map[string]interface{}{"role": standing.Role, "ban_state": standing.BanState})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Profile", id)
	}
	return nil
}

func (r *profileRepository) UpdateDetails(ctx context.Context, id uint, details models.ProfileDetails) error {
	res := r.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"display_name": details.DisplayName,
			"bio":          details.Bio,
			"location":     details.Location,
			"website":      details.Website,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Profile", id)
	}
	return nil
}

func (r *profileRepository) IncrementPostCount(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).
		UpdateColumn("post_count", gorm.Expr("post_count + ?", 1)).Error
}

func (r *profileRepository) AdjustReputation(ctx context.Context, id uint, delta int64) error {
	return r.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).
		UpdateColumn("reputation", gorm.Expr("reputation + ?", delta)).Error
}

// ListMembers returns active profiles ordered by reputation.
func (r *profileRepository) ListMembers(ctx context.Context, limit, offset int) ([]*models.Profile, error) {
	var profiles []*models.Profile
	err := r.db.WithContext(ctx).
		Scopes(activeMembers, paginate(limit, offset)).
		Order("reputation DESC, id ASC").
		Find(&profiles).Error
	return profiles, err
}

// ListAll returns every profile, banned ones included, newest first.
func (r *profileRepository) ListAll(ctx context.Context, limit, offset int) ([]*models.Profile, error) {
	var profiles []*models.Profile
	err := r.db.WithContext(ctx).
		Scopes(paginate(limit, offset)).
		Order("joined_at DESC, id DESC").
		Find(&profiles).Error
	return profiles, err
}

func (r *profileRepository) Search(ctx context.Context, query string, limit int) ([]*models.Profile, error) {
	var profiles []*models.Profile
	pattern := containsPattern(query)
	err := r.db.WithContext(ctx).
		Scopes(activeMembers, paginate(limit, 0)).
		Where(`(LOWER(username) LIKE ? ESCAPE '\' OR LOWER(display_name) LIKE ? ESCAPE '\')`, pattern, pattern).
		Order("reputation DESC, id ASC").
		Find(&profiles).Error
	return profiles, err
}

func (r *profileRepository) Counts(ctx context.Context) (members, banned, moderators int64, err error) {
	db := r.db.WithContext(ctx).Model(&models.Profile{})
	if err = db.Session(&gorm.Session{}).Count(&members).Error; err != nil {
		return
	}
	if err = db.Session(&gorm.Session{}).Where("ban_state = ?", models.BanStateBanned).Count(&banned).Error; err != nil {
		return
	}
	err = db.Session(&gorm.Session{}).Where("role = ?", models.RoleModerator).Count(&moderators).Error
	return
}
