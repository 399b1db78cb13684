package models

import (
	"fmt"
	"time"
)

// Role is the tagged privilege level of a profile.
type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
)

// BanState is the tagged access state of a profile.
type BanState string

const (
	BanStateActive BanState = "active"
	BanStateBanned BanState = "banned"
)

// ProfileAction is a moderation transition over a profile.
type ProfileAction string

const (
	ProfileBan     ProfileAction = "ban"
	ProfileUnban   ProfileAction = "unban"
	ProfilePromote ProfileAction = "promote"
	ProfileDemote  ProfileAction = "demote"
)

// Profile is the forum-side record of an identity-provider user.
// The ID is assigned by the identity provider, never generated here.
type Profile struct {
	ID          uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Username    string    `gorm:"size:50;uniqueIndex;not null" json:"username"`
	DisplayName string    `gorm:"size:100" json:"display_name"`
	Bio         string    `gorm:"type:text" json:"bio"`
	Location    string    `gorm:"size:100" json:"location"`
	Website     string    `gorm:"size:200" json:"website"`
	Role        Role      `gorm:"size:16;not null;default:member;index" json:"role"`
	BanState    BanState  `gorm:"size:16;not null;default:active;index" json:"ban_state"`
	PostCount   int64     `gorm:"not null;default:0" json:"post_count"`
	Reputation  int64     `gorm:"not null;default:0;index" json:"reputation"`
	JoinedAt    time.Time `gorm:"not null" json:"joined_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileDetails holds the member-editable fields of a profile.
type ProfileDetails struct {
	DisplayName string
	Bio         string
	Location    string
	Website     string
}

// Standing returns the role and ban state of the profile.
func (p *Profile) Standing() Standing {
	return Standing{Role: p.Role, BanState: p.BanState}
}

// Standing groups the two independent state axes of a profile.
type Standing struct {
	Role     Role
	BanState BanState
}

// Validate rejects role or ban values outside the known set.
func (s Standing) Validate() error {
	switch s.Role {
	case RoleMember, RoleModerator:
	default:
		return fmt.Errorf("unknown role %q", s.Role)
	}
	switch s.BanState {
	case BanStateActive, BanStateBanned:
	default:
		return fmt.Errorf("unknown ban state %q", s.BanState)
	}
	return nil
}

// CanAuthor reports whether the profile may create threads, posts or likes.
func (s Standing) CanAuthor() bool {
	return s.BanState == BanStateActive
}

// CanModerate reports whether the profile may run moderation actions.
func (s Standing) CanModerate() bool {
	return s.Role == RoleModerator && s.BanState == BanStateActive
}

// Apply returns the standing after action. changed is false when the
// profile is already in the target state.
func (s Standing) Apply(action ProfileAction) (next Standing, changed bool, err error) {
	if err := s.Validate(); err != nil {
		return s, false, err
	}

	next = s
	switch action {
	case ProfileBan:
		next.BanState = BanStateBanned
	case ProfileUnban:
		next.BanState = BanStateActive
	case ProfilePromote:
		next.Role = RoleModerator
	case ProfileDemote:
		next.Role = RoleMember
	default:
		return s, false, fmt.Errorf("unknown profile action %q", action)
	}
	return next, next != s, nil
}
