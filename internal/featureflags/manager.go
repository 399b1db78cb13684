// Package featureflags evaluates runtime switches such as which optional
// notification kinds are delivered.
package featureflags

import (
	"encoding/binary"
	"strconv"
	"strings"

	"forum/internal/models"

	"golang.org/x/crypto/blake2b"
)

const (
	LikeNotifications    = "like_notifications"
	MentionNotifications = "mention_notifications"
)

// notificationFlags maps optional notification kinds to the flag gating them.
// Kinds not listed are always delivered.
var notificationFlags = map[models.NotificationKind]string{
	models.NotificationLike:    LikeNotifications,
	models.NotificationMention: MentionNotifications,
}

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "like_notifications=on,mention_notifications=25%"
type Manager struct {
	flags map[string]string
}

// NewManager creates a feature-flag manager from a comma-separated config string.
func NewManager(raw string) *Manager {
	out := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}

	return &Manager{flags: out}
}

// Enabled returns whether a flag is enabled for a given profile.
// Supported values:
// - on/true/1
// - off/false/0
// - N% (deterministic rollout by profile, e.g. 25%)
//
// Unknown flags are disabled.
func (m *Manager) Enabled(name string, profileID uint) bool {
	if m == nil {
		return false
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pctRaw, isPct := strings.CutSuffix(value, "%")
	if !isPct {
		return false
	}
	pct, err := strconv.Atoi(pctRaw)
	if err != nil || pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	if profileID == 0 {
		return false
	}
	return rolloutBucket(name, profileID) < pct
}

// AllowsNotification reports whether notifications of kind should be
// delivered to recipientID. A nil Manager allows every kind.
func (m *Manager) AllowsNotification(kind models.NotificationKind, recipientID uint) bool {
	flag, gated := notificationFlags[kind]
	if !gated || m == nil {
		return true
	}
	if _, configured := m.flags[flag]; !configured {
		return true
	}
	return m.Enabled(flag, recipientID)
}

// Snapshot returns evaluated flag status for one profile.
func (m *Manager) Snapshot(profileID uint) map[string]bool {
	if m == nil {
		return map[string]bool{}
	}
	out := make(map[string]bool, len(m.flags))
	for name := range m.flags {
		out[name] = m.Enabled(name, profileID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, profileID uint) int {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], uint64(profileID))
	sum := blake2b.Sum256(append([]byte(normalize(name)+":"), id[:]...))
	return int(binary.BigEndian.Uint32(sum[:4]) % 100)
}
