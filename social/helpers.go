package social

import (
	"slices"
	"time"
)

// IsFollowing reports whether the signed-in user follows userID.
func IsFollowing(authUser *User, userID string) bool {
	return authUser != nil && slices.Contains(authUser.Following, userID)
}

// IsMyProfile reports whether u is the signed-in user.
func IsMyProfile(authUser, u *User) bool {
	return authUser != nil && u != nil && authUser.ID == u.ID
}

// MemberSince formats a join date as "Joined January 2024". Zero => "".
func MemberSince(createdAt time.Time) string {
	if createdAt.IsZero() {
		return ""
	}
	return "Joined " + createdAt.Format("January 2006")
}
