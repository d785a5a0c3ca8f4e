package social

import (
	"bytes"
	"encoding/json"
	"time"
)

type User struct {
	ID         string    `json:"_id"`
	Username   string    `json:"username"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email"`
	Followers  []string  `json:"followers"`
	Following  []string  `json:"following"`
	ProfileImg string    `json:"profileImg"`
	CoverImg   string    `json:"coverImg"`
	Bio        string    `json:"bio"`
	Link       string    `json:"link"`
	LikedPosts []string  `json:"likedPosts"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UserRef is a user as embedded in posts, comments and notifications. The
// server sends either the populated object or just the id.
type UserRef struct {
	ID         string `json:"_id"`
	Username   string `json:"username,omitempty"`
	FullName   string `json:"fullName,omitempty"`
	ProfileImg string `json:"profileImg,omitempty"`
}

func (r *UserRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		*r = UserRef{}
		return json.Unmarshal(b, &r.ID)
	}
	type plain UserRef
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = UserRef(p)
	return nil
}

type Comment struct {
	ID   string  `json:"_id"`
	Text string  `json:"text"`
	User UserRef `json:"user"`
}

type Post struct {
	ID        string    `json:"_id"`
	User      UserRef   `json:"user"`
	Text      string    `json:"text,omitempty"`
	Img       string    `json:"img,omitempty"`
	Likes     []string  `json:"likes"`
	Comments  []Comment `json:"comments"`
	CreatedAt time.Time `json:"createdAt"`
}

type NotificationType string

const (
	NotifyFollow NotificationType = "follow"
	NotifyLike   NotificationType = "like"
)

type Notification struct {
	ID        string           `json:"_id"`
	From      UserRef          `json:"from"`
	To        string           `json:"to"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

type SignupInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateProfileInput mirrors the edit-profile form. Empty fields are left
// unchanged by the server.
type UpdateProfileInput struct {
	FullName        string `json:"fullName,omitempty"`
	Username        string `json:"username,omitempty"`
	Email           string `json:"email,omitempty"`
	Bio             string `json:"bio,omitempty"`
	Link            string `json:"link,omitempty"`
	CurrentPassword string `json:"currentPassword,omitempty"`
	NewPassword     string `json:"newPassword,omitempty"`
	ProfileImg      string `json:"profileImg,omitempty"`
	CoverImg        string `json:"coverImg,omitempty"`
}

type CreatePostInput struct {
	Text string `json:"text,omitempty"`
	Img  string `json:"img,omitempty"`
}

type message struct {
	Message string `json:"message"`
}
