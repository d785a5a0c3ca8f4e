package fakeapi

import "time"

type user struct {
	ID           string    `json:"_id"`
	Username     string    `json:"username"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	Followers    []string  `json:"followers"`
	Following    []string  `json:"following"`
	ProfileImg   string    `json:"profileImg"`
	CoverImg     string    `json:"coverImg"`
	Bio          string    `json:"bio"`
	Link         string    `json:"link"`
	LikedPosts   []string  `json:"likedPosts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// userRef is the populated author/sender shape embedded in posts and
// notifications.
type userRef struct {
	ID         string `json:"_id"`
	Username   string `json:"username"`
	FullName   string `json:"fullName,omitempty"`
	ProfileImg string `json:"profileImg"`
}

type comment struct {
	ID   string  `json:"_id"`
	Text string  `json:"text"`
	User userRef `json:"user"`
}

type post struct {
	ID        string
	UserID    string
	Text      string
	Img       string
	Likes     []string
	Comments  []comment
	CreatedAt time.Time
}

type postView struct {
	ID        string    `json:"_id"`
	User      userRef   `json:"user"`
	Text      string    `json:"text,omitempty"`
	Img       string    `json:"img,omitempty"`
	Likes     []string  `json:"likes"`
	Comments  []comment `json:"comments"`
	CreatedAt time.Time `json:"createdAt"`
}

type notification struct {
	ID        string
	From      string
	To        string
	Type      string // "follow" | "like"
	Read      bool
	CreatedAt time.Time
}

type notificationView struct {
	ID        string    `json:"_id"`
	From      userRef   `json:"from"`
	To        string    `json:"to"`
	Type      string    `json:"type"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u *user) ref() userRef {
	return userRef{ID: u.ID, Username: u.Username, FullName: u.FullName, ProfileImg: u.ProfileImg}
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
