// Package fakeapi is an in-memory implementation of the social API used by
// tests and by `feedctl serve-fake`. State lives in maps guarded by one mutex;
// nothing is persisted.
package fakeapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/unkn0wn-root/statesync"
)

const (
	cookieName     = "jwt"
	sessionMaxAge  = 15 * 24 * time.Hour
	suggestedLimit = 4
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Server struct {
	mu       sync.Mutex
	users    map[string]*user  // by id
	byName   map[string]string // username -> id
	sessions map[string]string // token -> user id
	posts    []*post           // oldest first
	notes    []*notification

	now        func() time.Time
	bcryptCost int
	log        statesync.Logger
	router     *mux.Router
}

type Option func(*Server)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// WithBcryptCost sets the password hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option { return func(s *Server) { s.bcryptCost = cost } }

// WithLogger logs one line per request.
func WithLogger(l statesync.Logger) Option { return func(s *Server) { s.log = l } }

func New(opts ...Option) *Server {
	s := &Server{
		users:      make(map[string]*user),
		byName:     make(map[string]string),
		sessions:   make(map[string]string),
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
		log:        statesync.NopLogger{},
	}
	for _, o := range opts {
		o(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/signup", s.signup).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.logout).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.auth(s.me)).Methods(http.MethodGet)

	api.HandleFunc("/users/profile/{username}", s.auth(s.profile)).Methods(http.MethodGet)
	api.HandleFunc("/users/suggested", s.auth(s.suggested)).Methods(http.MethodGet)
	api.HandleFunc("/users/follow/{id}", s.auth(s.follow)).Methods(http.MethodPost)
	api.HandleFunc("/users/update", s.auth(s.updateUser)).Methods(http.MethodPost)

	api.HandleFunc("/posts/all", s.auth(s.allPosts)).Methods(http.MethodGet)
	api.HandleFunc("/posts/following", s.auth(s.followingPosts)).Methods(http.MethodGet)
	api.HandleFunc("/posts/user/{username}", s.auth(s.userPosts)).Methods(http.MethodGet)
	api.HandleFunc("/posts/likes/{id}", s.auth(s.likedPosts)).Methods(http.MethodGet)
	api.HandleFunc("/posts/create", s.auth(s.createPost)).Methods(http.MethodPost)
	api.HandleFunc("/posts/like/{id}", s.auth(s.likePost)).Methods(http.MethodPost)

	api.HandleFunc("/notifications", s.auth(s.notifications)).Methods(http.MethodGet)
	api.HandleFunc("/notifications", s.auth(s.deleteNotifications)).Methods(http.MethodDelete)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("fakeapi request", statesync.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"requestId": r.Header.Get("X-Request-ID"),
			"took":      time.Since(start),
		})
	})
}

// SeedUser creates an account directly, bypassing signup validation.
func (s *Server) SeedUser(username, fullName, email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byName[username]; taken {
		return "", errors.New("fakeapi: username taken")
	}
	return s.addUserLocked(username, fullName, email, hash).ID, nil
}

// SeedPost creates a post for an existing user.
func (s *Server) SeedPost(username, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[username]
	if !ok {
		return "", errors.New("fakeapi: unknown user " + username)
	}
	p := &post{ID: uuid.NewString(), UserID: id, Text: text, Likes: []string{}, CreatedAt: s.now()}
	s.posts = append(s.posts, p)
	return p.ID, nil
}

func (s *Server) addUserLocked(username, fullName, email string, hash []byte) *user {
	now := s.now()
	u := &user{
		ID:           uuid.NewString(),
		Username:     username,
		FullName:     fullName,
		Email:        email,
		PasswordHash: hash,
		Followers:    []string{},
		Following:    []string{},
		LikedPosts:   []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	s.byName[username] = u.ID
	return u
}

// ---- helpers ----

type authedHandler func(w http.ResponseWriter, r *http.Request, me *user)

// auth resolves the session cookie. Handlers run with s.mu held.
func (s *Server) auth(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(cookieName)
		if err != nil || ck.Value == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized: No Token Provided")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		id, ok := s.sessions[ck.Value]
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized: Invalid Token")
			return
		}
		me, ok := s.users[id]
		if !ok {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h(w, r, me)
	}
}

func (s *Server) startSessionLocked(w http.ResponseWriter, u *user) {
	tok := uuid.NewString()
	s.sessions[tok] = u.ID
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(sessionMaxAge / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) postViewLocked(p *post) postView {
	author := s.users[p.UserID]
	v := postView{
		ID:        p.ID,
		Text:      p.Text,
		Img:       p.Img,
		Likes:     p.Likes,
		Comments:  p.Comments,
		CreatedAt: p.CreatedAt,
	}
	if v.Comments == nil {
		v.Comments = []comment{}
	}
	if author != nil {
		v.User = author.ref()
	}
	return v
}

// feedLocked returns matching posts, newest first.
func (s *Server) feedLocked(keep func(*post) bool) []postView {
	out := []postView{}
	for i := len(s.posts) - 1; i >= 0; i-- {
		if keep(s.posts[i]) {
			out = append(out, s.postViewLocked(s.posts[i]))
		}
	}
	return out
}

func (s *Server) notifyLocked(from, to, typ string) {
	s.notes = append(s.notes, &notification{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Type:      typ,
		CreatedAt: s.now(),
	})
}

// ---- auth ----

type signupReq struct {
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var in signupReq
	if !decode(w, r, &in) {
		return
	}
	if !emailRe.MatchString(in.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format")
		return
	}
	if len(in.Password) < 6 {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters long")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byName[in.Username]; taken {
		writeError(w, http.StatusBadRequest, "Username is already taken")
		return
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, in.Email) {
			writeError(w, http.StatusBadRequest, "Email is already taken")
			return
		}
	}
	u := s.addUserLocked(in.Username, in.FullName, in.Email, hash)
	s.startSessionLocked(w, u)
	writeJSON(w, http.StatusCreated, u)
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in loginReq
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[s.byName[in.Username]]
	if u == nil || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(in.Password)) != nil {
		writeError(w, http.StatusBadRequest, "Invalid username or password")
		return
	}
	s.startSessionLocked(w, u)
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if ck, err := r.Cookie(cookieName); err == nil {
		s.mu.Lock()
		delete(s.sessions, ck.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1})
	writeMessage(w, "Logged out successfully")
}

func (s *Server) me(w http.ResponseWriter, _ *http.Request, me *user) {
	writeJSON(w, http.StatusOK, me)
}

// ---- users ----

func (s *Server) profile(w http.ResponseWriter, r *http.Request, _ *user) {
	u := s.users[s.byName[mux.Vars(r)["username"]]]
	if u == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "User not found"})
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) suggested(w http.ResponseWriter, _ *http.Request, me *user) {
	var candidates []*user
	for _, u := range s.users {
		if u.ID != me.ID && !slices.Contains(me.Following, u.ID) {
			candidates = append(candidates, u)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Username < candidates[j].Username })
	if len(candidates) > suggestedLimit {
		candidates = candidates[:suggestedLimit]
	}
	if candidates == nil {
		candidates = []*user{}
	}
	writeJSON(w, http.StatusOK, candidates)
}

func (s *Server) follow(w http.ResponseWriter, r *http.Request, me *user) {
	id := mux.Vars(r)["id"]
	if id == me.ID {
		writeError(w, http.StatusBadRequest, "You can't follow/unfollow yourself")
		return
	}
	other := s.users[id]
	if other == nil {
		writeError(w, http.StatusBadRequest, "User not found")
		return
	}
	if slices.Contains(me.Following, id) {
		me.Following = without(me.Following, id)
		other.Followers = without(other.Followers, me.ID)
		writeMessage(w, "User unfollowed successfully")
		return
	}
	me.Following = append(me.Following, id)
	other.Followers = append(other.Followers, me.ID)
	s.notifyLocked(me.ID, id, "follow")
	writeMessage(w, "User followed successfully")
}

type updateReq struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	Username        string `json:"username"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	Bio             string `json:"bio"`
	Link            string `json:"link"`
	ProfileImg      string `json:"profileImg"`
	CoverImg        string `json:"coverImg"`
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request, me *user) {
	var in updateReq
	if !decode(w, r, &in) {
		return
	}
	if (in.CurrentPassword == "") != (in.NewPassword == "") {
		writeError(w, http.StatusBadRequest, "Please provide both current password and new password")
		return
	}
	if in.CurrentPassword != "" {
		if bcrypt.CompareHashAndPassword(me.PasswordHash, []byte(in.CurrentPassword)) != nil {
			writeError(w, http.StatusBadRequest, "Current password is incorrect")
			return
		}
		if len(in.NewPassword) < 6 {
			writeError(w, http.StatusBadRequest, "Password must be at least 6 characters long")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.bcryptCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		me.PasswordHash = hash
	}
	if in.Username != "" && in.Username != me.Username {
		if _, taken := s.byName[in.Username]; taken {
			writeError(w, http.StatusBadRequest, "Username is already taken")
			return
		}
		delete(s.byName, me.Username)
		s.byName[in.Username] = me.ID
		me.Username = in.Username
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&me.FullName, in.FullName)
	set(&me.Email, in.Email)
	set(&me.Bio, in.Bio)
	set(&me.Link, in.Link)
	set(&me.ProfileImg, in.ProfileImg)
	set(&me.CoverImg, in.CoverImg)
	me.UpdatedAt = s.now()
	writeJSON(w, http.StatusOK, me)
}

// ---- posts ----

func (s *Server) allPosts(w http.ResponseWriter, _ *http.Request, _ *user) {
	writeJSON(w, http.StatusOK, s.feedLocked(func(*post) bool { return true }))
}

func (s *Server) followingPosts(w http.ResponseWriter, _ *http.Request, me *user) {
	writeJSON(w, http.StatusOK, s.feedLocked(func(p *post) bool { return slices.Contains(me.Following, p.UserID) }))
}

func (s *Server) userPosts(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := s.byName[mux.Vars(r)["username"]]
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, s.feedLocked(func(p *post) bool { return p.UserID == id }))
}

func (s *Server) likedPosts(w http.ResponseWriter, r *http.Request, _ *user) {
	u := s.users[mux.Vars(r)["id"]]
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, s.feedLocked(func(p *post) bool { return slices.Contains(u.LikedPosts, p.ID) }))
}

type createPostReq struct {
	Text string `json:"text"`
	Img  string `json:"img"`
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request, me *user) {
	var in createPostReq
	if !decode(w, r, &in) {
		return
	}
	if in.Text == "" && in.Img == "" {
		writeError(w, http.StatusBadRequest, "Post must have text or image")
		return
	}
	p := &post{ID: uuid.NewString(), UserID: me.ID, Text: in.Text, Img: in.Img, Likes: []string{}, CreatedAt: s.now()}
	s.posts = append(s.posts, p)
	writeJSON(w, http.StatusCreated, s.postViewLocked(p))
}

func (s *Server) likePost(w http.ResponseWriter, r *http.Request, me *user) {
	id := mux.Vars(r)["id"]
	var p *post
	for _, cand := range s.posts {
		if cand.ID == id {
			p = cand
			break
		}
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	if slices.Contains(p.Likes, me.ID) {
		p.Likes = without(p.Likes, me.ID)
		me.LikedPosts = without(me.LikedPosts, p.ID)
	} else {
		p.Likes = append(p.Likes, me.ID)
		me.LikedPosts = append(me.LikedPosts, p.ID)
		if p.UserID != me.ID {
			s.notifyLocked(me.ID, p.UserID, "like")
		}
	}
	writeJSON(w, http.StatusOK, p.Likes)
}

// ---- notifications ----

func (s *Server) notifications(w http.ResponseWriter, _ *http.Request, me *user) {
	out := []notificationView{}
	for i := len(s.notes) - 1; i >= 0; i-- {
		n := s.notes[i]
		if n.To != me.ID {
			continue
		}
		v := notificationView{ID: n.ID, To: n.To, Type: n.Type, Read: n.Read, CreatedAt: n.CreatedAt}
		if from := s.users[n.From]; from != nil {
			v.From = userRef{ID: from.ID, Username: from.Username, ProfileImg: from.ProfileImg}
		}
		out = append(out, v)
		n.Read = true
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteNotifications(w http.ResponseWriter, _ *http.Request, me *user) {
	kept := s.notes[:0]
	for _, n := range s.notes {
		if n.To != me.ID {
			kept = append(kept, n)
		}
	}
	s.notes = kept
	writeMessage(w, "Notifications deleted successfully")
}
