// Package courseapitest provides an in-memory CourseGPT REST server for
// tests and local development.
package courseapitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

// Route keys used by Fail, FailNext, CallCount and hooks.
const (
	RouteFetchUserChats  = "GET /{userID}/chats"
	RouteCreateChatTitle = "POST /chats/{chatID}/chat-title"
	RouteCreateChat      = "POST /{userID}/chats"
	RouteFetchChat       = "GET /chats/{chatID}"
	RouteSoftDeleteChats = "PATCH /{userID}/chats"
	RouteSoftDeleteChat  = "PATCH /{userID}/chats/{chatID}"
	RouteSchoolCourse    = "GET /schools/{schoolID}/courses/user/{courseID}"
	RouteSchoolCourses   = "GET /schools/{schoolID}/courses/user"
	RouteAllCourses      = "GET /courses"
	RouteImproveModel    = "PUT /schools/{schoolID}/courses/{userID}/{courseID}/improve-model"
	RouteTrainingStatus  = "GET /schools/{schoolID}/courses/{userID}/{courseID}/training-status"
	RouteUpdateUser      = "PATCH /users/{userID}"
	RouteCreateMessage   = "POST /chats/{chatID}/messages"
	RouteAssistantReply  = "POST /chats/{chatID}/messages/gpt-response"
)

type failure struct {
	status  int
	message string
}

// Server is a fake CourseGPT API backed by maps.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	users    map[string]domain.User
	chats    map[string]domain.Chat
	courses  map[string]domain.Course
	messages map[string]domain.Message

	scripts  map[string][]domain.TrainingStatus
	cursor   map[string]int
	trained  map[string]string
	calls    map[string]int
	failures map[string]failure
	oneShot  map[string][]failure
	hook     func(route string, r *http.Request)

	// TitleFor generates the title returned by the chat-title route.
	TitleFor func(domain.Chat) string
	// ReplyFor generates the assistant reply content for a chat.
	ReplyFor func(domain.Chat) string
}

// NewServer starts a fake server. Call Close when done.
func NewServer() *Server {
	s := &Server{
		users:    make(map[string]domain.User),
		chats:    make(map[string]domain.Chat),
		courses:  make(map[string]domain.Course),
		messages: make(map[string]domain.Message),
		scripts:  make(map[string][]domain.TrainingStatus),
		cursor:   make(map[string]int),
		trained:  make(map[string]string),
		calls:    make(map[string]int),
		failures: make(map[string]failure),
		oneShot:  make(map[string][]failure),
		TitleFor: func(c domain.Chat) string { return "Chat " + c.ID },
		ReplyFor: func(domain.Chat) string { return "Here is what the course material says." },
	}
	s.Server = httptest.NewServer(s.Router())
	return s
}

// Router returns the chi router serving the fake API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/courses", s.handle(RouteAllCourses, s.allCourses))
	r.Patch("/users/{userID}", s.handle(RouteUpdateUser, s.updateUser))

	r.Route("/chats/{chatID}", func(r chi.Router) {
		r.Get("/", s.handle(RouteFetchChat, s.fetchChat))
		r.Post("/chat-title", s.handle(RouteCreateChatTitle, s.createChatTitle))
		r.Post("/messages", s.handle(RouteCreateMessage, s.createMessage))
		r.Post("/messages/gpt-response", s.handle(RouteAssistantReply, s.assistantReply))
	})

	r.Route("/schools/{schoolID}/courses", func(r chi.Router) {
		r.Get("/user", s.handle(RouteSchoolCourses, s.schoolCourses))
		r.Get("/user/{courseID}", s.handle(RouteSchoolCourse, s.schoolCourse))
		r.Put("/{userID}/{courseID}/improve-model", s.handle(RouteImproveModel, s.improveModel))
		r.Get("/{userID}/{courseID}/training-status", s.handle(RouteTrainingStatus, s.trainingStatus))
	})

	r.Route("/{userID}/chats", func(r chi.Router) {
		r.Get("/", s.handle(RouteFetchUserChats, s.fetchUserChats))
		r.Post("/", s.handle(RouteCreateChat, s.createChat))
		r.Patch("/", s.handle(RouteSoftDeleteChats, s.softDeleteChats))
		r.Patch("/{chatID}", s.handle(RouteSoftDeleteChat, s.softDeleteChat))
	})

	return r
}

// handle records the call, runs the hook and applies injected failures.
func (s *Server) handle(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[route]++
		hook := s.hook
		f, fail := s.failures[route]
		if q := s.oneShot[route]; len(q) > 0 {
			f, fail = q[0], true
			s.oneShot[route] = q[1:]
		}
		s.mu.Unlock()

		if hook != nil {
			hook(route, r)
		}
		if fail {
			writeError(w, f.status, f.message)
			return
		}
		next(w, r)
	}
}

// SetHook installs fn to run before every request, outside the server lock.
func (s *Server) SetHook(fn func(route string, r *http.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// Fail makes every call to route fail with status and an {"error": message}
// body until ClearFailures is called. An empty message sends no body.
func (s *Server) Fail(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, message: message}
}

// FailNext makes only the next call to route fail.
func (s *Server) FailNext(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oneShot[route] = append(s.oneShot[route], failure{status: status, message: message})
}

// ClearFailures removes every injected failure.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]failure)
	s.oneShot = make(map[string][]failure)
}

// CallCount returns how many requests route has received.
func (s *Server) CallCount(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// AddUser seeds a user.
func (s *Server) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u.Clone()
}

// AddCourse seeds a course.
func (s *Server) AddCourse(c domain.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[c.ID] = c.Clone()
}

// AddChat seeds a chat and links it to its user when the user exists.
func (s *Server) AddChat(c domain.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Messages == nil {
		c.Messages = []string{}
	}
	s.chats[c.ID] = c.Clone()
	if u, ok := s.users[c.User]; ok {
		u.AddChat(c.ID)
		s.users[c.User] = u
	}
}

// Chat returns the server copy of a chat.
func (s *Server) Chat(id string) (domain.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	return c.Clone(), ok
}

// User returns the server copy of a user.
func (s *Server) User(id string) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u.Clone(), ok
}

// SetTrainingScript sets the statuses returned by successive status polls
// for courseID. The last status repeats once the script is exhausted.
// Submitting a new training job restarts the script.
func (s *Server) SetTrainingScript(courseID string, statuses ...domain.TrainingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[courseID] = slices.Clone(statuses)
	s.cursor[courseID] = 0
}

// TrainedContent returns the content last submitted for courseID.
func (s *Server) TrainedContent(courseID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trained[courseID]
}

func (s *Server) fetchUserChats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	s.mu.Lock()
	chats := make([]domain.Chat, 0)
	for _, c := range s.chats {
		if c.User == userID {
			chats = append(chats, c.Clone())
		}
	}
	s.mu.Unlock()

	sortChats(chats)
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *Server) createChatTitle(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	s.mu.Lock()
	c, ok := s.chats[chatID]
	if ok {
		c.Title = s.TitleFor(c)
		s.chats[chatID] = c
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat": c})
}

func (s *Server) createChat(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var body struct {
		Course string `json:"course"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Course == "" {
		writeError(w, http.StatusBadRequest, "Course is required")
		return
	}

	s.mu.Lock()
	if _, ok := s.courses[body.Course]; !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Course not found")
		return
	}
	c := domain.Chat{ID: uuid.NewString(), User: userID, Course: body.Course, Messages: []string{}}
	s.chats[c.ID] = c
	if u, ok := s.users[userID]; ok {
		u.AddChat(c.ID)
		s.users[userID] = u
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"chat": c})
}

func (s *Server) fetchChat(w http.ResponseWriter, r *http.Request) {
	c, ok := s.Chat(chi.URLParam(r, "chatID"))
	if !ok {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat": c})
}

func (s *Server) softDeleteChats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var body struct {
		Filter struct {
			Course string `json:"course"`
		} `json:"filter"`
		Updates struct {
			Set struct {
				Deleted *bool `json:"deleted"`
			} `json:"$set"`
		} `json:"updates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Updates.Set.Deleted == nil {
		writeError(w, http.StatusBadRequest, "Invalid updates")
		return
	}

	s.mu.Lock()
	affected := make([]domain.Chat, 0)
	for id, c := range s.chats {
		if c.User != userID || (body.Filter.Course != "" && c.Course != body.Filter.Course) {
			continue
		}
		c.Deleted = *body.Updates.Set.Deleted
		s.chats[id] = c
		affected = append(affected, c.Clone())
	}
	s.mu.Unlock()

	sortChats(affected)
	writeJSON(w, http.StatusOK, map[string]any{"chats": affected})
}

func (s *Server) softDeleteChat(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	chatID := chi.URLParam(r, "chatID")
	var body struct {
		Deleted *bool `json:"deleted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Deleted == nil {
		writeError(w, http.StatusBadRequest, "Invalid updates")
		return
	}

	s.mu.Lock()
	c, ok := s.chats[chatID]
	if ok && c.User == userID {
		c.Deleted = *body.Deleted
		s.chats[chatID] = c
	}
	s.mu.Unlock()

	if !ok || c.User != userID {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat": c})
}

func (s *Server) schoolCourse(w http.ResponseWriter, r *http.Request) {
	schoolID := chi.URLParam(r, "schoolID")
	s.mu.Lock()
	c, ok := s.courses[chi.URLParam(r, "courseID")]
	s.mu.Unlock()
	if !ok || c.School != schoolID {
		writeError(w, http.StatusNotFound, "Course not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"course": c})
}

func (s *Server) schoolCourses(w http.ResponseWriter, r *http.Request) {
	schoolID := chi.URLParam(r, "schoolID")
	writeJSON(w, http.StatusOK, map[string]any{"courses": s.listCourses(func(c domain.Course) bool {
		return c.School == schoolID
	})})
}

func (s *Server) allCourses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"courses": s.listCourses(func(domain.Course) bool { return true })})
}

func (s *Server) listCourses(keep func(domain.Course) bool) []domain.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Course, 0, len(s.courses))
	for _, c := range s.courses {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) improveModel(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	s.mu.Lock()
	_, ok := s.courses[courseID]
	if ok {
		s.trained[courseID] = body.Content
		s.cursor[courseID] = 0
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Course not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Training started"})
}

func (s *Server) trainingStatus(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")

	s.mu.Lock()
	status := domain.TrainingComplete
	if script := s.scripts[courseID]; len(script) > 0 {
		i := min(s.cursor[courseID], len(script)-1)
		status = script[i]
		s.cursor[courseID]++
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var upd domain.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	s.mu.Lock()
	u, ok := s.users[userID]
	if ok {
		applyUserUpdate(&u, upd)
		s.users[userID] = u
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u.Clone()})
}

func applyUserUpdate(u *domain.User, upd domain.UserUpdate) {
	if upd.ProfilePicture != nil {
		u.ProfilePicture = *upd.ProfilePicture
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.School != nil {
		u.School = *upd.School
	}
	if upd.Type != nil {
		u.Type = *upd.Type
	}
	if upd.SelectedCourse != nil {
		u.SelectedCourse = *upd.SelectedCourse
	}
	if upd.Favourites != nil {
		u.Favourites = slices.Clone(*upd.Favourites)
	}
	if upd.Deleted != nil {
		u.Deleted = *upd.Deleted
	}
}

func (s *Server) createMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" {
		writeError(w, http.StatusBadRequest, "Content is required")
		return
	}
	s.appendMessage(w, chi.URLParam(r, "chatID"), domain.RoleUser, func(domain.Chat) string { return body.Content })
}

func (s *Server) assistantReply(w http.ResponseWriter, r *http.Request) {
	s.appendMessage(w, chi.URLParam(r, "chatID"), domain.RoleAssistant, s.ReplyFor)
}

func (s *Server) appendMessage(w http.ResponseWriter, chatID string, role domain.Role, content func(domain.Chat) string) {
	s.mu.Lock()
	c, ok := s.chats[chatID]
	var m domain.Message
	if ok {
		m = domain.Message{ID: uuid.NewString(), Chat: chatID, User: c.User, Role: role, Content: content(c)}
		s.messages[m.ID] = m
		c.AppendMessage(m.ID)
		s.chats[chatID] = c
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": m})
}

func sortChats(chats []domain.Chat) {
	sort.Slice(chats, func(i, j int) bool { return chats[i].ID < chats[j].ID })
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, map[string]string{"error": message})
}
