package session

import (
	"github.com/ashureev/coursegpt-sync/internal/domain"
	"github.com/ashureev/coursegpt-sync/internal/store"
	"github.com/ashureev/coursegpt-sync/internal/training"
)

// Domain names an independent loading/error channel.
type Domain string

const (
	DomainUser    Domain = "user"
	DomainChats   Domain = "chats"
	DomainCourses Domain = "courses"
)

var domains = []Domain{DomainUser, DomainChats, DomainCourses}

type domainStatus struct {
	inFlight int
	err      *Failure
}

type tracker struct {
	activeChat          *domain.Chat
	focusedChat         string
	highlight           *domain.HighlightMessage
	waitingFirstMessage bool
}

// state is everything a session owns. It is only touched with Session.mu
// held.
type state struct {
	store          *store.Store
	userID         string
	selectedCourse string
	tracker        tracker

	activePanel          domain.Panel
	shouldFocusChatInput bool

	status   map[Domain]*domainStatus
	training map[string]training.Progress

	// nextSeq numbers every call and local write. applied holds the newest
	// write per call target and per entity key; floor is the last number
	// issued before the session ended.
	nextSeq uint64
	applied map[string]uint64
	floor   uint64

	version uint64
}

func newState() *state {
	st := &state{store: store.New()}
	st.clear()
	return st
}

// clear resets everything except the call numbering, so results of calls
// issued before the reset can still be recognized and dropped.
func (st *state) clear() {
	st.store.Reset()
	st.userID = ""
	st.selectedCourse = ""
	st.tracker = tracker{}
	st.activePanel = domain.PanelInfo
	st.shouldFocusChatInput = false
	st.status = make(map[Domain]*domainStatus, len(domains))
	for _, d := range domains {
		st.status[d] = &domainStatus{}
	}
	st.training = make(map[string]training.Progress)
	st.applied = make(map[string]uint64)
	st.floor = st.nextSeq
}

func (st *state) currentUser() (domain.User, error) {
	if st.userID == "" {
		return domain.User{}, ErrNotSignedIn
	}
	u, err := st.store.Users.Get(st.userID)
	if err != nil {
		return u, inconsistent("current user %q missing from store", st.userID)
	}
	return u, nil
}

// setActiveChat points the tracker at c (nil clears it). A highlight that
// belongs to another chat is dropped in the same step.
func (st *state) setActiveChat(c *domain.Chat) {
	t := &st.tracker
	if c == nil {
		t.activeChat = nil
	} else {
		cp := c.Clone()
		t.activeChat = &cp
	}
	if t.highlight != nil && (t.activeChat == nil || t.activeChat.ID != t.highlight.Chat) {
		t.highlight = nil
	}
	t.waitingFirstMessage = false
}

// refreshMirror copies the stored chat into the active slot when chatID is
// the active chat.
func (st *state) refreshMirror(chatID string) {
	if st.tracker.activeChat == nil || st.tracker.activeChat.ID != chatID {
		return
	}
	c, err := st.store.Chats.Get(chatID)
	if err != nil {
		return
	}
	st.tracker.activeChat = &c
}

// selectCourse changes the dropdown selection. Leaving a course also ends
// any pending wait for its first message.
func (st *state) selectCourse(courseID string) error {
	if courseID != "" && !st.store.Courses.Has(courseID) {
		return inconsistent("course %q is not loaded", courseID)
	}
	st.selectedCourse = courseID
	if courseID == "" {
		st.tracker.waitingFirstMessage = false
	}
	return nil
}

func chatKey(id string) string { return "chat:" + id }

func courseKey(id string) string { return "course:" + id }

// fresh reports whether a result of call seq may overwrite key.
func (st *state) fresh(key string, seq uint64) bool {
	return seq >= st.applied[key]
}

// written records that call seq wrote key.
func (st *state) written(key string, seq uint64) {
	if seq > st.applied[key] {
		st.applied[key] = seq
	}
}

// localSeq numbers a write made without a server call. Calls issued
// before it carry older numbers.
func (st *state) localSeq() uint64 {
	st.nextSeq++
	return st.nextSeq
}
