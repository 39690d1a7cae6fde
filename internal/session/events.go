package session

import (
	"log/slog"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

// EventKind names a cross-entity change announced to reconciliation rules.
type EventKind string

const (
	EventChatCreated     EventKind = "chat-created"
	EventChatsUpdated    EventKind = "chats-updated"
	EventMessageAppended EventKind = "message-appended"
	EventUserUpdated     EventKind = "user-updated"
	EventCoursesReplaced EventKind = "courses-replaced"
	EventSessionEnded    EventKind = "session-ended"
)

type event struct {
	kind    EventKind
	chats   []domain.Chat
	message *domain.Message
	user    *domain.User
}

// RuleInfo describes a registered reconciliation rule.
type RuleInfo struct {
	Name    string   `json:"name"`
	Touches []string `json:"touches"`
}

type rule struct {
	RuleInfo
	apply func(st *state, ev event)
}

// bus dispatches events to the rules registered for them, in registration
// order. Rules run inside the transition that published the event.
type bus struct {
	rules  map[EventKind][]rule
	logger *slog.Logger
}

func newBus(logger *slog.Logger) *bus {
	b := &bus{rules: make(map[EventKind][]rule), logger: logger}
	b.registerDefaults()
	return b
}

func (b *bus) on(kind EventKind, name string, touches []string, fn func(st *state, ev event)) {
	b.rules[kind] = append(b.rules[kind], rule{RuleInfo: RuleInfo{Name: name, Touches: touches}, apply: fn})
}

func (b *bus) publish(st *state, ev event) {
	rules := b.rules[ev.kind]
	b.logger.Debug("session event", "kind", ev.kind, "rules", len(rules))
	for _, r := range rules {
		r.apply(st, ev)
	}
}

func (b *bus) describe(kind EventKind) []RuleInfo {
	out := make([]RuleInfo, 0, len(b.rules[kind]))
	for _, r := range b.rules[kind] {
		out = append(out, r.RuleInfo)
	}
	return out
}

func (b *bus) registerDefaults() {
	b.on(EventChatCreated, "link-chat-to-user", []string{"store.users"}, func(st *state, ev event) {
		for _, c := range ev.chats {
			if c.User != "" && c.User != st.userID {
				continue
			}
			if _, err := st.store.Users.Update(st.userID, func(u *domain.User) { u.AddChat(c.ID) }); err != nil {
				f := classify("link chat to user", inconsistent("chat %s created for user %q missing from store", c.ID, st.userID))
				st.status[DomainUser].err = f
				b.logger.Error("session consistency failure", "rule", "link-chat-to-user", "chat_id", c.ID, "error", f.Message)
			}
		}
	})
	b.on(EventChatCreated, "activate-new-chat", []string{"tracker"}, func(st *state, ev event) {
		if len(ev.chats) == 0 {
			return
		}
		c := ev.chats[len(ev.chats)-1]
		st.setActiveChat(&c)
	})
	b.on(EventChatCreated, "focus-chat-input", []string{"ui"}, func(st *state, _ event) {
		st.shouldFocusChatInput = true
	})

	b.on(EventChatsUpdated, "refresh-active-mirror", []string{"tracker"}, func(st *state, ev event) {
		for _, c := range ev.chats {
			st.refreshMirror(c.ID)
		}
	})

	b.on(EventMessageAppended, "refresh-active-mirror", []string{"tracker"}, func(st *state, ev event) {
		if ev.message != nil {
			st.refreshMirror(ev.message.Chat)
		}
	})

	b.on(EventUserUpdated, "set-current-user", []string{"session"}, func(st *state, ev event) {
		if ev.user != nil && st.userID == "" {
			st.userID = ev.user.ID
		}
	})

	b.on(EventCoursesReplaced, "prune-course-selection", []string{"selection", "tracker"}, func(st *state, _ event) {
		if st.selectedCourse != "" && !st.store.Courses.Has(st.selectedCourse) {
			_ = st.selectCourse("")
		}
	})

	b.on(EventSessionEnded, "reset-all", []string{"store", "tracker", "ui", "status", "selection", "training"}, func(st *state, _ event) {
		st.clear()
	})
}
