package session

import (
	"context"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

// SelectChat makes the stored chat chatID the active chat.
func (s *Session) SelectChat(chatID string) error {
	return s.local(DomainChats, "select chat", func(st *state) error {
		return selectChat(st, chatID)
	})
}

func selectChat(st *state, chatID string) error {
	c, err := st.store.Chats.Get(chatID)
	if err != nil {
		return inconsistent("select chat: chat %q is not loaded", chatID)
	}
	st.setActiveChat(&c)
	st.shouldFocusChatInput = true
	return nil
}

// SelectChatEntity stores c and makes it the active chat.
func (s *Session) SelectChatEntity(c domain.Chat) error {
	return s.local(DomainChats, "select chat", func(st *state) error {
		if err := st.store.Chats.UpsertOne(c); err != nil {
			return err
		}
		st.written(chatKey(c.ID), st.localSeq())
		s.bus.publish(st, event{kind: EventChatsUpdated, chats: []domain.Chat{c}})
		return selectChat(st, c.ID)
	})
}

// SelectCourseForNewChat clears the active chat and waits for the first
// message of a new chat in the selected course.
func (s *Session) SelectCourseForNewChat() error {
	return s.local(DomainCourses, "select course for new chat", func(st *state) error {
		if st.selectedCourse == "" {
			return inconsistent("no course selected for a new chat")
		}
		st.setActiveChat(nil)
		st.tracker.waitingFirstMessage = true
		return nil
	})
}

// HighlightSearchHit marks hit. The caller navigates to the hit's chat
// first; a nil hit clears the highlight.
func (s *Session) HighlightSearchHit(hit *domain.HighlightMessage) {
	_ = s.local(DomainChats, "highlight search hit", func(st *state) error {
		st.tracker.highlight = cloneHit(hit)
		return nil
	})
}

// SetFocusedChat sets the chat the UI scrolls to. An empty id clears it.
func (s *Session) SetFocusedChat(chatID string) {
	_ = s.local(DomainChats, "set focused chat", func(st *state) error {
		st.tracker.focusedChat = chatID
		return nil
	})
}

// OpenSearchResult navigates to the chat owning hit and highlights it. The
// chat is fetched first when it is not loaded.
func (s *Session) OpenSearchResult(ctx context.Context, hit domain.HighlightMessage) error {
	if hit.Chat == "" {
		return s.local(DomainChats, "open search result", func(*state) error {
			return inconsistent("search hit %q has no chat", hit.ID)
		})
	}

	var loaded bool
	s.read(func(st *state) { loaded = st.store.Chats.Has(hit.Chat) })
	if !loaded {
		if _, err := s.FetchChat(ctx, hit.Chat); err != nil {
			return err
		}
	}

	s.logger.Debug("opening search result", "chat_id", hit.Chat, "message_id", hit.ID, "terms", hit.HitTerms())
	return s.local(DomainChats, "open search result", func(st *state) error {
		if err := st.selectCourse(""); err != nil {
			return err
		}
		if err := selectChat(st, hit.Chat); err != nil {
			return err
		}
		st.tracker.focusedChat = hit.Chat
		st.activePanel = domain.PanelChat
		st.tracker.highlight = cloneHit(&hit)
		return nil
	})
}

func cloneHit(hit *domain.HighlightMessage) *domain.HighlightMessage {
	if hit == nil {
		return nil
	}
	cp := hit.Clone()
	return &cp
}
