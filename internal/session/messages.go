package session

import (
	"context"
	"strings"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

// SendMessage posts a user-authored message to the active chat.
func (s *Session) SendMessage(ctx context.Context, content string) (domain.Message, error) {
	var chatID string
	return run(ctx, s, call[domain.Message]{
		domain: DomainChats,
		op:     "send message",
		prepare: func(st *state) error {
			if strings.TrimSpace(content) == "" {
				return inconsistent("message content is empty")
			}
			if st.tracker.activeChat == nil {
				return inconsistent("no active chat to send to")
			}
			chatID = st.tracker.activeChat.ID
			return nil
		},
		fetch: func(ctx context.Context) (domain.Message, error) {
			m, err := s.api.CreateMessage(ctx, chatID, content)
			if m.Chat == "" {
				m.Chat = chatID
			}
			return m, err
		},
		apply: func(st *state, _ uint64, m domain.Message) error {
			return s.appendMessage(st, m)
		},
	})
}

// RequestAssistantReply asks the assistant to answer in chatID.
func (s *Session) RequestAssistantReply(ctx context.Context, chatID string) (domain.Message, error) {
	return run(ctx, s, call[domain.Message]{
		domain: DomainChats,
		op:     "request assistant reply",
		prepare: func(st *state) error {
			if !st.store.Chats.Has(chatID) {
				return inconsistent("chat %q is not loaded", chatID)
			}
			return nil
		},
		fetch: func(ctx context.Context) (domain.Message, error) {
			m, err := s.api.CreateAssistantReply(ctx, chatID)
			if m.Chat == "" {
				m.Chat = chatID
			}
			return m, err
		},
		apply: func(st *state, _ uint64, m domain.Message) error {
			return s.appendMessage(st, m)
		},
	})
}

// AppendMessage applies a message delivered outside of a request, such as
// a pushed assistant reply.
func (s *Session) AppendMessage(m domain.Message) error {
	return s.local(DomainChats, "append message", func(st *state) error {
		return s.appendMessage(st, m)
	})
}

// appendMessage adds m to its chat and lets the mirror follow in the same
// transition. Chat results of calls issued before the append are older
// than it and no longer overwrite the chat.
func (s *Session) appendMessage(st *state, m domain.Message) error {
	if m.ID == "" {
		return inconsistent("message without id")
	}
	if _, err := st.store.Chats.Update(m.Chat, func(c *domain.Chat) { c.AppendMessage(m.ID) }); err != nil {
		return inconsistent("append message %s: chat %q is not loaded", m.ID, m.Chat)
	}
	st.written(chatKey(m.Chat), st.localSeq())
	s.bus.publish(st, event{kind: EventMessageAppended, message: &m})
	return nil
}
