package session

import (
	"context"
	"fmt"

	"github.com/ashureev/coursegpt-sync/internal/courseapi"
	"github.com/ashureev/coursegpt-sync/internal/domain"
)

// FetchUserChats loads the current user's chats, generating a title for
// every chat that has none, and merges them into the store. Titles are
// generated one chat at a time.
func (s *Session) FetchUserChats(ctx context.Context) ([]domain.Chat, error) {
	var userID string
	return run(ctx, s, call[[]domain.Chat]{
		domain: DomainChats,
		op:     "fetch user chats",
		prepare: func(st *state) error {
			if st.userID == "" {
				return ErrNotSignedIn
			}
			userID = st.userID
			return nil
		},
		fetch: func(ctx context.Context) ([]domain.Chat, error) {
			chats, err := s.api.FetchUserChats(ctx, userID)
			if err != nil {
				return nil, err
			}
			for i := range chats {
				if chats[i].HasTitle() {
					continue
				}
				titled, err := s.api.CreateChatTitle(ctx, chats[i].ID)
				if err != nil {
					return nil, fmt.Errorf("title chat %s: %w", chats[i].ID, err)
				}
				chats[i].Title = titled.Title
			}
			return chats, nil
		},
		apply: s.mergeChats,
	})
}

// mergeChats merges the chats of call seq that no newer write has touched
// and announces them so mirrors follow. Superseded chats keep their newer
// version.
func (s *Session) mergeChats(st *state, seq uint64, chats []domain.Chat) error {
	fresh := make([]domain.Chat, 0, len(chats))
	for _, c := range chats {
		if !st.fresh(chatKey(c.ID), seq) {
			s.logger.Debug("skipping superseded chat", "chat_id", c.ID, "seq", seq)
			continue
		}
		fresh = append(fresh, c)
	}
	if err := st.store.Chats.MergeMany(fresh); err != nil {
		return err
	}
	for _, c := range fresh {
		st.written(chatKey(c.ID), seq)
	}
	s.bus.publish(st, event{kind: EventChatsUpdated, chats: fresh})
	return nil
}

// mergeChat merges the single chat of call seq, or reports ErrStale when a
// newer write already covers it.
func (s *Session) mergeChat(st *state, seq uint64, c domain.Chat) error {
	if !st.fresh(chatKey(c.ID), seq) {
		return ErrStale
	}
	return s.mergeChats(st, seq, []domain.Chat{c})
}

// CreateChatTitle generates a title for chatID.
func (s *Session) CreateChatTitle(ctx context.Context, chatID string) (domain.Chat, error) {
	return run(ctx, s, call[domain.Chat]{
		domain: DomainChats,
		op:     "create chat title",
		fetch: func(ctx context.Context) (domain.Chat, error) {
			return s.api.CreateChatTitle(ctx, chatID)
		},
		apply: s.mergeChat,
	})
}

// FetchChat reloads a single chat.
func (s *Session) FetchChat(ctx context.Context, chatID string) (domain.Chat, error) {
	return run(ctx, s, call[domain.Chat]{
		domain: DomainChats,
		op:     "fetch chat",
		fetch: func(ctx context.Context) (domain.Chat, error) {
			return s.api.FetchChat(ctx, chatID)
		},
		apply: s.mergeChat,
	})
}

// CreateChat creates a chat under the selected course, links it to the
// user and makes it the active chat.
func (s *Session) CreateChat(ctx context.Context) (domain.Chat, error) {
	var userID, courseID string
	return run(ctx, s, call[domain.Chat]{
		domain: DomainChats,
		op:     "create chat",
		prepare: func(st *state) error {
			if st.userID == "" {
				return ErrNotSignedIn
			}
			if st.selectedCourse == "" {
				return inconsistent("no course selected for the new chat")
			}
			userID, courseID = st.userID, st.selectedCourse
			return nil
		},
		fetch: func(ctx context.Context) (domain.Chat, error) {
			return s.api.CreateChat(ctx, userID, courseID)
		},
		apply: func(st *state, seq uint64, c domain.Chat) error {
			if err := st.store.Chats.UpsertOne(c); err != nil {
				return err
			}
			st.written(chatKey(c.ID), seq)
			s.bus.publish(st, event{kind: EventChatCreated, chats: []domain.Chat{c}})
			return nil
		},
	})
}

// SoftDeleteChats tombstones the chats of the selected course, or every
// chat of the user when no course is selected. Only the affected chats are
// merged back.
func (s *Session) SoftDeleteChats(ctx context.Context) ([]domain.Chat, error) {
	var userID string
	var filter courseapi.ChatFilter
	return run(ctx, s, call[[]domain.Chat]{
		domain: DomainChats,
		op:     "soft delete chats",
		prepare: func(st *state) error {
			if st.userID == "" {
				return ErrNotSignedIn
			}
			userID = st.userID
			filter = courseapi.ChatFilter{Course: st.selectedCourse}
			return nil
		},
		fetch: func(ctx context.Context) ([]domain.Chat, error) {
			return s.api.SoftDeleteChats(ctx, userID, filter)
		},
		apply: s.mergeChats,
	})
}

// SoftDeleteChat tombstones a single chat.
func (s *Session) SoftDeleteChat(ctx context.Context, chatID string) (domain.Chat, error) {
	var userID string
	return run(ctx, s, call[domain.Chat]{
		domain: DomainChats,
		op:     "soft delete chat",
		prepare: func(st *state) error {
			if st.userID == "" {
				return ErrNotSignedIn
			}
			userID = st.userID
			return nil
		},
		fetch: func(ctx context.Context) (domain.Chat, error) {
			return s.api.SoftDeleteChat(ctx, userID, chatID)
		},
		apply: s.mergeChat,
	})
}
