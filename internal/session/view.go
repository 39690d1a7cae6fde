package session

import (
	"maps"

	"github.com/ashureev/coursegpt-sync/internal/domain"
	"github.com/ashureev/coursegpt-sync/internal/training"
)

// DomainView is the loading flag and last error of one domain.
type DomainView struct {
	Loading bool     `json:"loading"`
	Error   *Failure `json:"error"`
}

// View is a deep copy of the session state, safe to hand to other
// goroutines and to encode as JSON.
type View struct {
	Version              uint64                       `json:"version"`
	User                 *domain.User                 `json:"user"`
	Chats                map[string]domain.Chat       `json:"chats"`
	Courses              map[string]domain.Course     `json:"courses"`
	SelectedCourse       string                       `json:"selectedCourse,omitempty"`
	ActiveChat           *domain.Chat                 `json:"activeChat"`
	FocusedChat          string                       `json:"focusedChat,omitempty"`
	HighlightMessage     *domain.HighlightMessage     `json:"highlightMessage"`
	WaitingFirstMessage  bool                         `json:"waitingFirstMessage"`
	ActivePanel          domain.Panel                 `json:"activePanel"`
	ShouldFocusChatInput bool                         `json:"shouldFocusChatInput"`
	PromptTemplates      []string                     `json:"promptTemplates"`
	Status               map[Domain]DomainView        `json:"status"`
	Fatal                bool                         `json:"fatal"`
	Training             map[string]training.Progress `json:"training"`
}

// View returns a copy of the current state.
func (s *Session) View() View {
	var v View
	s.read(func(st *state) { v = st.view() })
	return v
}

func (st *state) view() View {
	v := View{
		Version:              st.version,
		Chats:                make(map[string]domain.Chat, st.store.Chats.Len()),
		Courses:              make(map[string]domain.Course, st.store.Courses.Len()),
		SelectedCourse:       st.selectedCourse,
		FocusedChat:          st.tracker.focusedChat,
		HighlightMessage:     cloneHit(st.tracker.highlight),
		WaitingFirstMessage:  st.tracker.waitingFirstMessage,
		ActivePanel:          st.activePanel,
		ShouldFocusChatInput: st.shouldFocusChatInput,
		PromptTemplates:      promptTemplates(st),
		Status:               make(map[Domain]DomainView, len(domains)),
		Training:             maps.Clone(st.training),
	}
	if u, err := st.store.Users.Get(st.userID); err == nil && st.userID != "" {
		v.User = &u
	}
	for _, c := range st.store.Chats.All() {
		v.Chats[c.ID] = c
	}
	for _, c := range st.store.Courses.All() {
		v.Courses[c.ID] = c
	}
	if st.tracker.activeChat != nil {
		c := st.tracker.activeChat.Clone()
		v.ActiveChat = &c
	}
	for _, d := range domains {
		ds := st.status[d]
		dv := DomainView{Loading: ds.inFlight > 0}
		if ds.err != nil {
			f := *ds.err
			dv.Error = &f
		}
		v.Status[d] = dv
	}
	v.Fatal = v.Status[DomainUser].Error != nil
	return v
}

// Status returns the loading flag and last error of d.
func (s *Session) Status(d Domain) DomainView {
	var dv DomainView
	s.read(func(st *state) {
		if ds, ok := st.status[d]; ok {
			dv.Loading = ds.inFlight > 0
			if ds.err != nil {
				f := *ds.err
				dv.Error = &f
			}
		}
	})
	return dv
}
