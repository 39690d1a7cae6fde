// Package domain contains the entity types shared by the session sync layer.
package domain

import "slices"

// UserType distinguishes students from professors. The zero value means the
// user has not finished registration.
type UserType string

const (
	UserTypeStudent   UserType = "Student"
	UserTypeProfessor UserType = "Professor"
)

// Panel is the side panel the UI currently shows.
type Panel string

const (
	PanelInfo   Panel = "INFO"
	PanelChat   Panel = "CHAT"
	PanelSearch Panel = "SEARCH"
)

// Valid reports whether p is one of the known panels.
func (p Panel) Valid() bool {
	switch p {
	case PanelInfo, PanelChat, PanelSearch:
		return true
	}
	return false
}

// User is the signed-in account as returned by the server.
type User struct {
	ID             string   `json:"_id"`
	ProfilePicture string   `json:"profilePicture,omitempty"`
	FirstName      string   `json:"firstName,omitempty"`
	LastName       string   `json:"lastName,omitempty"`
	Email          string   `json:"email,omitempty"`
	GoogleID       string   `json:"googleId,omitempty"`
	School         string   `json:"school,omitempty"`
	Chats          []string `json:"chats"`
	Favourites     []string `json:"favourites"`
	Type           UserType `json:"type,omitempty"`
	SelectedCourse string   `json:"selectedCourse,omitempty"`
	Deleted        bool     `json:"deleted,omitempty"`
}

// EntityID returns the server id of the user.
func (u User) EntityID() string { return u.ID }

// Clone returns a copy that shares no slices with u.
func (u User) Clone() User {
	u.Chats = cloneIDs(u.Chats)
	u.Favourites = cloneIDs(u.Favourites)
	return u
}

// IsRegistered returns true once the user has picked a user type.
func (u *User) IsRegistered() bool {
	return u.Type != ""
}

// HasChat returns true if chatID is among the chats owned by the user.
func (u *User) HasChat(chatID string) bool {
	return slices.Contains(u.Chats, chatID)
}

// AddChat appends chatID to the owned chats unless it is already present.
func (u *User) AddChat(chatID string) bool {
	if u.HasChat(chatID) {
		return false
	}
	u.Chats = append(u.Chats, chatID)
	return true
}

// IsFavourite returns true if courseID is in the user's favourites.
func (u *User) IsFavourite(courseID string) bool {
	return slices.Contains(u.Favourites, courseID)
}

// UserUpdate is the PATCH body for a user. Nil fields are left untouched by
// the server.
type UserUpdate struct {
	ProfilePicture *string   `json:"profilePicture,omitempty"`
	FirstName      *string   `json:"firstName,omitempty"`
	LastName       *string   `json:"lastName,omitempty"`
	Email          *string   `json:"email,omitempty" validate:"omitempty,email"`
	School         *string   `json:"school,omitempty"`
	Type           *UserType `json:"type,omitempty" validate:"omitempty,oneof=Student Professor"`
	SelectedCourse *string   `json:"selectedCourse,omitempty"`
	Favourites     *[]string `json:"favourites,omitempty"`
	Deleted        *bool     `json:"deleted,omitempty"`
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return slices.Clone(ids)
}
