package domain

import "slices"

// Course is a school course with its own assistant model.
type Course struct {
	ID              string   `json:"_id"`
	Name            string   `json:"name"`
	Code            string   `json:"code,omitempty"`
	School          string   `json:"school"`
	PromptTemplates []string `json:"promptTemplates"`
}

// EntityID returns the server id of the course.
func (c Course) EntityID() string { return c.ID }

// Clone returns a copy whose prompt templates are independent of c.
func (c Course) Clone() Course {
	c.PromptTemplates = slices.Clone(c.PromptTemplates)
	return c
}
