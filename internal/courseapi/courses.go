package courseapi

import (
	"context"
	"net/http"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

type courseEnvelope struct {
	Course domain.Course `json:"course"`
}

type coursesEnvelope struct {
	Courses []domain.Course `json:"courses"`
}

type statusEnvelope struct {
	Status domain.TrainingStatus `json:"status"`
}

// FetchSchoolCourse returns one course of a school.
func (c *Client) FetchSchoolCourse(ctx context.Context, schoolID, courseID string) (domain.Course, error) {
	var env courseEnvelope
	err := c.do(ctx, http.MethodGet, path("schools", schoolID, "courses", "user", courseID), nil, &env)
	return env.Course, err
}

// FetchSchoolCourses returns the courses of a school.
func (c *Client) FetchSchoolCourses(ctx context.Context, schoolID string) ([]domain.Course, error) {
	var env coursesEnvelope
	if err := c.do(ctx, http.MethodGet, path("schools", schoolID, "courses", "user"), nil, &env); err != nil {
		return nil, err
	}
	return env.Courses, nil
}

// FetchAllCourses returns every course.
func (c *Client) FetchAllCourses(ctx context.Context) ([]domain.Course, error) {
	var env coursesEnvelope
	if err := c.do(ctx, http.MethodGet, path("courses"), nil, &env); err != nil {
		return nil, err
	}
	return env.Courses, nil
}

// ImproveModel submits training content for a course. The server accepts
// the job and returns before training finishes.
func (c *Client) ImproveModel(ctx context.Context, schoolID, userID, courseID, content string) error {
	body := map[string]string{"content": content}
	return c.do(ctx, http.MethodPut, path("schools", schoolID, "courses", userID, courseID, "improve-model"), body, nil)
}

// TrainingStatus returns the current status of a course's training job.
func (c *Client) TrainingStatus(ctx context.Context, schoolID, userID, courseID string) (domain.TrainingStatus, error) {
	var env statusEnvelope
	err := c.do(ctx, http.MethodGet, path("schools", schoolID, "courses", userID, courseID, "training-status"), nil, &env)
	return env.Status, err
}
