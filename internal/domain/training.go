package domain

// TrainingStatus is the server-reported state of a course training job.
type TrainingStatus string

const (
	TrainingPending  TrainingStatus = "pending"
	TrainingComplete TrainingStatus = "complete"
	TrainingFailed   TrainingStatus = "failed"
	TrainingError    TrainingStatus = "error"
)

// TrainingResult is what a finished training job resolves with.
type TrainingResult struct {
	Status   TrainingStatus `json:"status"`
	CourseID string         `json:"courseId"`
}
