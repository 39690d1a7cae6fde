package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/coursegpt-sync/internal/training"
)

var (
	trainSchoolID    string
	trainUserID      string
	trainCourseID    string
	trainContent     string
	trainContentFile string
)

// trainCmd submits course material and waits for the model to finish.
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a course model and wait for the result",
	Long: `Submits content to improve a course's model, then polls the training
status until it completes, fails, times out or is interrupted.

Example:
  coursegpt train --school s1 --user u1 --course k1 --file notes.txt`,
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.StringVar(&trainSchoolID, "school", "", "school id")
	f.StringVar(&trainUserID, "user", "", "professor's user id")
	f.StringVar(&trainCourseID, "course", "", "course id")
	f.StringVar(&trainContent, "content", "", "training content")
	f.StringVar(&trainContentFile, "file", "", "read training content from file")
	for _, name := range []string{"school", "user", "course"} {
		_ = trainCmd.MarkFlagRequired(name)
	}
	trainCmd.MarkFlagsMutuallyExclusive("content", "file")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	content := trainContent
	if trainContentFile != "" {
		data, err := os.ReadFile(trainContentFile)
		if err != nil {
			return fmt.Errorf("read training content: %w", err)
		}
		content = string(data)
	}

	client, err := newClient(cfg)
	if err != nil {
		return fmt.Errorf("create API client: %w", err)
	}

	p := newPoller(cfg)
	p.Logger = slog.Default()
	p.OnProgress = func(pr training.Progress) {
		slog.Info("Training progress", "course_id", pr.CourseID, "state", pr.State, "attempts", pr.Attempts)
	}

	res, runErr := p.Run(cmd.Context(), client, training.Job{
		SchoolID: trainSchoolID,
		UserID:   trainUserID,
		CourseID: trainCourseID,
		Content:  content,
	})
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	return runErr
}
