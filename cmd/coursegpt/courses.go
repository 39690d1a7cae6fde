package main

import (
	"github.com/spf13/cobra"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

var coursesSchoolID string

// coursesCmd lists all courses or one school's courses.
var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "Fetch courses and print them as JSON",
	RunE:  runCourses,
}

func init() {
	coursesCmd.Flags().StringVar(&coursesSchoolID, "school", "", "only courses of this school")
}

func runCourses(cmd *cobra.Command, _ []string) error {
	sess, err := newSession(cfg)
	if err != nil {
		return err
	}

	var courses []domain.Course
	if coursesSchoolID != "" {
		courses, err = sess.FetchSchoolCourses(cmd.Context(), coursesSchoolID)
	} else {
		courses, err = sess.FetchAllCourses(cmd.Context())
	}
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{"courses": courses})
}
