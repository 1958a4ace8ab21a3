package notify

import "fmt"

// Canonical verbs for the collaborator flows, kept here so every producer
// pushes consistent wording.

// EnrollmentVerb describes a student enrolling in a course; sent to the
// instructor.
func EnrollmentVerb(student, courseTitle string) string {
	return fmt.Sprintf("%s enrolled in your course %q", student, courseTitle)
}

// MaterialVerb describes new material in a course; sent to each enrolled
// student.
func MaterialVerb(materialTitle, courseTitle string) string {
	return fmt.Sprintf("New material %q was uploaded to %s", materialTitle, courseTitle)
}

// FeedbackVerb describes feedback left on a course; sent to the instructor.
func FeedbackVerb(student, courseTitle string) string {
	return fmt.Sprintf("%s left feedback on %s", student, courseTitle)
}
