package decision

import (
	"fmt"

	"social-support-workers/internal/assessment/eligibility"
)

const (
	approvedPrefix = "APPROVED: Your application meets our criteria."
	declinedPrefix = "SOFT DECLINE: Your application did not meet all criteria."

	// Fallback is returned if the message cannot be composed.
	Fallback = "Error determining final decision; please try again later."
)

// Assemble fuses the eligibility label and recommendation into the final
// message shown to the applicant. It never panics.
func Assemble(label eligibility.Label, recommendation string) string {
	return assemble(label, recommendation, compose)
}

func assemble(label eligibility.Label, recommendation string, fn func(eligibility.Label, string) string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = Fallback
		}
	}()
	return fn(label, recommendation)
}

func compose(label eligibility.Label, recommendation string) string {
	if label == eligibility.Approved {
		return fmt.Sprintf("%s %s", approvedPrefix, recommendation)
	}
	return fmt.Sprintf("%s %s", declinedPrefix, recommendation)
}
