package signals

import (
	"regexp"
	"strings"
)

var jobPattern = regexp.MustCompile(`(?i)(?:Title|Position|Role):\s*(.+?)\s*(?:Duration|Period):\s*(.+)`)

type Job struct {
	Title    string `json:"title"`
	Duration string `json:"duration"`
}

type ResumeData struct {
	EmploymentHistory []Job `json:"employment_history"`
	EmploymentCount   int   `json:"employment_count"`
}

// ParseResume collects every title/duration pair in text. No matches is a
// valid result with a zero count.
func ParseResume(text string) ResumeData {
	matches := jobPattern.FindAllStringSubmatch(text, -1)
	jobs := make([]Job, 0, len(matches))
	for _, m := range matches {
		jobs = append(jobs, Job{
			Title:    strings.TrimSpace(m[1]),
			Duration: strings.TrimSpace(m[2]),
		})
	}
	return ResumeData{EmploymentHistory: jobs, EmploymentCount: len(jobs)}
}
