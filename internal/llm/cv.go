package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// ErrIncompleteProfile is returned when a profile lacks a required contact field.
var ErrIncompleteProfile = errors.New("incomplete profile")

// Profile is the applicant information a CV is written from.
type Profile struct {
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Address      string `json:"address,omitempty"`
	Objective    string `json:"objective,omitempty"`
	Education    string `json:"education,omitempty"`
	Experience   string `json:"experience,omitempty"`
	Skills       string `json:"skills,omitempty"`
	Certificates string `json:"certificates,omitempty"`
	Activities   string `json:"activities,omitempty"`
	Interests    string `json:"interests,omitempty"`
}

// Validate requires name, email and phone.
func (p Profile) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"full_name", p.FullName},
		{"email", p.Email},
		{"phone", p.Phone},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteProfile, strings.Join(missing, ", "))
	}
	return nil
}

func (p Profile) lines() []string {
	fields := []struct{ label, value string }{
		{"Full name", p.FullName},
		{"Email", p.Email},
		{"Phone", p.Phone},
		{"Address", p.Address},
		{"Career objective", p.Objective},
		{"Education", p.Education},
		{"Work experience", p.Experience},
		{"Skills", p.Skills},
		{"Certificates", p.Certificates},
		{"Activities", p.Activities},
		{"Interests", p.Interests},
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := strings.TrimSpace(f.value); v != "" {
			out = append(out, f.label+": "+v)
		}
	}
	return out
}

// cvSections are requested in this order; the last three are optional.
var cvSections = []string{
	"Personal information",
	"Career objective",
	"Education",
	"Work experience",
	"Skills",
	"Certificates (if any)",
	"Extracurricular activities (if any)",
	"Interests (optional)",
}

const cvSystem = "You are a career advisor who writes professional CVs tailored to the job the applicant is applying for."

// GenerateCV writes CV text for profile, tailored to job. Rendering the text
// into a document format is left to the caller.
func (c *Client) GenerateCV(ctx context.Context, profile Profile, job crawler.DetailRecord) (string, error) {
	if err := profile.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Write a complete, professional CV from the information below.\n\nAPPLICANT:\n")
	for _, line := range profile.lines() {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("\nJOB APPLIED FOR:\n")
	row := job.Row()
	for _, key := range row.Keys() {
		if v := row.Get(key); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", key, v)
		}
	}
	b.WriteString("\nInclude these sections:\n")
	for i, s := range cvSections {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	b.WriteString("\nEmphasise what matches the job's requirements.")

	reply, err := c.completer.Complete(ctx, cvSystem, b.String())
	if err != nil {
		return "", fmt.Errorf("generate cv: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("generate cv: %w", crawler.ErrEmptyRecord)
	}
	c.logger.Info("cv generated", zap.String("job_url", job.URL), zap.Int("chars", len(reply)))
	return reply, nil
}
