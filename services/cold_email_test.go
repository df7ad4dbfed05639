package services

import (
	"context"
	"errors"
	"testing"

	"outreachly/models"
)

func TestColdEmailsGenerateSplitsDrafts(t *testing.T) {
	env := newTestEnv(t)
	user, _ := env.tenant(t, models.PlanFree)
	ctx := context.Background()

	drafts, err := env.coldEmails.Generate(ctx, user.ID, ColdEmailInput{
		LinkedInURL: "https://www.linkedin.com/in/jane-doe-1234/",
		Role:        "Head of Growth",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(drafts) != 2 {
		t.Fatalf("drafts = %d, want 2", len(drafts))
	}
	if drafts[0].Subject != "Hello Jane Doe" {
		t.Fatalf("subject = %q", drafts[0].Subject)
	}
	want := "Hi Jane Doe, a friendly tone note.\nBest regards,\n" + user.DisplayName()
	if drafts[0].Body != want {
		t.Fatalf("body = %q, want %q", drafts[0].Body, want)
	}

	requests := env.generator.ColdEmailRequests()
	if len(requests) != 1 || requests[0].RecipientName != "Jane Doe" || requests[0].Tone != "friendly" || requests[0].Role != "Head of Growth" {
		t.Fatalf("requests = %+v", requests)
	}
}

func TestColdEmailsGenerateErrors(t *testing.T) {
	env := newTestEnv(t)
	user, _ := env.tenant(t, models.PlanFree)
	ctx := context.Background()
	in := ColdEmailInput{LinkedInURL: "https://linkedin.com/in/sam", Role: "CTO", Tone: "formal"}

	if _, err := env.coldEmails.Generate(ctx, 999999, in); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("unknown tenant err = %v", err)
	}

	env.generator.ColdErr = errors.New("quota")
	if _, err := env.coldEmails.Generate(ctx, user.ID, in); !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
}
