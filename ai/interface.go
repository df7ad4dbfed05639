package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNonConforming is returned when a model answer cannot be mapped
	// onto the expected shape.
	ErrNonConforming = errors.New("ai: non-conforming response")
	ErrUnavailable   = errors.New("ai: no provider configured")
)

// Decision is the classifier's verdict on an inbound email.
type Decision string

const (
	DecisionJunk Decision = "junk"
	DecisionEasy Decision = "easy"
	DecisionHard Decision = "hard"
)

// ParseDecision accepts the three known verdicts, case-insensitively.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionJunk, DecisionEasy, DecisionHard:
		return d, nil
	default:
		return "", fmt.Errorf("%w: unknown decision %q", ErrNonConforming, s)
	}
}

type Classification struct {
	Decision  Decision `json:"decision"`
	Reasoning string   `json:"reasoning"`
}

// Classifier sorts an inbound email into junk, easy or hard.
type Classifier interface {
	Classify(ctx context.Context, subject, body string) (Classification, error)
}

type ReplyRequest struct {
	SenderName string
	Subject    string
	Body       string
	SignOff    string // tenant display name
}

type FollowUpRequest struct {
	ContactName  string
	Company      string
	Role         string
	FirstMessage string
	Count        int
}

// ColdEmailRequest describes the recipient of a first outreach email.
type ColdEmailRequest struct {
	RecipientName string
	LinkedInURL   string
	Role          string
	Website       string
	Tone          string // friendly, formal or funny
	About         string
	SignOff       string
}

// Generator writes reply, follow-up and cold outreach text.
type Generator interface {
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
	// GenerateFollowUps returns exactly req.Count bodies. Each may start
	// with a "Subject:" line.
	GenerateFollowUps(ctx context.Context, req FollowUpRequest) ([]string, error)
	// GenerateColdEmails returns one or two variations, each starting
	// with a "Subject:" line.
	GenerateColdEmails(ctx context.Context, req ColdEmailRequest) ([]string, error)
}

// Service is a provider that both classifies and generates.
type Service interface {
	Classifier
	Generator
}

// Disabled is used when no provider is configured. Every call fails
// with ErrUnavailable, which routes mail to manual review.
type Disabled struct{}

func (Disabled) Classify(context.Context, string, string) (Classification, error) {
	return Classification{}, ErrUnavailable
}

func (Disabled) GenerateReply(context.Context, ReplyRequest) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) GenerateFollowUps(context.Context, FollowUpRequest) ([]string, error) {
	return nil, ErrUnavailable
}

func (Disabled) GenerateColdEmails(context.Context, ColdEmailRequest) ([]string, error) {
	return nil, ErrUnavailable
}
