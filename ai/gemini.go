package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiService calls the Gemini generateContent REST endpoint.
type GeminiService struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewGeminiService(apiKey, model string) *GeminiService {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiService{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultGeminiBaseURL,
		httpClient: &http.Client{},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	Temperature      float64 `json:"temperature"`
}

type generateRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *GeminiService) generate(ctx context.Context, system, prompt string, jsonMode bool) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, url.QueryEscape(g.apiKey))

	payload := generateRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig:  generationConfig{Temperature: 0.4},
	}
	if jsonMode {
		payload.GenerationConfig.ResponseMimeType = "application/json"
		payload.GenerationConfig.Temperature = 0
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNonConforming, err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty candidates", ErrNonConforming)
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return strings.TrimSpace(text.String()), nil
}

const classifyInstruction = `You triage inbound email for a sales team.
Answer with a JSON object {"decision": "...", "reasoning": "..."}.
decision is one of:
- "junk": spam, promotions, newsletters, automated notifications
- "easy": quick to answer without research (scheduling, thanks, a status update, a minor question)
- "hard": anything needing judgement, pricing, negotiation or a long answer
reasoning is one short sentence.`

func (g *GeminiService) Classify(ctx context.Context, subject, body string) (Classification, error) {
	text, err := g.generate(ctx, classifyInstruction, fmt.Sprintf("Subject: %s\nBody: %s", subject, body), true)
	if err != nil {
		return Classification{}, err
	}

	var raw struct {
		Decision  string `json:"decision"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Classification{}, fmt.Errorf("%w: %v", ErrNonConforming, err)
	}
	decision, err := ParseDecision(raw.Decision)
	if err != nil {
		return Classification{}, err
	}
	return Classification{Decision: decision, Reasoning: raw.Reasoning}, nil
}

const replyInstruction = `You are a professional email replier.
Read the subject and body carefully and reply to the sender by name.
Match the tone of the original. Keep it short.
Do not include a subject line. End with "Best regards," followed by the signer's name.`

func (g *GeminiService) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	prompt := fmt.Sprintf("Sender name: %s\nSigner name: %s\nSubject: %s\nBody: %s",
		req.SenderName, req.SignOff, req.Subject, req.Body)
	reply, err := g.generate(ctx, replyInstruction, prompt, false)
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply", ErrNonConforming)
	}
	return reply, nil
}

const followUpInstruction = `You write cold outreach follow-up emails.
Given the first email already sent and the contact details, write the requested number of follow-ups.
Each follow-up is shorter than the previous one, references the earlier email and never repeats it.
Answer with a JSON array of strings. Each string starts with a line "Subject: ..." followed by the body.`

func (g *GeminiService) GenerateFollowUps(ctx context.Context, req FollowUpRequest) ([]string, error) {
	if req.Count <= 0 {
		return nil, nil
	}
	prompt := fmt.Sprintf("Follow-ups needed: %d\nContact: %s\nRole: %s\nCompany: %s\nFirst email:\n%s",
		req.Count, req.ContactName, req.Role, req.Company, req.FirstMessage)
	text, err := g.generate(ctx, followUpInstruction, prompt, true)
	if err != nil {
		return nil, err
	}

	var bodies []string
	if err := json.Unmarshal([]byte(text), &bodies); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonConforming, err)
	}
	if len(bodies) != req.Count {
		return nil, fmt.Errorf("%w: asked for %d follow-ups, got %d", ErrNonConforming, req.Count, len(bodies))
	}
	for i, body := range bodies {
		if strings.TrimSpace(body) == "" {
			return nil, fmt.Errorf("%w: follow-up %d is empty", ErrNonConforming, i+1)
		}
	}
	return bodies, nil
}

const coldEmailInstruction = `You write short, personalised cold emails.
Tone is one of friendly (warm, conversational), formal (respectful, business-like) or funny (witty but professional).
Greet the recipient by the name given. Keep it short and aimed at getting a reply. Never use placeholders like [Name].
End with "Best regards," followed by the signer's name.
Answer with a JSON array of two strings. Each string starts with a line "Subject: ..." followed by the body.`

func (g *GeminiService) GenerateColdEmails(ctx context.Context, req ColdEmailRequest) ([]string, error) {
	website := req.Website
	if website == "" {
		website = "Not provided"
	}
	prompt := fmt.Sprintf("Name: %s\nLinkedIn URL: %s\nRole: %s\nWebsite: %s\nTone: %s\nAbout: %s\nSigner name: %s",
		req.RecipientName, req.LinkedInURL, req.Role, website, req.Tone, req.About, req.SignOff)
	text, err := g.generate(ctx, coldEmailInstruction, prompt, true)
	if err != nil {
		return nil, err
	}

	var variations []string
	if err := json.Unmarshal([]byte(text), &variations); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonConforming, err)
	}
	var out []string
	for _, v := range variations {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no variations", ErrNonConforming)
	}
	if len(out) > 2 {
		out = out[:2]
	}
	return out, nil
}
