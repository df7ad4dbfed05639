package testutil

import (
	"context"
	"fmt"
	"sync"

	"outreachly/ai"
	"outreachly/mailbox"
	"outreachly/models"
)

// MailProvider is an in-memory mailbox.Provider. Like the IMAP client,
// ListUnseen returns the latest max messages. Error fields make the
// matching call fail; OnSend runs after a successful send.
type MailProvider struct {
	mu       sync.Mutex
	unseen   []mailbox.Message
	sent     []mailbox.Outgoing
	trashed  []string
	read     []string
	sendSeq  int
	ListErr  error
	SendErr  error
	TrashErr error
	OnSend   func(mailbox.Outgoing)
}

func (p *MailProvider) SetUnseen(msgs ...mailbox.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unseen = msgs
}

func (p *MailProvider) ListUnseen(_ context.Context, _ *models.Mailbox, max int) ([]mailbox.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	msgs := p.unseen
	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	return append([]mailbox.Message(nil), msgs...), nil
}

func (p *MailProvider) GetMessage(_ context.Context, _ *models.Mailbox, id string) (mailbox.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range p.unseen {
		if msg.ID == id {
			return msg, nil
		}
	}
	return mailbox.Message{}, mailbox.ErrMessageNotFound
}

func (p *MailProvider) Send(_ context.Context, _ *models.Mailbox, out mailbox.Outgoing) (mailbox.Receipt, error) {
	p.mu.Lock()
	if p.SendErr != nil {
		err := p.SendErr
		p.mu.Unlock()
		return mailbox.Receipt{}, err
	}
	p.sent = append(p.sent, out)
	p.sendSeq++
	id := fmt.Sprintf("<sent-%d@outreachly.test>", p.sendSeq)
	hook := p.OnSend
	p.mu.Unlock()

	if hook != nil {
		hook(out)
	}
	return mailbox.Receipt{MessageID: id}, nil
}

func (p *MailProvider) Trash(_ context.Context, _ *models.Mailbox, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.TrashErr != nil {
		return p.TrashErr
	}
	p.trashed = append(p.trashed, id)
	return nil
}

func (p *MailProvider) MarkRead(_ context.Context, _ *models.Mailbox, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.read = append(p.read, id)
	return nil
}

func (p *MailProvider) Sent() []mailbox.Outgoing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]mailbox.Outgoing(nil), p.sent...)
}

func (p *MailProvider) Trashed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.trashed...)
}

func (p *MailProvider) Read() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.read...)
}

// Classifier answers hard unless Fn is set.
type Classifier struct {
	mu    sync.Mutex
	calls int
	Fn    func(ctx context.Context, subject, body string) (ai.Classification, error)
}

func (c *Classifier) Classify(ctx context.Context, subject, body string) (ai.Classification, error) {
	c.mu.Lock()
	c.calls++
	fn := c.Fn
	c.mu.Unlock()
	if fn == nil {
		return ai.Classification{Decision: ai.DecisionHard, Reasoning: "needs a human"}, nil
	}
	return fn(ctx, subject, body)
}

// Answer makes every call return d.
func (c *Classifier) Answer(d ai.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Fn = func(context.Context, string, string) (ai.Classification, error) {
		return ai.Classification{Decision: d}, nil
	}
}

func (c *Classifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Generator returns Reply for replies and numbered follow-ups, each with
// a Subject line.
type Generator struct {
	mu          sync.Mutex
	requests    []ai.FollowUpRequest
	replies     []ai.ReplyRequest
	coldEmails  []ai.ColdEmailRequest
	Reply       string
	ReplyErr    error
	FollowUpErr error
	ColdErr     error
}

func (g *Generator) GenerateReply(_ context.Context, req ai.ReplyRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = append(g.replies, req)
	if g.ReplyErr != nil {
		return "", g.ReplyErr
	}
	return g.Reply, nil
}

func (g *Generator) GenerateFollowUps(_ context.Context, req ai.FollowUpRequest) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.FollowUpErr != nil {
		return nil, g.FollowUpErr
	}
	out := make([]string, req.Count)
	for i := range out {
		out[i] = fmt.Sprintf("Subject: Following up #%d\nJust checking in, %s.", i+1, req.ContactName)
	}
	return out, nil
}

func (g *Generator) FollowUpRequests() []ai.FollowUpRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ai.FollowUpRequest(nil), g.requests...)
}

func (g *Generator) ReplyRequests() []ai.ReplyRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ai.ReplyRequest(nil), g.replies...)
}

// GenerateColdEmails returns two variations addressed to the recipient.
func (g *Generator) GenerateColdEmails(_ context.Context, req ai.ColdEmailRequest) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.coldEmails = append(g.coldEmails, req)
	if g.ColdErr != nil {
		return nil, g.ColdErr
	}
	return []string{
		fmt.Sprintf("Subject: Hello %s\nHi %s, a %s tone note.\nBest regards,\n%s", req.RecipientName, req.RecipientName, req.Tone, req.SignOff),
		fmt.Sprintf("Subject: Quick idea for %s\nHey %s.", req.RecipientName, req.RecipientName),
	}, nil
}

func (g *Generator) ColdEmailRequests() []ai.ColdEmailRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ai.ColdEmailRequest(nil), g.coldEmails...)
}
