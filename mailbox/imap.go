package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"outreachly/config"
	"outreachly/models"
	"outreachly/utils"
)

const dialTimeout = 30 * time.Second

// Client implements Provider over a mailbox's IMAP and SMTP settings.
// Every call opens its own IMAP session.
type Client struct {
	smtp    *SMTPSender
	decrypt func(string) (string, error)
	log     *logrus.Entry
}

// NewClient returns a Client. fallback is used for outbound mail when a
// mailbox has no SMTP host of its own.
func NewClient(fallback config.SMTPConfig, log *logrus.Entry) *Client {
	return &Client{
		smtp:    NewSMTPSender(fallback, utils.Decrypt),
		decrypt: utils.Decrypt,
		log:     log,
	}
}

func (c *Client) dial(box *models.Mailbox) (*client.Client, error) {
	if box == nil || box.IMAPHost == "" {
		return nil, ErrNoMailbox
	}

	password, err := c.decrypt(box.IMAPPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt IMAP password: %w", err)
	}

	var imapClient *client.Client
	imapAddr := fmt.Sprintf("%s:%d", box.IMAPHost, box.IMAPPort)
	dialer := &net.Dialer{Timeout: dialTimeout}
	tlsConfig := &tls.Config{ServerName: box.IMAPHost}

	switch strings.ToUpper(box.IMAPEncryption) {
	case "SSL", "TLS":
		imapClient, err = client.DialWithDialerTLS(dialer, imapAddr, tlsConfig)
	case "STARTTLS":
		imapClient, err = client.DialWithDialer(dialer, imapAddr)
		if err == nil {
			err = imapClient.StartTLS(tlsConfig)
		}
	default:
		imapClient, err = client.DialWithDialer(dialer, imapAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := imapClient.Login(box.IMAPUsername, password); err != nil {
		_ = imapClient.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}
	return imapClient, nil
}

// session dials, selects folder and runs fn. Cancelling ctx tears the
// connection down so a hung server cannot pin the caller.
func (c *Client) session(ctx context.Context, box *models.Mailbox, folder string, readOnly bool, fn func(*client.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	imapClient, err := c.dial(box)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = imapClient.Terminate()
		case <-done:
		}
	}()
	defer imapClient.Logout()

	if _, err := imapClient.Select(folder, readOnly); err != nil {
		return fmt.Errorf("failed to select mailbox %s: %w", folder, err)
	}
	return fn(imapClient)
}

func inboxFolder(box *models.Mailbox) string {
	if box.IMAPMailbox != "" {
		return box.IMAPMailbox
	}
	return "INBOX"
}

// ListUnseen returns up to max of the newest messages without \Seen,
// oldest first. Bodies are fetched with PEEK so listing never marks
// anything read.
func (c *Client) ListUnseen(ctx context.Context, box *models.Mailbox, max int) ([]Message, error) {
	var out []Message
	err := c.session(ctx, box, inboxFolder(box), true, func(imapClient *client.Client) error {
		criteria := imap.NewSearchCriteria()
		criteria.WithoutFlags = []string{imap.SeenFlag}
		uids, err := imapClient.UidSearch(criteria)
		if err != nil {
			return fmt.Errorf("failed to search messages: %w", err)
		}
		if len(uids) == 0 {
			return nil
		}

		sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
		if max > 0 && len(uids) > max {
			uids = uids[len(uids)-max:]
		}

		out, err = c.fetch(imapClient, uids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetMessage(ctx context.Context, box *models.Mailbox, id string) (Message, error) {
	uid, err := parseUID(id)
	if err != nil {
		return Message{}, err
	}

	var found []Message
	err = c.session(ctx, box, inboxFolder(box), true, func(imapClient *client.Client) error {
		var fetchErr error
		found, fetchErr = c.fetch(imapClient, []uint32{uid})
		return fetchErr
	})
	if err != nil {
		return Message{}, err
	}
	if len(found) == 0 {
		return Message{}, ErrMessageNotFound
	}
	return found[0], nil
}

// Trash moves the message to the mailbox's trash folder.
func (c *Client) Trash(ctx context.Context, box *models.Mailbox, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	trash := box.TrashMailbox
	if trash == "" {
		trash = "Trash"
	}

	return c.session(ctx, box, inboxFolder(box), false, func(imapClient *client.Client) error {
		return moveToTrash(imapClient, uid, trash)
	})
}

// trashMover is the part of *client.Client that moveToTrash needs.
type trashMover interface {
	Support(capability string) (bool, error)
	UidMove(seqset *imap.SeqSet, dest string) error
	UidCopy(seqset *imap.SeqSet, dest string) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
}

// moveToTrash moves one message with MOVE. Without MOVE the message is
// copied and flagged \Deleted; the folder is never expunged, so other
// messages flagged by the tenant stay where they are.
func moveToTrash(mc trashMover, uid uint32, trash string) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	canMove, err := mc.Support("MOVE")
	if err != nil {
		return fmt.Errorf("failed to read capabilities: %w", err)
	}
	if canMove {
		if err := mc.UidMove(seqset, trash); err != nil {
			return fmt.Errorf("failed to move message to %s: %w", trash, err)
		}
		return nil
	}

	if err := mc.UidCopy(seqset, trash); err != nil {
		return fmt.Errorf("failed to copy message to %s: %w", trash, err)
	}
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := mc.UidStore(seqset, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return fmt.Errorf("failed to flag message deleted: %w", err)
	}
	return nil
}

func (c *Client) MarkRead(ctx context.Context, box *models.Mailbox, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}

	return c.session(ctx, box, inboxFolder(box), false, func(imapClient *client.Client) error {
		seqset := new(imap.SeqSet)
		seqset.AddNum(uid)
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := imapClient.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			return fmt.Errorf("failed to mark message read: %w", err)
		}
		return nil
	})
}

func (c *Client) Send(ctx context.Context, box *models.Mailbox, out Outgoing) (Receipt, error) {
	return c.smtp.Send(ctx, box, out)
}

func (c *Client) fetch(imapClient *client.Client, uids []uint32) ([]Message, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.UidFetch(seqset, items, messages)
	}()

	var out []Message
	for msg := range messages {
		parsed, err := toMessage(msg, section)
		if err != nil {
			c.log.WithFields(logrus.Fields{
				"uid":   msg.Uid,
				"error": err,
			}).Warn("Skipping unreadable message")
			continue
		}
		out = append(out, parsed)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("error during fetch: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func toMessage(msg *imap.Message, section *imap.BodySectionName) (Message, error) {
	if msg.Envelope == nil {
		return Message{}, fmt.Errorf("message %d has no envelope", msg.Uid)
	}

	var body string
	if literal := msg.GetBody(section); literal != nil {
		text, err := readBody(literal)
		if err != nil {
			return Message{}, err
		}
		body = text
	}

	return Message{
		ID:        strconv.FormatUint(uint64(msg.Uid), 10),
		MessageID: msg.Envelope.MessageId,
		Subject:   msg.Envelope.Subject,
		Sender:    formatAddress(msg.Envelope.From),
		Snippet:   snippet(body),
		Body:      body,
		Ordinal:   msg.Uid,
	}, nil
}

var htmlTags = regexp.MustCompile(`(?s)<[^>]*>`)

// readBody returns the text/plain part of a raw RFC 5322 message,
// falling back to tag-stripped text/html.
func readBody(r io.Reader) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to create message reader: %w", err)
	}

	var bodyText, bodyHTML string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return "", fmt.Errorf("failed to read next part: %w", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		b, err := io.ReadAll(p.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read body: %w", err)
		}
		switch {
		case strings.Contains(contentType, "text/plain") && bodyText == "":
			bodyText = string(b)
		case strings.Contains(contentType, "text/html") && bodyHTML == "":
			bodyHTML = string(b)
		}
	}

	if strings.TrimSpace(bodyText) != "" {
		return strings.TrimSpace(bodyText), nil
	}
	return strings.TrimSpace(htmlTags.ReplaceAllString(bodyHTML, " ")), nil
}

func formatAddress(addrs []*imap.Address) string {
	var result []string
	for _, addr := range addrs {
		if addr.PersonalName != "" {
			result = append(result, fmt.Sprintf("%s <%s>", addr.PersonalName, addr.Address()))
		} else {
			result = append(result, addr.Address())
		}
	}
	return strings.Join(result, ", ")
}

func parseUID(id string) (uint32, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil || uid == 0 {
		return 0, fmt.Errorf("invalid message id %q", id)
	}
	return uint32(uid), nil
}
