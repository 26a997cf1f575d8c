// Package mailbox is an in-memory outbox that application code under test
// can send through instead of a real mail transport.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
)

// ErrNoRecipients is returned when a message has no To address.
var ErrNoRecipients = errors.New("message has no recipients")

// Message is one sent email.
type Message struct {
	From    string
	To      []*mail.Address
	Subject string
	Text    string
	HTML    string
	SentAt  time.Time
}

// Body returns the HTML body, or the text body when there is no HTML.
func (m Message) Body() string {
	if m.HTML != "" {
		return m.HTML
	}
	return m.Text
}

// Recipients formats the To list as a comma separated string.
func (m Message) Recipients() string {
	parts := make([]string, 0, len(m.To))
	for _, a := range m.To {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

// Outbox collects sent messages.
type Outbox struct {
	mu       sync.Mutex
	messages []Message
	now      func() time.Time
}

// New creates an empty Outbox.
func New() *Outbox {
	return &Outbox{now: time.Now}
}

// Send stores msg.
func (o *Outbox) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = o.now()
	}
	o.mu.Lock()
	o.messages = append(o.messages, msg)
	o.mu.Unlock()
	return nil
}

// SendTo parses the recipient list (RFC 5322) and sends a message.
func (o *Outbox) SendTo(ctx context.Context, to, subject, text, html string) error {
	addrs, err := mail.ParseAddressList(to)
	if err != nil {
		return fmt.Errorf("parse recipients %q: %w", to, err)
	}
	return o.Send(ctx, Message{To: addrs, Subject: subject, Text: text, HTML: html})
}

// Messages returns a copy of the sent messages in send order.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Reset empties the outbox.
func (o *Outbox) Reset() {
	o.mu.Lock()
	o.messages = nil
	o.mu.Unlock()
}
