package collector

import (
	"crypto/sha256"
	"encoding/hex"

	"ctxdump/internal/fields"
	"ctxdump/internal/mailbox"
)

// OutboxKey is the Input.Values key a host may use to pass an Outbox.
const OutboxKey = "outbox"

// Outbox is a source of sent emails.
type Outbox interface {
	Messages() []mailbox.Message
}

// MailerCollector reports the emails sent during the test, dropping exact
// repeats.
type MailerCollector struct {
	Outbox Outbox
}

func (c MailerCollector) Collect(in Input) (*fields.Map, error) {
	box := c.Outbox
	if box == nil {
		box, _ = in.Values[OutboxKey].(Outbox)
	}
	if box == nil {
		return nil, nil
	}

	msgs := box.Messages()
	if len(msgs) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(msgs))
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		sig := signature(m)
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, fields.New(
			fields.Pair{Key: "subject", Value: m.Subject},
			fields.Pair{Key: "to", Value: m.Recipients()},
			fields.Pair{Key: "body", Value: m.Body()},
		))
	}
	return fields.New(fields.Pair{Key: "messages", Value: out}), nil
}

func signature(m mailbox.Message) string {
	h := sha256.New()
	for _, part := range []string{m.Subject, m.Recipients(), m.Body()} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
