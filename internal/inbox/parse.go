package inbox

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/unclebandit/outreach-backend/internal/gmail"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// ParseRaw turns a gateway envelope into a RawMessage. The text/plain parts
// form the body; HTML is used only when no plain part exists.
func ParseRaw(env gmail.Envelope) (model.RawMessage, error) {
	msg := model.RawMessage{
		ExternalID: env.ID,
		ThreadID:   env.ThreadID,
		ReceivedAt: env.Received,
	}

	reader, err := mail.CreateReader(strings.NewReader(env.Raw))
	if err != nil {
		return msg, err
	}

	if subject, err := reader.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if from, err := reader.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.FromAddress = strings.ToLower(strings.TrimSpace(from[0].Address))
	}
	if msg.ReceivedAt.IsZero() {
		if date, err := reader.Header.Date(); err == nil {
			msg.ReceivedAt = date.UTC()
		} else {
			msg.ReceivedAt = time.Now().UTC()
		}
	}

	var text, html bytes.Buffer
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return msg, err
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case mediaType == "" || strings.HasPrefix(mediaType, "text/plain"):
			appendPart(&text, body)
		case strings.HasPrefix(mediaType, "text/html"):
			appendPart(&html, body)
		}
	}

	if text.Len() > 0 {
		msg.Body = strings.TrimSpace(text.String())
	} else {
		msg.Body = strings.TrimSpace(html.String())
	}
	return msg, nil
}

func appendPart(buf *bytes.Buffer, body []byte) {
	if buf.Len() > 0 {
		buf.WriteByte('\n')
	}
	buf.Write(body)
}
