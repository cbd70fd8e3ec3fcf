package inbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/gmail"
	"github.com/unclebandit/outreach-backend/internal/model"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		subject string
		body    string
		want    string
	}{
		{"bounce subsystem", "", "Mail Delivery Subsystem: message not delivered", model.ClassificationBounce},
		{"bounce french", "Non remis : Bonjour", "", model.ClassificationBounce},
		{"bounce wins over ooo", "Undeliverable", "I am out of office", model.ClassificationBounce},
		{"ooo english", "Automatic reply: hello", "", model.ClassificationOutOfOffice},
		{"ooo french", "", "Je suis en congé jusqu'au 3 novembre", model.ClassificationOutOfOffice},
		{"ooo french return", "", "Je serai de retour lundi", model.ClassificationOutOfOffice},
		{"unsubscribe english", "", "Please REMOVE ME from your list", model.ClassificationUnsubscribe},
		{"unsubscribe french", "", "Merci de ne plus m'écrire, je veux me désabonner", model.ClassificationUnsubscribe},
		{"unsubscribe apostrophe", "", "Ne m’écrivez plus", model.ClassificationUnsubscribe},
		{"no rule", "Re: intro", "Sounds great, let's talk Tuesday", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.subject, tc.body)
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, *got)
		})
	}
}

func TestParseRaw_Multipart(t *testing.T) {
	raw := "From: Jane Doe <Jane@Acme.io>\r\n" +
		"Subject: Re: intro\r\n" +
		"Date: Mon, 19 Oct 2026 10:00:00 +0200\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Happy to chat.\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>Happy to chat.</p>\r\n" +
		"--XYZ--\r\n"

	msg, err := ParseRaw(gmail.Envelope{ID: "e-1", ThreadID: "t-1", Raw: raw})
	require.NoError(t, err)
	assert.Equal(t, "e-1", msg.ExternalID)
	assert.Equal(t, "t-1", msg.ThreadID)
	assert.Equal(t, "jane@acme.io", msg.FromAddress)
	assert.Equal(t, "Re: intro", msg.Subject)
	assert.Equal(t, "Happy to chat.", msg.Body)
	assert.Equal(t, 8, msg.ReceivedAt.Hour())
}

func TestParseRaw_SinglePart(t *testing.T) {
	raw := "From: mailer-daemon@google.com\r\nSubject: Delivery Status Notification (Failure)\r\n\r\nAddress not found"
	msg, err := ParseRaw(gmail.Envelope{ID: "e-2", ThreadID: "t-2", Raw: raw})
	require.NoError(t, err)
	assert.Equal(t, "Address not found", msg.Body)
	assert.Equal(t, model.ClassificationBounce, *Classify(msg.Subject, msg.Body))
}
