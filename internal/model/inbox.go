// internal/model/inbox.go
package model

import "time"

// Classifications of inbound messages.
const (
	ClassificationInterested    = "INTERESTED"
	ClassificationNotInterested = "NOT_INTERESTED"
	ClassificationOutOfOffice   = "OUT_OF_OFFICE"
	ClassificationUnsubscribe   = "UNSUBSCRIBE"
	ClassificationBounce        = "BOUNCE"
	ClassificationNeutral       = "NEUTRAL"
)

const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
)

type Conversation struct {
	ID            string    `db:"id" json:"id"`
	WorkspaceID   string    `db:"workspace_id" json:"workspaceId"`
	ThreadID      string    `db:"thread_id" json:"threadId"`
	ProspectID    string    `db:"prospect_id" json:"prospectId"`
	CampaignID    *string   `db:"campaign_id" json:"campaignId,omitempty"`
	LastMessageAt time.Time `db:"last_message_at" json:"lastMessageAt"`
}

type InboxMessage struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	ExternalID     string    `db:"external_id" json:"externalId"`
	Direction      string    `db:"direction" json:"direction"`
	FromAddress    string    `db:"from_address" json:"fromAddress"`
	Subject        string    `db:"subject" json:"subject"`
	Body           string    `db:"body" json:"body"`
	Classification *string   `db:"classification" json:"classification"`
	ReceivedAt     time.Time `db:"received_at" json:"receivedAt"`
}

// RawMessage is a message fetched from the mailbox before it is matched.
type RawMessage struct {
	ExternalID  string    `json:"id"`
	ThreadID    string    `json:"threadId"`
	FromAddress string    `json:"from"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	ReceivedAt  time.Time `json:"receivedAt"`
}
