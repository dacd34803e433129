package domain

// Request types understood by the bot server.
const (
	RequestQuery          = "query"
	RequestSettings       = "settings"
	RequestReportFeedback = "report_feedback"
	RequestReportError    = "report_error"
)

// ProtocolVersion is the version stamped on chained bot requests.
const ProtocolVersion = "1.1"

// Attachment is a file the user attached to a message. Only the URL is used.
type Attachment struct {
	URL           string `json:"url"`
	ContentType   string `json:"content_type,omitempty"`
	Name          string `json:"name,omitempty"`
	ParsedContent string `json:"parsed_content,omitempty"`
}

// MessageFeedback is feedback a user left on an earlier bot message.
type MessageFeedback struct {
	Type   string `json:"type"` // like | dislike
	Reason string `json:"reason,omitempty"`
}

// ProtocolMessage is a single conversation turn.
type ProtocolMessage struct {
	Role        string            `json:"role"` // system | user | bot
	Content     string            `json:"content"`
	ContentType string            `json:"content_type,omitempty"`
	Timestamp   int64             `json:"timestamp,omitempty"`
	MessageID   string            `json:"message_id,omitempty"`
	Feedback    []MessageFeedback `json:"feedback,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
}

// QueryRequest is the body of a "query" request, and the body the bot sends
// when it calls another bot.
type QueryRequest struct {
	Version          string             `json:"version"`
	Type             string             `json:"type"`
	Query            []ProtocolMessage  `json:"query"`
	UserID           string             `json:"user_id"`
	ConversationID   string             `json:"conversation_id"`
	MessageID        string             `json:"message_id"`
	Metadata         string             `json:"metadata,omitempty"`
	AccessKey        string             `json:"access_key,omitempty"`
	APIKey           string             `json:"api_key,omitempty"`
	Temperature      *float64           `json:"temperature,omitempty"`
	SkipSystemPrompt bool               `json:"skip_system_prompt,omitempty"`
	LogitBias        map[string]float64 `json:"logit_bias,omitempty"`
	StopSequences    []string           `json:"stop_sequences,omitempty"`
}

// LastMessage returns the latest turn, or a zero message when the query is empty.
func (r *QueryRequest) LastMessage() ProtocolMessage {
	if len(r.Query) == 0 {
		return ProtocolMessage{}
	}
	return r.Query[len(r.Query)-1]
}

// Derive builds a request to another bot carrying a single user message and
// the caller's conversation, user and message identifiers.
func (r *QueryRequest) Derive(content string) *QueryRequest {
	return &QueryRequest{
		Version:        ProtocolVersion,
		Type:           RequestQuery,
		Query:          []ProtocolMessage{{Role: "user", Content: content}},
		UserID:         r.UserID,
		ConversationID: r.ConversationID,
		MessageID:      r.MessageID,
		AccessKey:      r.AccessKey,
	}
}

// SettingsResponse answers a "settings" request.
type SettingsResponse struct {
	ServerBotDependencies map[string]int `json:"server_bot_dependencies,omitempty"`
	AllowAttachments      bool           `json:"allow_attachments"`
	IntroductionMessage   string         `json:"introduction_message,omitempty"`
}

// ReportFeedbackRequest is sent when a user likes or dislikes a bot reply.
type ReportFeedbackRequest struct {
	Version        string `json:"version"`
	Type           string `json:"type"`
	MessageID      string `json:"message_id"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	FeedbackType   string `json:"feedback_type"`
}

// ReportErrorRequest is sent when the platform could not use a bot response.
type ReportErrorRequest struct {
	Version  string         `json:"version"`
	Type     string         `json:"type"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
