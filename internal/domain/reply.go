package domain

import "context"

// PartialResponse is one element of a streamed reply.
type PartialResponse struct {
	Text              string
	IsReplaceResponse bool
	IsSuggestedReply  bool
	DisplayText       string // optional short label for a suggested reply
}

// Artifact is a generated file that is attached to the reply.
type Artifact struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Responder receives the output of a bot for a single request.
type Responder interface {
	Send(ctx context.Context, resp PartialResponse) error
	Attach(ctx context.Context, art Artifact) error
}

// Bot answers queries and describes itself to the platform.
type Bot interface {
	Name() string
	Respond(ctx context.Context, req *QueryRequest, out Responder) error
	Settings() SettingsResponse
}

// BotCaller streams a request to another bot hosted on the platform and
// invokes fn for every partial response it yields.
type BotCaller interface {
	Stream(ctx context.Context, botName string, req *QueryRequest, fn func(PartialResponse) error) error
}
