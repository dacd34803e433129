// Package channel connects the bots to chat networks other than the Poe
// server protocol.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"echobot/internal/domain"
	"echobot/internal/journal"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// telegramAPI is the part of *tgbotapi.BotAPI the channel uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// RequestJournal records handled requests. *journal.Store implements it.
type RequestJournal interface {
	LogRequest(ctx context.Context, e journal.Entry) error
}

// Telegram serves one bot over the Telegram Bot API using long polling.
type Telegram struct {
	token     string
	allowFrom []int64 // empty = allow all
	parseMode string
	accessKey string

	bot     domain.Bot
	api     telegramAPI
	journal RequestJournal
	logger  *slog.Logger

	sem chan struct{} // bounds concurrent handleUpdate calls
	wg  sync.WaitGroup
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // user IDs as strings
	ParseMode string
	Bot       domain.Bot
	// AccessKey is put on every request so chained bot calls can authenticate.
	AccessKey string
	Journal   RequestJournal // optional
	Logger    *slog.Logger
	// MaxConcurrent caps the updates handled at once. Values below 1 mean 1.
	MaxConcurrent int
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		parseMode: cfg.ParseMode,
		accessKey: cfg.AccessKey,
		bot:       cfg.Bot,
		journal:   cfg.Journal,
		logger:    cfg.Logger,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and handles updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	api, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.api = api
	t.logger.Info("telegram bot connected",
		"username", api.Self.UserName,
		"id", api.Self.ID,
		"bot", t.bot.Name(),
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := api.GetUpdatesChan(u)

	t.consume(ctx, updates)
	t.logger.Info("telegram channel stopping")
	api.StopReceivingUpdates()
	return nil
}

// consume hands each update to its own goroutine, at most cap(t.sem) at a
// time, until ctx is cancelled or updates is closed. It returns once every
// in-flight update has finished.
func (t *Telegram) consume(ctx context.Context, updates <-chan tgbotapi.Update) {
	defer t.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			select {
			case t.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				defer func() { <-t.sem }()
				t.handleUpdate(ctx, update)
			}()
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user", "user_id", userID, "username", msg.From.UserName)
		t.sendMessage(chatID, "Unauthorized. Your user ID is not in the allow list.", nil)
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			t.sendMessage(chatID, t.bot.Settings().IntroductionMessage, nil)
			return
		}
	}

	req, err := t.toQuery(msg)
	if err != nil {
		t.logger.Error("cannot read telegram message", "err", err, "chat_id", chatID)
		t.sendMessage(chatID, "Sorry, I could not read that message.", nil)
		return
	}
	if req.LastMessage().Content == "" && len(req.LastMessage().Attachments) == 0 {
		return
	}

	t.logger.Info("telegram message received",
		"user_id", userID,
		"chat_id", chatID,
		"text_len", len(req.LastMessage().Content),
		"attachments", len(req.LastMessage().Attachments),
	)
	_, _ = t.api.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	start := time.Now()
	out := &chatResponder{chatID: chatID, channel: t}
	respErr := t.bot.Respond(ctx, req, out)
	out.flush()

	entry := journal.Entry{
		Bot:            t.bot.Name(),
		Channel:        t.Name(),
		Command:        commandOf(req.LastMessage().Content),
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		HasAttachment:  len(req.LastMessage().Attachments) > 0,
		Outcome:        journal.OutcomeOK,
		Latency:        time.Since(start),
	}
	if respErr != nil {
		t.logger.Error("telegram request failed", "err", respErr, "chat_id", chatID)
		t.sendMessage(chatID, "Request failed: "+respErr.Error(), nil)
		entry.Outcome = journal.OutcomeFatal
		entry.Error = respErr.Error()
	}
	if t.journal != nil {
		if err := t.journal.LogRequest(ctx, entry); err != nil {
			t.logger.Warn("journal write failed", "err", err)
		}
	}
}

// toQuery converts a Telegram message into a bot query. A photo, or a
// document with an image type, becomes the message attachment.
func (t *Telegram) toQuery(msg *tgbotapi.Message) (*domain.QueryRequest, error) {
	content := msg.Text
	if content == "" {
		content = msg.Caption
	}
	pm := domain.ProtocolMessage{
		Role:      "user",
		Content:   content,
		Timestamp: int64(msg.Date) * 1_000_000,
		MessageID: strconv.Itoa(msg.MessageID),
	}

	var fileID, contentType, name string
	switch {
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		fileID, contentType, name = largest.FileID, "image/jpeg", "photo.jpg"
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		fileID, contentType, name = msg.Document.FileID, msg.Document.MimeType, msg.Document.FileName
	}
	if fileID != "" {
		url, err := t.api.GetFileDirectURL(fileID)
		if err != nil {
			return nil, fmt.Errorf("resolve telegram file: %w", err)
		}
		pm.Attachments = []domain.Attachment{{URL: url, ContentType: contentType, Name: name}}
	}

	return &domain.QueryRequest{
		Version:        domain.ProtocolVersion,
		Type:           domain.RequestQuery,
		Query:          []domain.ProtocolMessage{pm},
		UserID:         "tg-" + strconv.FormatInt(msg.From.ID, 10),
		ConversationID: "tg-" + strconv.FormatInt(msg.Chat.ID, 10),
		MessageID:      uuid.NewString(),
		AccessKey:      t.accessKey,
	}, nil
}

func commandOf(content string) string {
	if !strings.HasPrefix(content, "/") {
		return "default"
	}
	name := strings.FieldsFunc(content[1:], func(r rune) bool { return r == ' ' || r == '\n' })
	if len(name) == 0 {
		return "default"
	}
	return name[0]
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// chatResponder collects a bot reply for one Telegram chat. Telegram has no
// incremental streaming, so text is buffered and sent once by flush; files are
// sent as documents right away.
type chatResponder struct {
	chatID    int64
	channel   *Telegram
	text      strings.Builder
	suggested string
}

func (r *chatResponder) Send(_ context.Context, p domain.PartialResponse) error {
	switch {
	case p.IsSuggestedReply:
		// Pressing a keyboard button sends the button label, so the label has
		// to be the full text.
		r.suggested = p.Text
	case p.IsReplaceResponse:
		r.text.Reset()
		r.text.WriteString(p.Text)
	default:
		r.text.WriteString(p.Text)
	}
	return nil
}

func (r *chatResponder) Attach(_ context.Context, art domain.Artifact) error {
	doc := tgbotapi.NewDocument(r.chatID, tgbotapi.FileBytes{Name: path.Base(art.Filename), Bytes: art.Data})
	if _, err := r.channel.api.Send(doc); err != nil {
		return fmt.Errorf("send telegram document: %w", err)
	}
	return nil
}

func (r *chatResponder) flush() {
	var markup any
	if r.suggested != "" {
		kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(r.suggested)))
		kb.OneTimeKeyboard = true
		kb.ResizeKeyboard = true
		markup = kb
	}
	text := r.text.String()
	if text == "" {
		if markup == nil {
			return
		}
		text = "Done."
	}
	r.channel.sendMessage(r.chatID, text, markup)
	r.text.Reset()
	r.suggested = ""
}

// sendMessage splits text at Telegram's length limit. markup is attached to
// the last chunk.
func (t *Telegram) sendMessage(chatID int64, text string, markup any) {
	const maxLen = telegramMaxMsgLen
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxLen {
			cutAt := strings.LastIndex(chunk[:maxLen], "\n")
			if cutAt < maxLen/2 {
				cutAt = maxLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		var m any
		if text == "" {
			m = markup
		}
		t.sendChunk(chatID, chunk, m)
	}
}

// sendChunk sends one message. Markdown is tried first and plain text on a
// parse error; rate limits are waited out.
func (t *Telegram) sendChunk(chatID int64, text string, markup any) {
	const maxRetries = telegramMaxSendRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ReplyMarkup = markup
		if attempt == 0 && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}

		_, err := t.api.Send(msg)
		if err == nil {
			return
		}
		errStr := err.Error()

		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off", "retry_after", retryAfter, "attempt", attempt+1)
			time.Sleep(retryAfter)
			continue
		}

		if attempt == 0 && msg.ParseMode != "" && strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram markdown parse error, retrying as plain text", "err", err)
			continue
		}

		t.logger.Error("telegram send failed", "err", err, "attempt", attempt+1)
		return
	}
}
