// Package telegram connects the bot to the Telegram Bot API using long
// polling.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dmitrijs2005/cloudkeeper/internal/bot"
	"github.com/dmitrijs2005/cloudkeeper/internal/logging"
	"github.com/dmitrijs2005/cloudkeeper/internal/netx"
)

// Handler processes one inbound message.
type Handler interface {
	Handle(ctx context.Context, msg bot.Message, out bot.Responder)
}

// botAPI is the subset of *tgbotapi.BotAPI the transport uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Transport feeds Telegram updates to a Handler one at a time, so messages
// of a user are processed in arrival order.
type Transport struct {
	api         botAPI
	handler     Handler
	log         logging.Logger
	pollTimeout time.Duration
	httpClient  *http.Client
}

// New authorizes token against the Bot API.
func New(token string, handler Handler, log logging.Logger, pollTimeout time.Duration) (*Transport, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	log.Info(context.Background(), "authorized on telegram", "bot", api.Self.UserName)

	return newTransport(api, handler, log, pollTimeout), nil
}

func newTransport(api botAPI, handler Handler, log logging.Logger, pollTimeout time.Duration) *Transport {
	return &Transport{
		api:         api,
		handler:     handler,
		log:         log,
		pollTimeout: pollTimeout,
		httpClient:  &http.Client{},
	}
}

// Run polls for updates until ctx is cancelled.
func (t *Transport) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(t.pollTimeout.Seconds())

	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	t.log.Info(ctx, "telegram polling started", "timeout", t.pollTimeout)

	for {
		select {
		case <-ctx.Done():
			t.log.Info(ctx, "telegram polling stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, upd)
		}
	}
}

func (t *Transport) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	m := upd.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return
	}

	msg := bot.Message{
		SenderID:   m.From.ID,
		SenderName: senderName(m.From),
		Text:       m.Text,
	}
	if m.Document != nil {
		msg.Attachment = t.attachment(m.Document)
	}

	t.handler.Handle(ctx, msg, &responder{api: t.api, chatID: m.Chat.ID})
}

func (t *Transport) attachment(d *tgbotapi.Document) *bot.Attachment {
	name := d.FileName
	if name == "" {
		name = "document_" + d.FileUniqueID
	}

	return &bot.Attachment{
		Name: name,
		Size: int64(d.FileSize),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			url, err := t.api.GetFileDirectURL(d.FileID)
			if err != nil {
				return nil, fmt.Errorf("file url: %w", netx.Redact(err))
			}
			return netx.Fetch(ctx, t.httpClient, url)
		},
	}
}

func senderName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// responder replies into one chat. API errors are redacted: request URLs
// carry the bot token.
type responder struct {
	api    botAPI
	chatID int64
}

func (r *responder) Send(ctx context.Context, text string) (bot.MessageRef, error) {
	sent, err := r.api.Send(tgbotapi.NewMessage(r.chatID, text))
	if err != nil {
		return bot.MessageRef{}, fmt.Errorf("send message: %w", netx.Redact(err))
	}
	return bot.MessageRef{ChatID: r.chatID, MessageID: sent.MessageID}, nil
}

func (r *responder) Edit(ctx context.Context, ref bot.MessageRef, text string) error {
	_, err := r.api.Request(tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text))
	if err != nil {
		// editing to identical text is rejected by the API
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("edit message: %w", netx.Redact(err))
	}
	return nil
}

func (r *responder) SendFile(ctx context.Context, name string, rd io.Reader, caption string) error {
	doc := tgbotapi.NewDocument(r.chatID, tgbotapi.FileReader{Name: name, Reader: rd})
	doc.Caption = caption

	if _, err := r.api.Send(doc); err != nil {
		return fmt.Errorf("send document: %w", netx.Redact(err))
	}
	return nil
}
