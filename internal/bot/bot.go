// Package bot implements the chat-facing side of the file store: command
// parsing, the authentication gate, multi-step flows and the text of every
// reply. It is transport independent; a transport turns its updates into
// Message values and implements Responder.
package bot

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloudkeeper/internal/auth"
	"github.com/dmitrijs2005/cloudkeeper/internal/common"
	"github.com/dmitrijs2005/cloudkeeper/internal/conversation"
	"github.com/dmitrijs2005/cloudkeeper/internal/logging"
	"github.com/dmitrijs2005/cloudkeeper/internal/services"
	"github.com/dmitrijs2005/cloudkeeper/internal/session"
	"github.com/google/uuid"
)

// Attachment is a file sent along with a message. Open fetches its content
// and is only called once the upload has been accepted.
type Attachment struct {
	Name string
	Size int64
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// Message is one inbound chat message.
type Message struct {
	SenderID   int64
	SenderName string
	Text       string
	Attachment *Attachment
}

// MessageRef identifies a sent message so it can be edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Responder sends replies back to the chat a Message came from.
type Responder interface {
	Send(ctx context.Context, text string) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string) error
	SendFile(ctx context.Context, name string, r io.Reader, caption string) error
}

// flowInput is what a conversation step receives.
type flowInput struct {
	msg Message
	out Responder
	log logging.Logger
}

// Bot routes messages to command handlers and conversation steps.
type Bot struct {
	sessions *session.Registry
	flows    *conversation.Engine[flowInput]
	files    *services.FileService
	verifier *auth.Verifier
	log      logging.Logger

	editsPerSecond float64
	now            func() time.Time
}

// Option configures a Bot.
type Option func(*Bot)

// WithEditRate limits progress message edits per second.
func WithEditRate(perSecond float64) Option {
	return func(b *Bot) { b.editsPerSecond = perSecond }
}

// WithClock overrides time.Now for the timestamps shown to users.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

func New(sessions *session.Registry, files *services.FileService, verifier *auth.Verifier, log logging.Logger, opts ...Option) *Bot {
	b := &Bot{
		sessions:       sessions,
		flows:          conversation.NewEngine[flowInput](),
		files:          files,
		verifier:       verifier,
		log:            log,
		editsPerSecond: 2,
		now:            time.Now,
	}
	for _, o := range opts {
		o(b)
	}

	b.flows.Register(conversation.Authentication, b.checkPassword)
	b.flows.Register(conversation.AwaitingDeleteFilename, b.deleteFile)
	b.flows.Register(conversation.AwaitingDownloadFilename, b.downloadFile)

	return b
}

// Expecting returns the flow userID is in, if any. Transports use it to
// e.g. hide input while a password is expected.
func (b *Bot) Expecting(userID int64) (conversation.Kind, bool) {
	return b.flows.Active(userID)
}

// Handle processes one message. Every failure, including a panic in a
// handler, ends up as a reply to the user; nothing is returned.
func (b *Bot) Handle(ctx context.Context, msg Message, out Responder) {
	log := b.log.With("request_id", uuid.NewString(), "user_id", msg.SenderID)

	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, "handler panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			b.reply(ctx, log, out, fmt.Sprintf("❌ Something went wrong. Please try again.\nTime: %s", b.stamp()))
		}
	}()

	if msg.Attachment != nil {
		log.Debug(ctx, "attachment received", "name", msg.Attachment.Name, "size", msg.Attachment.Size)
		b.upload(ctx, log, msg, out)
		return
	}

	if cmd, args, ok := parseCommand(msg.Text); ok {
		log.Debug(ctx, "command received", "command", cmd)
		b.dispatch(ctx, log, cmd, args, msg, out)
		return
	}

	in := flowInput{msg: msg, out: out, log: log}
	if _, ok := b.flows.ConsumeIfActive(ctx, msg.SenderID, in); ok {
		return
	}

	b.reply(ctx, log, out, "🤔 I don't understand that. Use /help to see available commands.")
}

func (b *Bot) dispatch(ctx context.Context, log logging.Logger, cmd string, args []string, msg Message, out Responder) {
	switch cmd {
	case "start":
		b.start(ctx, log, msg, out)
		return
	case "cancel":
		b.cancel(ctx, log, msg, out)
		return
	}

	handler, ok := b.commands()[cmd]
	if !ok {
		b.reply(ctx, log, out, fmt.Sprintf("❓ Unknown command /%s. Use /help to see available commands.", cmd))
		return
	}

	if err := b.authorize(msg.SenderID); err != nil {
		log.Info(ctx, "request rejected", "command", cmd, "error", err)
		b.reply(ctx, log, out, "❌ Please use /start to enter password first.")
		return
	}

	handler(ctx, log, args, msg, out)
}

// authorize returns common.ErrorUnauthenticated unless userID has entered
// the password.
func (b *Bot) authorize(userID int64) error {
	if !b.sessions.IsAuthenticated(userID) {
		return fmt.Errorf("user %d: %w", userID, common.ErrorUnauthenticated)
	}
	return nil
}

type commandFunc func(ctx context.Context, log logging.Logger, args []string, msg Message, out Responder)

// commands lists the handlers that require an authenticated session.
func (b *Bot) commands() map[string]commandFunc {
	return map[string]commandFunc{
		"help":     b.help,
		"upload":   b.uploadPrompt,
		"download": b.beginDownload,
		"delete":   b.beginDelete,
		"list":     b.list,
		"metadata": b.metadata,
		"stats":    b.stats,
		"cleanup":  b.cleanup,
		"rename":   b.renameFile,
		"move":     b.moveFile,
		"copy":     b.copyFile,
	}
}

// parseCommand splits "/cmd@botname arg1 arg2" into its parts. The command
// is lower-cased; arguments are kept as typed.
func parseCommand(text string) (string, []string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}

	fields := strings.Fields(text)
	head := strings.TrimPrefix(fields[0], "/")
	head, _, _ = strings.Cut(head, "@")

	return strings.ToLower(head), fields[1:], true
}

func (b *Bot) stamp() string {
	return common.FormatTime(b.now())
}

// reply sends text, logging a failed send.
func (b *Bot) reply(ctx context.Context, log logging.Logger, out Responder, text string) {
	if _, err := out.Send(ctx, text); err != nil {
		log.Warn(ctx, "send failed", "error", err)
	}
}

// status is a message that is edited as an operation progresses. If the
// initial send failed, updates fall back to new messages.
type status struct {
	out Responder
	log logging.Logger
	ref MessageRef
	ok  bool
}

func (b *Bot) newStatus(ctx context.Context, log logging.Logger, out Responder, text string) *status {
	ref, err := out.Send(ctx, text)
	if err != nil {
		log.Warn(ctx, "send failed", "error", err)
	}
	return &status{out: out, log: log, ref: ref, ok: err == nil}
}

func (s *status) edit(ctx context.Context, text string) error {
	if !s.ok {
		_, err := s.out.Send(ctx, text)
		return err
	}
	return s.out.Edit(ctx, s.ref, text)
}

func (s *status) set(ctx context.Context, text string) {
	if err := s.edit(ctx, text); err != nil {
		s.log.Warn(ctx, "status update failed", "error", err)
	}
}
