package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cloudkeeper/internal/common"
	"github.com/dmitrijs2005/cloudkeeper/internal/conversation"
	"github.com/dmitrijs2005/cloudkeeper/internal/logging"
	"github.com/dmitrijs2005/cloudkeeper/internal/progress"
)

func (b *Bot) start(ctx context.Context, log logging.Logger, msg Message, out Responder) {
	s := b.sessions.GetOrCreate(msg.SenderID, msg.SenderName)

	if s.Authenticated {
		b.sessions.Touch(msg.SenderID)
		b.reply(ctx, log, out, fmt.Sprintf(
			"✅ You are already authenticated. Use /help to see available commands.\nCurrent time (UTC): %s",
			b.stamp()))
		return
	}

	b.flows.Begin(msg.SenderID, conversation.Authentication)
	log.Info(ctx, "authentication started", "username", s.DisplayName)

	b.reply(ctx, log, out, fmt.Sprintf(
		"👋 Welcome to Cloud Storage Bot!\nCurrent time (UTC): %s\nYour username: %s\nPlease enter the password to continue.",
		b.stamp(), s.DisplayName))
}

func (b *Bot) cancel(ctx context.Context, log logging.Logger, msg Message, out Responder) {
	if b.flows.Cancel(msg.SenderID, conversation.AwaitingDeleteFilename, conversation.AwaitingDownloadFilename) {
		b.sessions.Touch(msg.SenderID)
		b.reply(ctx, log, out, "✖️ Operation cancelled.")
		return
	}
	b.reply(ctx, log, out, "Nothing to cancel.")
}

func (b *Bot) help(ctx context.Context, log logging.Logger, _ []string, msg Message, out Responder) {
	b.sessions.RecordActivity(msg.SenderID, "Viewed help")
	b.reply(ctx, log, out, fmt.Sprintf("%s\n\nCurrent time (UTC): %s\nYour username: %s",
		helpText, b.stamp(), b.displayName(msg)))
}

func (b *Bot) uploadPrompt(ctx context.Context, log logging.Logger, _ []string, msg Message, out Responder) {
	b.sessions.RecordActivity(msg.SenderID, "Initiated file upload")
	b.reply(ctx, log, out, fmt.Sprintf(
		"📤 Please send me any file to upload to cloud storage.\nCurrent time (UTC): %s\nUser: %s",
		b.stamp(), b.displayName(msg)))
}

func (b *Bot) list(ctx context.Context, log logging.Logger, _ []string, msg Message, out Responder) {
	b.listEntries(ctx, log, msg, out, false)
}

func (b *Bot) metadata(ctx context.Context, log logging.Logger, _ []string, msg Message, out Responder) {
	b.listEntries(ctx, log, msg, out, true)
}

func (b *Bot) listEntries(ctx context.Context, log logging.Logger, msg Message, out Responder, withTime bool) {
	entries, err := b.files.List(ctx)
	if err != nil {
		log.Error(ctx, "list failed", "error", err)
		b.reply(ctx, log, out, fmt.Sprintf("❌ Error reading storage.\nTime: %s", b.stamp()))
		return
	}

	activity := "Listed files"
	if withTime {
		activity = "Viewed metadata"
	}
	b.sessions.RecordActivity(msg.SenderID, activity)

	if len(entries) == 0 {
		b.reply(ctx, log, out, fmt.Sprintf("📂 Storage is empty.\nCurrent time (UTC): %s", b.stamp()))
		return
	}

	b.reply(ctx, log, out, fmt.Sprintf("📂 Files in storage (%d):\n%s\n\nCurrent time (UTC): %s",
		len(entries), renderEntries(entries, withTime), b.stamp()))
}

func (b *Bot) stats(ctx context.Context, log logging.Logger, _ []string, msg Message, out Responder) {
	st, err := b.files.Stats(ctx)
	if err != nil {
		log.Error(ctx, "stats failed", "error", err)
		b.reply(ctx, log, out, fmt.Sprintf("❌ Error getting statistics.\nTime: %s", b.stamp()))
		return
	}

	lastActivity := "never"
	if s, ok := b.sessions.Get(msg.SenderID); ok {
		lastActivity = common.FormatTime(s.LastActivity)
	}

	b.reply(ctx, log, out, fmt.Sprintf(
		"📊 Storage Statistics (as of %s):\n"+
			"📁 Total files: %d\n"+
			"💾 Total size: %s (%d bytes)\n"+
			"👥 Active users: %d\n"+
			"👤 Current user: %s\n"+
			"🕒 Last activity: %s",
		b.stamp(), st.Count, mb(st.TotalBytes), st.TotalBytes,
		b.sessions.Count(), b.displayName(msg), lastActivity))

	b.sessions.RecordActivity(msg.SenderID, "Viewed statistics")
}

func (b *Bot) cleanup(ctx context.Context, log logging.Logger, _ []string, msg Message, out Responder) {
	st := b.newStatus(ctx, log, out, "🧹 Scanning for old files...")

	res, err := b.files.Cleanup(ctx, b.reporter(st, "🗑️ Removing old files..."))
	if err != nil {
		log.Error(ctx, "cleanup failed", "error", err)
		st.set(ctx, fmt.Sprintf("❌ Error during cleanup.\nTime: %s", b.stamp()))
		return
	}

	b.sessions.RecordActivity(msg.SenderID,
		fmt.Sprintf("Cleanup: removed %d files (%s)", res.Deleted, mb(res.FreedBytes)))

	text := fmt.Sprintf("✅ Cleanup complete!\n🗑️ Removed %d old files\n💾 Freed up: %s\n⏰ Time: %s",
		res.Deleted, mb(res.FreedBytes), b.stamp())
	if res.Failed > 0 {
		text += fmt.Sprintf("\n⚠️ %d files could not be removed", res.Failed)
	}
	st.set(ctx, text)
}

func (b *Bot) renameFile(ctx context.Context, log logging.Logger, args []string, msg Message, out Responder) {
	b.transfer(ctx, log, args, msg, out, "rename", "Renamed", b.files.Rename)
}

// moveFile is renameFile: the namespace is flat, so there is nowhere else to move to.
func (b *Bot) moveFile(ctx context.Context, log logging.Logger, args []string, msg Message, out Responder) {
	b.transfer(ctx, log, args, msg, out, "move", "Moved", b.files.Rename)
}

func (b *Bot) copyFile(ctx context.Context, log logging.Logger, args []string, msg Message, out Responder) {
	b.transfer(ctx, log, args, msg, out, "copy", "Copied", b.files.Copy)
}

func (b *Bot) transfer(ctx context.Context, log logging.Logger, args []string, msg Message, out Responder,
	cmd, verb string, op func(ctx context.Context, from, to string) error) {
	if len(args) != 2 {
		b.reply(ctx, log, out, fmt.Sprintf("Usage: /%s <source name> <target name>", cmd))
		return
	}
	from, to := args[0], args[1]

	err := op(ctx, from, to)
	switch {
	case err == nil:
		b.sessions.RecordActivity(msg.SenderID, fmt.Sprintf("%s file: %s -> %s", verb, from, to))
		b.reply(ctx, log, out, fmt.Sprintf("✅ %s %s to %s\n⏰ Time: %s", verb, from, to, b.stamp()))
	case errors.Is(err, common.ErrorNotFound):
		b.reply(ctx, log, out, fmt.Sprintf("❌ File %s not found.\nTime: %s", from, b.stamp()))
	case errors.Is(err, common.ErrorAlreadyExists):
		b.reply(ctx, log, out, fmt.Sprintf("⚠️ File %s already exists.\nTime: %s", to, b.stamp()))
	case errors.Is(err, common.ErrorInvalidName):
		b.reply(ctx, log, out, fmt.Sprintf("❌ Invalid file name.\nTime: %s", b.stamp()))
	default:
		log.Error(ctx, cmd+" failed", "from", from, "to", to, "error", err)
		b.reply(ctx, log, out, fmt.Sprintf("❌ Error during %s. Please try again.\nTime: %s", cmd, b.stamp()))
	}
}

// displayName prefers the stored session name over the one on the message.
func (b *Bot) displayName(msg Message) string {
	if s, ok := b.sessions.Get(msg.SenderID); ok && s.DisplayName != "" {
		return s.DisplayName
	}
	return msg.SenderName
}

func (b *Bot) reporter(st *status, label string) progress.Reporter {
	if !st.ok {
		return progress.Nop{}
	}
	return progress.NewMessageReporter(st.edit, label, b.editsPerSecond)
}
