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

// checkPassword is the Authentication step. A wrong password keeps the
// user in the flow; there is no attempt limit.
func (b *Bot) checkPassword(ctx context.Context, userID int64, in flowInput) conversation.Result {
	if !b.verifier.Verify(in.msg.Text) {
		b.sessions.RecordActivity(userID, "Authentication failed")
		in.log.Info(ctx, "wrong password")
		b.reply(ctx, in.log, in.out, "❌ Incorrect password. Please try again.")
		return conversation.Continue(conversation.Authentication)
	}

	b.sessions.Authenticate(userID)
	in.log.Info(ctx, "user authenticated")
	b.reply(ctx, in.log, in.out, fmt.Sprintf(
		"✅ Password accepted! Use /help to see available commands.\nCurrent time (UTC): %s", b.stamp()))
	return conversation.End()
}

func (b *Bot) beginDownload(ctx context.Context, log logging.Logger, _ []string, msg Message, out Responder) {
	b.beginFileFlow(ctx, log, msg, out, conversation.AwaitingDownloadFilename,
		"📥 Enter the name of the file you want to download:", "download")
}

func (b *Bot) beginDelete(ctx context.Context, log logging.Logger, _ []string, msg Message, out Responder) {
	b.beginFileFlow(ctx, log, msg, out, conversation.AwaitingDeleteFilename,
		"🗑️ Enter the name of the file to delete:", "delete")
}

// beginFileFlow shows the available files and waits for a name. With
// nothing stored no flow is started, so the next message is handled as a
// fresh command.
func (b *Bot) beginFileFlow(ctx context.Context, log logging.Logger, msg Message, out Responder,
	kind conversation.Kind, prompt, verb string) {
	entries, err := b.files.List(ctx)
	if err != nil {
		log.Error(ctx, "list failed", "error", err)
		b.reply(ctx, log, out, fmt.Sprintf("❌ Error reading storage.\nTime: %s", b.stamp()))
		return
	}

	if len(entries) == 0 {
		b.reply(ctx, log, out, fmt.Sprintf("📂 Storage is empty. No files to %s.\nCurrent time (UTC): %s", verb, b.stamp()))
		return
	}

	b.flows.Begin(msg.SenderID, kind)
	b.sessions.Touch(msg.SenderID)

	b.reply(ctx, log, out, fmt.Sprintf("%s\n\nAvailable files:\n%s\n\nCurrent time (UTC): %s\nSend /cancel to abort.",
		prompt, renderEntries(entries, false), b.stamp()))
}

// downloadFile is the AwaitingDownloadFilename step. The flow ends whatever
// the outcome.
func (b *Bot) downloadFile(ctx context.Context, userID int64, in flowInput) conversation.Result {
	name := in.msg.Text

	rc, entry, err := b.files.Open(ctx, name)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrorInvalidName) {
			b.reply(ctx, in.log, in.out, fmt.Sprintf("❌ File %s not found.\nTime: %s", name, b.stamp()))
		} else {
			in.log.Error(ctx, "open for download failed", "name", name, "error", err)
			b.reply(ctx, in.log, in.out, fmt.Sprintf("❌ Error downloading file. Please try again.\nTime: %s", b.stamp()))
		}
		return conversation.End()
	}
	defer rc.Close()

	st := b.newStatus(ctx, in.log, in.out, fmt.Sprintf("📤 Sending file: %s\n📦 Size: %s\n⏰ Time: %s",
		entry.Name, kb(entry.Size), b.stamp()))

	pr := progress.NewReader(ctx, rc, entry.Size, b.reporter(st, "📤 Sending "+entry.Name+"..."), in.log)
	if err := in.out.SendFile(ctx, entry.Name, pr, fmt.Sprintf("✅ File downloaded at %s", b.stamp())); err != nil {
		in.log.Error(ctx, "send file failed", "name", entry.Name, "error", err)
		st.set(ctx, fmt.Sprintf("❌ Error downloading file. Please try again.\nTime: %s", b.stamp()))
		return conversation.End()
	}

	b.sessions.RecordActivity(userID, "Downloaded file: "+entry.Name)
	in.log.Info(ctx, "file downloaded", "name", entry.Name, "size", entry.Size)
	st.set(ctx, fmt.Sprintf("✅ Download complete!\n📄 %s\n⏰ %s\n%s",
		entry.Name, b.stamp(), progress.Bar(100, progress.DefaultWidth)))

	return conversation.End()
}

// deleteFile is the AwaitingDeleteFilename step. The flow ends whatever the
// outcome.
func (b *Bot) deleteFile(ctx context.Context, userID int64, in flowInput) conversation.Result {
	name := in.msg.Text

	err := b.files.Delete(ctx, name)
	switch {
	case err == nil:
		b.sessions.RecordActivity(userID, "Deleted file: "+name)
		b.reply(ctx, in.log, in.out, fmt.Sprintf("✅ File %s deleted successfully.\n⏰ Time: %s", name, b.stamp()))
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrorInvalidName):
		b.reply(ctx, in.log, in.out, fmt.Sprintf("❌ File %s not found.\nTime: %s", name, b.stamp()))
	default:
		in.log.Error(ctx, "delete failed", "name", name, "error", err)
		b.reply(ctx, in.log, in.out, fmt.Sprintf("❌ Error deleting file.\nTime: %s", b.stamp()))
	}

	return conversation.End()
}
