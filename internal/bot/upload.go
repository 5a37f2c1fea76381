package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cloudkeeper/internal/common"
	"github.com/dmitrijs2005/cloudkeeper/internal/logging"
)

// upload stores an attachment. Name collisions are rejected before the
// attachment is fetched.
func (b *Bot) upload(ctx context.Context, log logging.Logger, msg Message, out Responder) {
	if err := b.authorize(msg.SenderID); err != nil {
		log.Info(ctx, "upload rejected", "error", err)
		b.reply(ctx, log, out, "❌ Please use /start to enter password first.")
		return
	}

	att := msg.Attachment
	exists, err := b.files.Exists(ctx, att.Name)
	switch {
	case errors.Is(err, common.ErrorInvalidName):
		b.reply(ctx, log, out, b.invalidNameText(att.Name))
		return
	case err != nil:
		log.Error(ctx, "upload check failed", "name", att.Name, "error", err)
		b.reply(ctx, log, out, b.uploadFailedText())
		return
	case exists:
		b.reply(ctx, log, out, b.alreadyExistsText(att.Name))
		return
	}

	st := b.newStatus(ctx, log, out, fmt.Sprintf("📤 Uploading %s...", att.Name))

	rc, err := att.Open(ctx)
	if err != nil {
		log.Error(ctx, "fetch attachment failed", "name", att.Name, "error", err)
		st.set(ctx, b.uploadFailedText())
		return
	}
	defer rc.Close()

	entry, err := b.files.Upload(ctx, att.Name, rc, att.Size, b.reporter(st, fmt.Sprintf("📤 Uploading %s...", att.Name)))
	switch {
	case err == nil:
	case errors.Is(err, common.ErrorAlreadyExists):
		st.set(ctx, b.alreadyExistsText(att.Name))
		return
	case errors.Is(err, common.ErrorInvalidName):
		st.set(ctx, b.invalidNameText(att.Name))
		return
	default:
		log.Error(ctx, "upload failed", "name", att.Name, "error", err)
		st.set(ctx, b.uploadFailedText())
		return
	}

	b.sessions.RecordActivity(msg.SenderID, fmt.Sprintf("Uploaded file: %s (%s)", entry.Name, kb(entry.Size)))
	st.set(ctx, fmt.Sprintf("✅ File uploaded successfully!\n📄 Name: %s\n📦 Size: %s\n⏰ Time: %s\n👤 Uploaded by: %s",
		entry.Name, kb(entry.Size), b.stamp(), b.displayName(msg)))
}

func (b *Bot) alreadyExistsText(name string) string {
	return fmt.Sprintf("⚠️ File %s already exists.\nPlease rename the file or delete the existing one.\nCurrent time (UTC): %s",
		name, b.stamp())
}

func (b *Bot) invalidNameText(name string) string {
	return fmt.Sprintf("❌ %q is not a valid file name.\nTime: %s", name, b.stamp())
}

func (b *Bot) uploadFailedText() string {
	return fmt.Sprintf("❌ Error uploading file. Please try again.\nTime: %s", b.stamp())
}
