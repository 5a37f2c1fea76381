package bot

import (
	"fmt"
	"strings"

	"github.com/bradenaw/juniper/xslices"
	"github.com/dmitrijs2005/cloudkeeper/internal/common"
	"github.com/dmitrijs2005/cloudkeeper/internal/storage"
)

const helpText = `📚 Available commands:
/upload - Upload a file 📤
/download - Download a file 📥
/list - List files 📂
/delete - Delete a file 🗑️
/rename <old> <new> - Rename a file ✏️
/move <old> <new> - Move a file 🚚
/copy <src> <dst> - Copy a file 📄
/metadata - Show file info 📝
/cleanup - Remove files older than 30 days 🧹
/stats - Show statistics 📊
/cancel - Abort a pending download or delete ✖️
/help - Show this message ℹ️`

func kb(size int64) string {
	return fmt.Sprintf("%.1f KB", float64(size)/1024)
}

func mb(size int64) string {
	return fmt.Sprintf("%.1f MB", float64(size)/1024/1024)
}

// renderEntries renders one line per entry. withTime adds the modification
// time.
func renderEntries(entries []storage.Entry, withTime bool) string {
	lines := xslices.Map(entries, func(e storage.Entry) string {
		if withTime {
			return fmt.Sprintf("📄 %s (%s, modified %s)", e.Name, kb(e.Size), common.FormatTime(e.ModTime))
		}
		return fmt.Sprintf("📄 %s (%s)", e.Name, kb(e.Size))
	})
	return strings.Join(lines, "\n")
}
