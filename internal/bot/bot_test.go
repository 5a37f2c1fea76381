package bot

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/cloudkeeper/internal/auth"
	"github.com/dmitrijs2005/cloudkeeper/internal/common"
	"github.com/dmitrijs2005/cloudkeeper/internal/conversation"
	"github.com/dmitrijs2005/cloudkeeper/internal/logging"
	"github.com/dmitrijs2005/cloudkeeper/internal/services"
	"github.com/dmitrijs2005/cloudkeeper/internal/session"
	"github.com/dmitrijs2005/cloudkeeper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const password = "cloudstorage1"

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

// fakeResponder records everything the bot sends, in order.
type fakeResponder struct {
	mu       sync.Mutex
	outputs  []string
	edits    int
	files    map[string][]byte
	captions map[string]string
	nextID   int
	sendErr  error
}

func newFakeResponder() *fakeResponder {
	return &fakeResponder{files: map[string][]byte{}, captions: map[string]string{}}
}

func (f *fakeResponder) Send(ctx context.Context, text string) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return MessageRef{}, f.sendErr
	}
	f.nextID++
	f.outputs = append(f.outputs, text)
	return MessageRef{ChatID: 1, MessageID: f.nextID}, nil
}

func (f *fakeResponder) Edit(ctx context.Context, ref MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits++
	f.outputs = append(f.outputs, text)
	return nil
}

func (f *fakeResponder) SendFile(ctx context.Context, name string, r io.Reader, caption string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = b
	f.captions[name] = caption
	return nil
}

func (f *fakeResponder) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.outputs) == 0 {
		return ""
	}
	return f.outputs[len(f.outputs)-1]
}

// spyStorage counts every call that reaches the backend.
type spyStorage struct {
	storage.Storage
	mu    sync.Mutex
	calls int
}

func (s *spyStorage) hit() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *spyStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *spyStorage) List(ctx context.Context) ([]storage.Entry, error) {
	s.hit()
	return s.Storage.List(ctx)
}

func (s *spyStorage) Exists(ctx context.Context, name string) (bool, error) {
	s.hit()
	return s.Storage.Exists(ctx, name)
}

func (s *spyStorage) Stat(ctx context.Context, name string) (storage.Entry, error) {
	s.hit()
	return s.Storage.Stat(ctx, name)
}

func (s *spyStorage) Write(ctx context.Context, name string, r io.Reader) (storage.Entry, error) {
	s.hit()
	return s.Storage.Write(ctx, name, r)
}

func (s *spyStorage) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	s.hit()
	return s.Storage.Read(ctx, name)
}

func (s *spyStorage) Delete(ctx context.Context, name string) error {
	s.hit()
	return s.Storage.Delete(ctx, name)
}

func (s *spyStorage) Rename(ctx context.Context, from, to string) error {
	s.hit()
	return s.Storage.Rename(ctx, from, to)
}

func (s *spyStorage) Copy(ctx context.Context, from, to string) error {
	s.hit()
	return s.Storage.Copy(ctx, from, to)
}

type fixture struct {
	bot      *Bot
	spy      *spyStorage
	local    *storage.LocalStorage
	sessions *session.Registry
	out      *fakeResponder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	spy := &spyStorage{Storage: local}

	v, err := auth.FromPassword(password, bcrypt.MinCost)
	require.NoError(t, err)

	reg := session.NewRegistry(session.WithClock(func() time.Time { return fixedNow }))
	files := services.NewFileService(spy, logging.Discard()).WithClock(func() time.Time { return fixedNow })
	b := New(reg, files, v, logging.Discard(), WithEditRate(0), WithClock(func() time.Time { return fixedNow }))

	return &fixture{bot: b, spy: spy, local: local, sessions: reg, out: newFakeResponder()}
}

func (f *fixture) send(userID int64, text string) string {
	f.bot.Handle(context.Background(), Message{SenderID: userID, SenderName: "alice", Text: text}, f.out)
	return f.out.last()
}

func (f *fixture) attach(userID int64, name, content string) string {
	att := &Attachment{
		Name: name,
		Size: int64(len(content)),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
	f.bot.Handle(context.Background(), Message{SenderID: userID, SenderName: "alice", Attachment: att}, f.out)
	return f.out.last()
}

func (f *fixture) login(t *testing.T, userID int64) {
	t.Helper()
	f.send(userID, "/start")
	reply := f.send(userID, password)
	require.Contains(t, reply, "Password accepted")
}

func (f *fixture) activities(userID int64) []string {
	var out []string
	for _, a := range f.sessions.Activities(userID) {
		out = append(out, a.Description)
	}
	return out
}

func TestBot_UnauthenticatedNeverTouchesStorage(t *testing.T) {
	f := newFixture(t)

	for _, cmd := range []string{"/list", "/metadata", "/download", "/delete", "/stats", "/cleanup", "/upload", "/help", "/rename a b", "/copy a b", "/move a b"} {
		reply := f.send(1, cmd)
		assert.Contains(t, reply, "Please use /start to enter password first", cmd)
	}

	opened := false
	att := &Attachment{Name: "a.txt", Size: 1, Open: func(ctx context.Context) (io.ReadCloser, error) {
		opened = true
		return io.NopCloser(strings.NewReader("x")), nil
	}}
	f.bot.Handle(context.Background(), Message{SenderID: 1, Attachment: att}, f.out)
	assert.Contains(t, f.out.last(), "Please use /start")
	assert.False(t, opened)

	// started but not yet authenticated
	f.send(1, "/start")
	assert.Contains(t, f.send(1, "/list"), "Please use /start")

	assert.Equal(t, 0, f.spy.count())
	_, ok := f.bot.Expecting(1)
	assert.True(t, ok, "still waiting for the password")
}

func TestBot_Authorize(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.bot.authorize(1), common.ErrorUnauthenticated)

	f.send(1, "/start")
	assert.ErrorIs(t, f.bot.authorize(1), common.ErrorUnauthenticated)

	f.login(t, 1)
	assert.NoError(t, f.bot.authorize(1))
	assert.ErrorIs(t, f.bot.authorize(2), common.ErrorUnauthenticated)
}

func TestBot_Authentication(t *testing.T) {
	f := newFixture(t)

	reply := f.send(1, "/start")
	assert.Contains(t, reply, "Welcome to Cloud Storage Bot")
	assert.Contains(t, reply, "Current time (UTC): 2025-03-14 09:26:53")
	assert.Contains(t, reply, "Your username: alice")

	k, ok := f.bot.Expecting(1)
	require.True(t, ok)
	assert.Equal(t, conversation.Authentication, k)

	assert.Contains(t, f.send(1, "wrong"), "Incorrect password")
	assert.Contains(t, f.send(1, "also wrong"), "Incorrect password")
	assert.False(t, f.sessions.IsAuthenticated(1))

	assert.Contains(t, f.send(1, password), "Password accepted")
	assert.True(t, f.sessions.IsAuthenticated(1))
	_, ok = f.bot.Expecting(1)
	assert.False(t, ok)

	assert.Equal(t, []string{"Authentication failed", "Authentication failed", "Authentication successful"}, f.activities(1))

	assert.Contains(t, f.send(1, "/start"), "already authenticated")
	_, ok = f.bot.Expecting(1)
	assert.False(t, ok, "no flow for an authenticated /start")
}

func TestBot_UploadNoOverwrite(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)

	reply := f.attach(1, "a.txt", "X")
	assert.Contains(t, reply, "File uploaded successfully")
	assert.Contains(t, reply, "Name: a.txt")
	assert.Contains(t, reply, "Uploaded by: alice")

	opened := false
	att := &Attachment{Name: "a.txt", Size: 1, Open: func(ctx context.Context) (io.ReadCloser, error) {
		opened = true
		return io.NopCloser(strings.NewReader("Y")), nil
	}}
	f.bot.Handle(context.Background(), Message{SenderID: 1, Attachment: att}, f.out)
	assert.Contains(t, f.out.last(), "File a.txt already exists")
	assert.False(t, opened, "attachment not fetched for a taken name")

	rc, err := f.local.Read(context.Background(), "a.txt")
	require.NoError(t, err)
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "X", string(b))

	assert.Contains(t, f.activities(1), "Uploaded file: a.txt (0.0 KB)")
}

func TestBot_UploadInvalidName(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)

	assert.Contains(t, f.attach(1, "../../etc/passwd", "x"), "is not a valid file name")
}

func TestBot_UploadOverDirectory(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)
	require.NoError(t, os.Mkdir(filepath.Join(f.local.Dir(), "reports"), 0o700))

	reply := f.attach(1, "reports", "x")
	assert.Contains(t, reply, "is not a valid file name")
	assert.NotContains(t, reply, "already exists")
}

func TestBot_UploadFetchFailure(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)

	att := &Attachment{Name: "a.txt", Size: 1, Open: func(ctx context.Context) (io.ReadCloser, error) {
		return nil, errors.New("telegram is down")
	}}
	f.bot.Handle(context.Background(), Message{SenderID: 1, Attachment: att}, f.out)
	assert.Contains(t, f.out.last(), "Error uploading file")
	assert.NotContains(t, f.out.last(), "telegram is down")

	for _, a := range f.activities(1) {
		assert.NotContains(t, a, "Uploaded")
	}
}

func TestBot_DownloadRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)

	payload := "\x00\x01binary\xff"
	f.attach(1, "x.bin", payload)

	reply := f.send(1, "/download")
	assert.Contains(t, reply, "Enter the name of the file you want to download")
	assert.Contains(t, reply, "📄 x.bin")
	k, _ := f.bot.Expecting(1)
	assert.Equal(t, conversation.AwaitingDownloadFilename, k)

	reply = f.send(1, "x.bin")
	assert.Contains(t, reply, "Download complete")
	assert.Equal(t, payload, string(f.out.files["x.bin"]))
	assert.Equal(t, "✅ File downloaded at 2025-03-14 09:26:53", f.out.captions["x.bin"])

	_, ok := f.bot.Expecting(1)
	assert.False(t, ok)
	assert.Contains(t, f.activities(1), "Downloaded file: x.bin")
}

func TestBot_DownloadMissingEndsFlow(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)
	f.attach(1, "a.txt", "a")

	f.send(1, "/download")
	assert.Contains(t, f.send(1, "nope.txt"), "File nope.txt not found")
	_, ok := f.bot.Expecting(1)
	assert.False(t, ok)
}

func TestBot_DeleteMissingLeavesStorageUnchanged(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)
	f.attach(1, "keep.txt", "k")

	f.send(1, "/delete")
	k, _ := f.bot.Expecting(1)
	assert.Equal(t, conversation.AwaitingDeleteFilename, k)

	assert.Contains(t, f.send(1, "nope.txt"), "File nope.txt not found")
	_, ok := f.bot.Expecting(1)
	assert.False(t, ok)

	entries, err := f.local.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].Name)
}

func TestBot_Delete(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)
	f.attach(1, "gone.txt", "g")

	f.send(1, "/delete")
	assert.Contains(t, f.send(1, "gone.txt"), "File gone.txt deleted successfully")
	assert.Contains(t, f.activities(1), "Deleted file: gone.txt")

	ok, err := f.local.Exists(context.Background(), "gone.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBot_LaterFlowReplacesEarlier(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)
	f.attach(1, "f.txt", "content")

	f.send(1, "/delete")
	f.send(1, "/download")

	k, _ := f.bot.Expecting(1)
	assert.Equal(t, conversation.AwaitingDownloadFilename, k)

	f.send(1, "f.txt")
	assert.Equal(t, "content", string(f.out.files["f.txt"]))

	ok, err := f.local.Exists(context.Background(), "f.txt")
	require.NoError(t, err)
	assert.True(t, ok, "file was downloaded, not deleted")
}

func TestBot_EmptyStorageStartsNoFlow(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)

	assert.Contains(t, f.send(1, "/download"), "Storage is empty. No files to download")
	_, ok := f.bot.Expecting(1)
	assert.False(t, ok)

	assert.Contains(t, f.send(1, "/delete"), "Storage is empty. No files to delete")
	_, ok = f.bot.Expecting(1)
	assert.False(t, ok)

	assert.Contains(t, f.send(1, "x.txt"), "I don't understand")
}

func TestBot_Stats(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)
	f.send(2, "/start")

	f.attach(1, "a", strings.Repeat("a", 100))
	f.attach(1, "b", strings.Repeat("b", 200))
	f.attach(1, "c", strings.Repeat("c", 300))

	reply := f.send(1, "/stats")
	assert.Contains(t, reply, "Total files: 3")
	assert.Contains(t, reply, "(600 bytes)")
	assert.Contains(t, reply, "Active users: 2")
	assert.Contains(t, reply, "Last activity: 2025-03-14 09:26:53")
	assert.Contains(t, f.activities(1), "Viewed statistics")
}

func TestBot_ListAndMetadata(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)

	assert.Contains(t, f.send(1, "/list"), "Storage is empty")

	f.attach(1, "report.pdf", strings.Repeat("r", 2048))
	mod := time.Date(2024, 12, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(f.local.Dir(), "report.pdf"), mod, mod))

	reply := f.send(1, "/list")
	assert.Contains(t, reply, "📄 report.pdf (2.0 KB)")
	assert.NotContains(t, reply, "modified")

	reply = f.send(1, "/metadata")
	assert.Contains(t, reply, "📄 report.pdf (2.0 KB, modified 2024-12-01 08:00:00)")

	assert.Contains(t, f.activities(1), "Listed files")
	assert.Contains(t, f.activities(1), "Viewed metadata")
}

func TestBot_Cleanup(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)

	f.attach(1, "old.txt", "old")
	f.attach(1, "new.txt", "new")
	old := fixedNow.Add(-services.RetentionPeriod - time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(f.local.Dir(), "old.txt"), old, old))

	reply := f.send(1, "/cleanup")
	assert.Contains(t, reply, "Cleanup complete")
	assert.Contains(t, reply, "Removed 1 old files")
	assert.Contains(t, f.activities(1), "Cleanup: removed 1 files (0.0 MB)")

	entries, err := f.local.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new.txt", entries[0].Name)
}

func TestBot_RenameMoveCopy(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)
	f.attach(1, "a.txt", "A")

	assert.Contains(t, f.send(1, "/rename a.txt"), "Usage: /rename")
	assert.Contains(t, f.send(1, "/copy a.txt b.txt"), "Copied a.txt to b.txt")
	assert.Contains(t, f.send(1, "/rename a.txt b.txt"), "File b.txt already exists")
	assert.Contains(t, f.send(1, "/move a.txt c.txt"), "Moved a.txt to c.txt")
	assert.Contains(t, f.send(1, "/rename nope.txt d.txt"), "File nope.txt not found")
	assert.Contains(t, f.send(1, "/rename c.txt .hidden"), "Invalid file name")

	entries, err := f.local.List(context.Background())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"b.txt", "c.txt"}, names)
	assert.Contains(t, f.activities(1), "Moved file: a.txt -> c.txt")
}

func TestBot_Cancel(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)
	f.attach(1, "a.txt", "A")

	assert.Contains(t, f.send(1, "/cancel"), "Nothing to cancel")

	f.send(1, "/delete")
	assert.Contains(t, f.send(1, "/cancel"), "Operation cancelled")
	_, ok := f.bot.Expecting(1)
	assert.False(t, ok)

	assert.Contains(t, f.send(1, "a.txt"), "I don't understand")
}

func TestBot_CancelKeepsAuthenticationFlow(t *testing.T) {
	f := newFixture(t)
	f.send(1, "/start")

	assert.Contains(t, f.send(1, "/cancel"), "Nothing to cancel")
	k, ok := f.bot.Expecting(1)
	require.True(t, ok)
	assert.Equal(t, conversation.Authentication, k)
}

func TestBot_CommandsAreNotConsumedByFlows(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)
	f.attach(1, "a.txt", "A")

	f.send(1, "/delete")
	assert.Contains(t, f.send(1, "/list"), "📄 a.txt")

	k, ok := f.bot.Expecting(1)
	require.True(t, ok)
	assert.Equal(t, conversation.AwaitingDeleteFilename, k)
}

func TestBot_UnknownCommand(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.send(1, "/frobnicate"), "Unknown command /frobnicate")
}

func TestBot_HelpWithBotSuffix(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)

	reply := f.send(1, "/help@CloudKeeperBot")
	assert.Contains(t, reply, "Available commands")
	assert.Contains(t, reply, "/cleanup")
	assert.Contains(t, reply, "Your username: alice")
}

func TestBot_RecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)

	att := &Attachment{Name: "boom.txt", Size: 1, Open: func(ctx context.Context) (io.ReadCloser, error) {
		panic("nil pointer somewhere")
	}}
	require.NotPanics(t, func() {
		f.bot.Handle(context.Background(), Message{SenderID: 1, Attachment: att}, f.out)
	})
	assert.Contains(t, f.out.last(), "Something went wrong")
	assert.NotContains(t, f.out.last(), "nil pointer")
}

func TestBot_SendFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)
	f.out.sendErr = errors.New("flood wait")

	require.NotPanics(t, func() { f.attach(1, "a.txt", "A") })

	ok, err := f.local.Exists(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.True(t, ok, "upload completes even when status messages fail")
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		cmd  string
		args []string
		ok   bool
	}{
		{in: "/help", cmd: "help", args: []string{}, ok: true},
		{in: "/help@CloudKeeperBot", cmd: "help", args: []string{}, ok: true},
		{in: "/Rename a.txt b.txt", cmd: "rename", args: []string{"a.txt", "b.txt"}, ok: true},
		{in: "/", cmd: "", args: []string{}, ok: true},
		{in: "hello", ok: false},
		{in: "", ok: false},
	}

	for _, tt := range tests {
		cmd, args, ok := parseCommand(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.cmd, cmd, tt.in)
			assert.Equal(t, tt.args, args, tt.in)
		}
	}
}
