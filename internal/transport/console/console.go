// Package console runs the bot as a local read–eval–print loop: each input
// line is a chat message from a single local user. It is meant for trying the
// bot out and for operating on a storage directory without Telegram.
//
// Besides plain text and /commands the loop understands:
//
//	:attach <path>   send a local file as an attachment (uploads it)
//	:quit | :exit    leave
//
// While the bot waits for the password and stdin is a terminal, input is
// read without echo.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmitrijs2005/cloudkeeper/internal/bot"
	"github.com/dmitrijs2005/cloudkeeper/internal/conversation"
	"github.com/dmitrijs2005/cloudkeeper/internal/logging"
	"golang.org/x/term"
)

// readPassword and isTerminal are test seams for golang.org/x/term.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// LocalUserID is the sender ID of every console message.
const LocalUserID int64 = 1

// Bot is what the console drives.
type Bot interface {
	Handle(ctx context.Context, msg bot.Message, out bot.Responder)
	Expecting(userID int64) (conversation.Kind, bool)
}

type Console struct {
	bot      Bot
	in       *bufio.Reader
	out      io.Writer
	fd       int
	userName string
	resp     *responder
	log      logging.Logger
}

// New builds a console reading from in and writing to out. Downloaded files
// are written to downloadDir.
func New(b Bot, in io.Reader, out io.Writer, downloadDir, userName string, log logging.Logger) *Console {
	fd := -1
	if f, ok := in.(*os.File); ok {
		fd = int(f.Fd())
	}

	return &Console{
		bot:      b,
		in:       bufio.NewReader(in),
		out:      out,
		fd:       fd,
		userName: userName,
		resp:     &responder{out: out, dir: downloadDir},
		log:      log,
	}
}

// Run reads lines until EOF, :quit or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, "CloudKeeper console. Type /start to begin, :quit to leave.")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fmt.Fprint(c.out, "ck> ")
		line, err := c.nextLine(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			fmt.Fprintln(c.out)
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(c.out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		if line == "" {
			continue
		}

		msg := bot.Message{SenderID: LocalUserID, SenderName: c.userName, Text: line}

		switch {
		case line == ":quit" || line == ":exit":
			fmt.Fprintln(c.out, "Bye!")
			return nil

		case strings.HasPrefix(line, ":attach "):
			att, err := attachFile(strings.TrimSpace(strings.TrimPrefix(line, ":attach ")))
			if err != nil {
				fmt.Fprintln(c.out, "Cannot attach:", err)
				continue
			}
			msg.Text = ""
			msg.Attachment = att

		case strings.HasPrefix(line, ":"):
			fmt.Fprintln(c.out, "Unknown directive:", line)
			continue
		}

		c.log.Debug(ctx, "console input", "attachment", msg.Attachment != nil)
		c.bot.Handle(ctx, msg, c.resp)
	}
}

// nextLine waits for the next input line or for ctx to end. A blocked
// terminal read cannot be interrupted, so it is left behind on cancellation;
// the process is about to exit anyway.
func (c *Console) nextLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		line, err := c.readLine()
		ch <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.line, r.err
	}
}

// readLine reads one line, without echo when a password is expected on a
// terminal.
func (c *Console) readLine() (string, error) {
	if k, ok := c.bot.Expecting(LocalUserID); ok && k == conversation.Authentication && c.fd >= 0 && isTerminal(c.fd) {
		pw, err := readPassword(c.fd)
		fmt.Fprintln(c.out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}

	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func attachFile(path string) (*bot.Attachment, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	return &bot.Attachment{
		Name: filepath.Base(path),
		Size: fi.Size(),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// responder prints replies and saves sent files into dir.
type responder struct {
	mu   sync.Mutex
	out  io.Writer
	dir  string
	next int
}

func (r *responder) Send(ctx context.Context, text string) (bot.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	if _, err := fmt.Fprintln(r.out, text); err != nil {
		return bot.MessageRef{}, err
	}
	return bot.MessageRef{MessageID: r.next}, nil
}

func (r *responder) Edit(ctx context.Context, ref bot.MessageRef, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := fmt.Fprintf(r.out, "[#%d] %s\n", ref.MessageID, text)
	return err
}

// SendFile refuses to overwrite an existing local file.
func (r *responder) SendFile(ctx context.Context, name string, rd io.Reader, caption string) error {
	path := filepath.Join(r.dir, filepath.Base(name))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := io.Copy(f, rd); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = fmt.Fprintf(r.out, "📎 %s saved to %s\n", caption, path)
	return err
}
