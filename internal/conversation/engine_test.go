package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	kind Kind
	in   string
}

func newTestEngine(calls *[]call) *Engine[string] {
	e := NewEngine[string]()
	record := func(k Kind, res func(string) Result) Step[string] {
		return func(ctx context.Context, userID int64, in string) Result {
			*calls = append(*calls, call{kind: k, in: in})
			return res(in)
		}
	}

	e.Register(Authentication, record(Authentication, func(in string) Result {
		if in == "secret" {
			return End()
		}
		return Continue(Authentication)
	}))
	e.Register(AwaitingDeleteFilename, record(AwaitingDeleteFilename, func(string) Result { return End() }))
	e.Register(AwaitingDownloadFilename, record(AwaitingDownloadFilename, func(string) Result { return End() }))
	return e
}

func TestEngine_NoActiveFlow(t *testing.T) {
	var calls []call
	e := newTestEngine(&calls)

	_, ok := e.ConsumeIfActive(context.Background(), 1, "hello")
	assert.False(t, ok)
	assert.Empty(t, calls)
}

func TestEngine_AuthenticationRetries(t *testing.T) {
	ctx := context.Background()
	var calls []call
	e := newTestEngine(&calls)
	e.Begin(1, Authentication)

	for _, wrong := range []string{"a", "b", "c"} {
		res, ok := e.ConsumeIfActive(ctx, 1, wrong)
		require.True(t, ok)
		assert.False(t, res.Ended())
		assert.Equal(t, Authentication, res.Next())
	}

	res, ok := e.ConsumeIfActive(ctx, 1, "secret")
	require.True(t, ok)
	assert.True(t, res.Ended())

	_, active := e.Active(1)
	assert.False(t, active)
	assert.Len(t, calls, 4)
}

func TestEngine_SingleSlot(t *testing.T) {
	ctx := context.Background()
	var calls []call
	e := newTestEngine(&calls)

	e.Begin(1, AwaitingDeleteFilename)
	e.Begin(1, AwaitingDownloadFilename)

	k, ok := e.Active(1)
	require.True(t, ok)
	assert.Equal(t, AwaitingDownloadFilename, k)

	_, ok = e.ConsumeIfActive(ctx, 1, "file.txt")
	require.True(t, ok)
	assert.Equal(t, []call{{kind: AwaitingDownloadFilename, in: "file.txt"}}, calls)

	_, ok = e.ConsumeIfActive(ctx, 1, "again")
	assert.False(t, ok, "flow ended after one input")
}

func TestEngine_UsersAreIndependent(t *testing.T) {
	var calls []call
	e := newTestEngine(&calls)

	e.Begin(1, AwaitingDeleteFilename)
	e.Begin(2, Authentication)

	k1, _ := e.Active(1)
	k2, _ := e.Active(2)
	assert.Equal(t, AwaitingDeleteFilename, k1)
	assert.Equal(t, Authentication, k2)
}

func TestEngine_Cancel(t *testing.T) {
	e := NewEngine[string]()

	assert.False(t, e.Cancel(1))

	e.Begin(1, Authentication)
	assert.False(t, e.Cancel(1, AwaitingDeleteFilename, AwaitingDownloadFilename))
	_, ok := e.Active(1)
	assert.True(t, ok)

	e.Begin(1, AwaitingDeleteFilename)
	assert.True(t, e.Cancel(1, AwaitingDeleteFilename, AwaitingDownloadFilename))
	_, ok = e.Active(1)
	assert.False(t, ok)

	e.Begin(1, Authentication)
	assert.True(t, e.Cancel(1))
}

func TestEngine_StepMayStartAnotherFlow(t *testing.T) {
	e := NewEngine[string]()
	e.Register(AwaitingDeleteFilename, func(ctx context.Context, userID int64, in string) Result {
		e.Begin(userID, AwaitingDownloadFilename)
		return End()
	})

	e.Begin(1, AwaitingDeleteFilename)
	_, ok := e.ConsumeIfActive(context.Background(), 1, "x")
	require.True(t, ok)

	k, ok := e.Active(1)
	require.True(t, ok)
	assert.Equal(t, AwaitingDownloadFilename, k)
}

func TestEngine_UnregisteredKindIsCleared(t *testing.T) {
	e := NewEngine[string]()
	e.Begin(1, AwaitingDeleteFilename)

	_, ok := e.ConsumeIfActive(context.Background(), 1, "x")
	assert.False(t, ok)

	_, active := e.Active(1)
	assert.False(t, active)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "authentication", Authentication.String())
	assert.Equal(t, "awaiting_delete_filename", AwaitingDeleteFilename.String())
	assert.Equal(t, "awaiting_download_filename", AwaitingDownloadFilename.String())
	assert.Equal(t, "none", None.String())
}
