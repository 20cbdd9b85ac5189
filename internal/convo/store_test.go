package convo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxai-labs/oceep/internal/types"
)

func userMsg(content string) types.Message {
	return types.Message{ID: "u-" + content, Role: types.RoleUser, Content: content}
}

func TestCreateAndActive(t *testing.T) {
	s := New()
	a := s.Create("bot-1")
	b := s.Create("bot-2")

	assert.Equal(t, b.ID, s.ActiveID(), "newest session becomes active")

	all := s.Sessions()
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[0].ID, "sessions are newest first")
	assert.Equal(t, a.ID, all[1].ID)
}

func TestTitleDerivation(t *testing.T) {
	t.Run("short message used verbatim", func(t *testing.T) {
		s := New()
		sess := s.Create("bot-1")
		s.Append(sess.ID, userMsg("hello there"))

		got, ok := s.Session(sess.ID)
		require.True(t, ok)
		assert.Equal(t, "hello there", got.Title)
	})

	t.Run("long message truncated with ellipsis", func(t *testing.T) {
		s := New()
		sess := s.Create("bot-1")
		long := strings.Repeat("abcde", 10) // 50 runes
		s.Append(sess.ID, userMsg(long))

		got, _ := s.Session(sess.ID)
		assert.Equal(t, long[:30]+"...", got.Title)
		assert.Len(t, []rune(got.Title), 33)
	})

	t.Run("exactly thirty runes gets no ellipsis", func(t *testing.T) {
		s := New()
		sess := s.Create("bot-1")
		exact := strings.Repeat("x", 30)
		s.Append(sess.ID, userMsg(exact))

		got, _ := s.Session(sess.ID)
		assert.Equal(t, exact, got.Title)
	})

	t.Run("multibyte runes counted as characters", func(t *testing.T) {
		s := New()
		sess := s.Create("bot-1")
		viet := strings.Repeat("đếm ", 10) // 40 runes
		s.Append(sess.ID, userMsg(viet))

		got, _ := s.Session(sess.ID)
		assert.Equal(t, string([]rune(viet)[:30])+"...", got.Title)
	})

	t.Run("attachment-only message uses placeholder", func(t *testing.T) {
		s := New()
		sess := s.Create("bot-1")
		s.Append(sess.ID, types.Message{
			ID: "u1", Role: types.RoleUser,
			Attachments: []string{"data:image/png;base64,AAAA"},
		})

		got, _ := s.Session(sess.ID)
		assert.Equal(t, "[Attachment]", got.Title)
	})

	t.Run("derived title not overwritten by later messages", func(t *testing.T) {
		s := New()
		sess := s.Create("bot-1")
		s.Append(sess.ID, userMsg("first"))
		s.Append(sess.ID, userMsg("second"))

		got, _ := s.Session(sess.ID)
		assert.Equal(t, "first", got.Title)
	})

	t.Run("user rename survives appends", func(t *testing.T) {
		s := New()
		sess := s.Create("bot-1")
		require.True(t, s.Rename(sess.ID, "my chat"))
		s.Append(sess.ID, userMsg("whatever"))

		got, _ := s.Session(sess.ID)
		assert.Equal(t, "my chat", got.Title)
	})
}

func TestPatch(t *testing.T) {
	s := New()
	sess := s.Create("bot-1")
	s.Append(sess.ID, types.Message{ID: "m1", Role: types.RoleModel, IsStreaming: true})

	t.Run("applies mutation", func(t *testing.T) {
		ok := s.Patch(sess.ID, "m1", func(m *types.Message) {
			m.Content = "done"
			m.IsStreaming = false
		})
		require.True(t, ok)

		got, _ := s.Session(sess.ID)
		assert.Equal(t, "done", got.Messages[0].Content)
		assert.False(t, got.Messages[0].IsStreaming)
	})

	t.Run("missing message is a no-op", func(t *testing.T) {
		assert.False(t, s.Patch(sess.ID, "nope", func(m *types.Message) { m.Content = "x" }))
		assert.False(t, s.Patch("nope", "m1", func(m *types.Message) { m.Content = "x" }))

		got, _ := s.Session(sess.ID)
		assert.Equal(t, "done", got.Messages[0].Content)
	})
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s := New()
	sess := s.Create("bot-1")
	s.Append(sess.ID, userMsg("hello"))

	snap, _ := s.Session(sess.ID)
	s.Patch(sess.ID, snap.Messages[0].ID, func(m *types.Message) { m.Content = "mutated" })

	assert.Equal(t, "hello", snap.Messages[0].Content, "earlier snapshot must not observe later writes")
}

func TestTruncate(t *testing.T) {
	s := New()
	sess := s.Create("bot-1")
	s.Append(sess.ID, userMsg("one"), userMsg("two"), userMsg("three"))

	require.True(t, s.Truncate(sess.ID, 1))
	got, _ := s.Session(sess.ID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "one", got.Messages[0].Content)

	assert.False(t, s.Truncate(sess.ID, 5), "out of range truncate rejected")
}

func TestRemove(t *testing.T) {
	s := New()
	a := s.Create("bot-1")
	b := s.Create("bot-1")

	require.True(t, s.Remove(b.ID))
	assert.Equal(t, a.ID, s.ActiveID(), "removing active falls back to newest remaining")

	require.True(t, s.Remove(a.ID))
	assert.Empty(t, s.ActiveID())
	assert.False(t, s.Remove(a.ID))
}

func TestSetAllKeepsOrder(t *testing.T) {
	s := New()
	s.SetAll([]types.Session{
		{ID: "new", CreatedAt: 200},
		{ID: "old", CreatedAt: 100},
	})

	all := s.Sessions()
	require.Len(t, all, 2)
	assert.Equal(t, "new", all[0].ID)
}
