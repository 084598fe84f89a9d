package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanhop/pkg/protocol"
)

func file(name, data string) protocol.Envelope {
	return protocol.NewFile(name, []byte(data))
}

func TestCollectionGroupsBySender(t *testing.T) {
	c := NewCollections(0)
	id1 := c.AddFile("Banana/Carrot/Date", file("a.txt", "a"))
	id2 := c.AddFile("Banana/Carrot/Date", file("b.txt", "b"))
	id3 := c.AddFile("Banana/Carrot/Date", file("c.txt", "c"))
	assert.Equal(t, id1, id2)
	assert.Equal(t, id1, id3)

	other := c.AddFile("Apple/Bacon/Cheese", file("d.txt", "d"))
	assert.NotEqual(t, id1, other)

	s, ok := c.Get(id1)
	require.True(t, ok)
	assert.Len(t, s.Files, 3)
	assert.True(t, s.Open)
	assert.Equal(t, "Banana/Carrot/Date", s.Sender)
	assert.Len(t, c.List(), 2)

	open, ok := c.OpenFor("Apple/Bacon/Cheese")
	assert.True(t, ok)
	assert.Equal(t, other, open)
}

func TestCollectionCloseOpensNew(t *testing.T) {
	c := NewCollections(0)
	id := c.AddFile("x", file("a", "1"))
	require.NoError(t, c.CloseSession(id))
	require.NoError(t, c.CloseSession(id))
	assert.ErrorIs(t, c.CloseSession("nope"), ErrUnknownSession)

	s, _ := c.Get(id)
	assert.False(t, s.Open)
	assert.False(t, s.EndedAt.IsZero())
	_, ok := c.OpenFor("x")
	assert.False(t, ok)

	next := c.AddFile("x", file("b", "2"))
	assert.NotEqual(t, id, next)
	s, _ = c.Get(id)
	assert.Len(t, s.Files, 1)
}

func TestCollectionIdleTimeout(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewCollections(time.Minute)
	c.now = func() time.Time { return now }

	id := c.AddFile("x", file("a", "1"))
	now = now.Add(30 * time.Second)
	assert.Equal(t, id, c.AddFile("x", file("b", "2")))
	now = now.Add(2 * time.Minute)
	next := c.AddFile("x", file("c", "3"))
	assert.NotEqual(t, id, next)

	old, _ := c.Get(id)
	assert.False(t, old.Open)
	assert.Len(t, old.Files, 2)
}

func TestGetReturnsCopy(t *testing.T) {
	c := NewCollections(0)
	id := c.AddFile("x", file("a", "1"))
	s, _ := c.Get(id)
	s.Files = append(s.Files, file("b", "2"))
	s2, _ := c.Get(id)
	assert.Len(t, s2.Files, 1)
}

func TestMaterializeRenamesCollisions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("existing"), 0o644))

	c := NewCollections(0)
	id := c.AddFile("x", file("report.pdf", "one"))
	c.AddFile("x", file("report.pdf", "two"))
	c.AddFile("x", file("../../etc/notes", "three"))

	n, err := c.MaterializeToDirectory(id, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for name, want := range map[string]string{
		"report.pdf":     "existing",
		"report (1).pdf": "one",
		"report (2).pdf": "two",
		"notes":          "three",
	} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, want, string(b), name)
	}
}

func TestMaterializePartialFailure(t *testing.T) {
	dir := t.TempDir()
	c := NewCollections(0)
	id := c.AddFile("x", file("good.txt", "ok"))
	c.AddFile("x", file("bad\x00name.txt", "nope"))
	c.AddFile("x", file("also-good.txt", "ok"))

	n, err := c.MaterializeToDirectory(id, dir)
	assert.Equal(t, 2, n)
	var me *MaterializeError
	require.True(t, errors.As(err, &me))
	require.Len(t, me.Failures, 1)
	assert.Equal(t, "bad\x00name.txt", me.Failures[0].Name)

	_, err = os.Stat(filepath.Join(dir, "also-good.txt"))
	assert.NoError(t, err)

	_, err = c.MaterializeToDirectory("nope", dir)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestCollectionWireIDStartsNewSession(t *testing.T) {
	c := NewCollections(0)
	var closed []CollectionSession
	c.OnClose(func(s CollectionSession) { closed = append(closed, s) })

	a := c.AddFile("x", protocol.NewCollectionFile("w1", "a", []byte("1")))
	assert.Equal(t, a, c.AddFile("x", protocol.NewCollectionFile("w1", "b", []byte("2"))))
	assert.Equal(t, a, c.AddFile("x", file("plain", "3")))

	b := c.AddFile("x", protocol.NewCollectionFile("w2", "c", []byte("4")))
	assert.NotEqual(t, a, b)
	require.Len(t, closed, 1)
	assert.Equal(t, a, closed[0].ID)
	assert.Len(t, closed[0].Files, 3)

	require.NoError(t, c.CloseSession(b))
	require.NoError(t, c.CloseSession(b))
	require.Len(t, closed, 2)
	assert.Equal(t, "w2", closed[1].WireID)
}

func heldPayload(c *Collections) int {
	total := 0
	for _, s := range c.List() {
		for _, f := range s.Files {
			total += len(f.Payload)
		}
	}
	return total
}

func TestMaterializedSessionsReleasePayloads(t *testing.T) {
	dir := t.TempDir()
	c := NewCollections(0)
	c.OnClose(func(s CollectionSession) {
		n, err := Materialize(s, filepath.Join(dir, s.ID))
		if err == nil && n == len(s.Files) {
			c.Remove(s.ID)
		}
	})
	payload := string(make([]byte, 64<<10))
	for i := 0; i < 50; i++ {
		id := c.AddFile("x", file("blob.bin", payload))
		require.NoError(t, c.CloseSession(id))
	}
	assert.Empty(t, c.List())
	assert.Zero(t, heldPayload(c))

	written, err := filepath.Glob(filepath.Join(dir, "*", "blob.bin"))
	require.NoError(t, err)
	assert.Len(t, written, 50)
}

func TestClosedSessionsAreCapped(t *testing.T) {
	c := NewCollections(0)
	c.KeepClosed(3)
	var ids []string
	for i := 0; i < 10; i++ {
		id := c.AddFile("x", file("a", "1"))
		require.NoError(t, c.CloseSession(id))
		ids = append(ids, id)
	}
	open := c.AddFile("x", file("b", "2"))

	sessions := c.List()
	require.Len(t, sessions, 4)
	for _, id := range ids[:7] {
		_, ok := c.Get(id)
		assert.False(t, ok)
	}
	for _, id := range append(ids[7:], open) {
		_, ok := c.Get(id)
		assert.True(t, ok)
	}
}

func TestRemoveOpenSession(t *testing.T) {
	c := NewCollections(0)
	closes := 0
	c.OnClose(func(CollectionSession) { closes++ })
	id := c.AddFile("x", file("a", "1"))
	assert.True(t, c.Remove(id))
	assert.False(t, c.Remove(id))
	_, open := c.OpenFor("x")
	assert.False(t, open)
	assert.NotEqual(t, id, c.AddFile("x", file("b", "2")))
	assert.Zero(t, closes)
}

func TestCloseIdleSweepsStaleSessions(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewCollections(time.Minute)
	c.now = func() time.Time { return now }
	var closed []string
	c.OnClose(func(s CollectionSession) { closed = append(closed, s.ID) })

	stale := c.AddFile("x", file("a", "1"))
	now = now.Add(50 * time.Second)
	fresh := c.AddFile("y", file("b", "2"))
	now = now.Add(20 * time.Second)

	assert.Equal(t, 1, c.CloseIdle())
	assert.Equal(t, []string{stale}, closed)
	_, open := c.OpenFor("y")
	assert.True(t, open)
	s, _ := c.Get(fresh)
	assert.True(t, s.Open)

	assert.Zero(t, NewCollections(0).CloseIdle())
}
