package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-service/internal/models"
)

func pendingMsg(tempID, author, content string, at time.Time) *models.Message {
	return &models.Message{
		ID: tempID, TempID: tempID, RoomID: "r1", AuthorID: author,
		Kind: models.KindText, Content: content, CreatedAt: at,
	}
}

func confirmed(id, tempID, author, content string) *models.Message {
	return &models.Message{
		ID: id, TempID: tempID, RoomID: "r1", AuthorID: author,
		Kind: models.KindText, Content: content, CreatedAt: time.Now(),
	}
}

func TestConfirmationReplacesInPlace(t *testing.T) {
	tl := New("r1")
	tl.AppendLocal(pendingMsg("tmp1", "alice", "hello", time.Now()))
	tl.ApplyMessage(confirmed("m-before", "", "bob", "earlier"))

	// the pending entry keeps its slot when the server confirms it
	pos, ok := tl.PositionOf("tmp1")
	require.True(t, ok)

	tl.ApplyMessage(confirmed("m1", "tmp1", "alice", "hello"))

	got, ok := tl.PositionOf("m1")
	require.True(t, ok)
	assert.Equal(t, pos, got)
	_, stillThere := tl.PositionOf("tmp1")
	assert.False(t, stillThere)
	assert.Equal(t, 2, tl.Len())
}

func TestDuplicateServerIDIgnored(t *testing.T) {
	tl := New("r1")
	tl.ApplyMessage(confirmed("m1", "", "alice", "hello"))
	tl.ApplyMessage(confirmed("m1", "", "alice", "hello"))
	assert.Equal(t, 1, tl.Len())
}

func TestHeuristicMatchWithoutTempID(t *testing.T) {
	tl := New("r1")
	base := time.Now()
	tl.now = func() time.Time { return base }

	tl.AppendLocal(pendingMsg("tmp1", "alice", "ping", base))

	// same author, exact text, no tempId (e.g. another session of this user)
	tl.ApplyMessage(&models.Message{
		ID: "m1", RoomID: "r1", AuthorID: "alice", Kind: models.KindText,
		Content: "ping", CreatedAt: base,
	})

	assert.Equal(t, 1, tl.Len())
	_, ok := tl.PositionOf("m1")
	assert.True(t, ok)
}

func TestHeuristicMatchRespectsWindow(t *testing.T) {
	tl := New("r1")
	base := time.Now()
	tl.AppendLocal(pendingMsg("tmp1", "alice", "ping", base))

	// past the window the pending entry no longer matches
	tl.now = func() time.Time { return base.Add(reconcileWindow + time.Second) }
	tl.ApplyMessage(&models.Message{
		ID: "m1", RoomID: "r1", AuthorID: "alice", Kind: models.KindText,
		Content: "ping", CreatedAt: base,
	})

	assert.Equal(t, 2, tl.Len())
}

func TestHeuristicMatchRequiresExactContentAndAuthor(t *testing.T) {
	tl := New("r1")
	base := time.Now()
	tl.now = func() time.Time { return base }
	tl.AppendLocal(pendingMsg("tmp1", "alice", "ping", base))

	tl.ApplyMessage(&models.Message{
		ID: "m1", RoomID: "r1", AuthorID: "bob", Kind: models.KindText,
		Content: "ping", CreatedAt: base,
	})
	tl.ApplyMessage(&models.Message{
		ID: "m2", RoomID: "r1", AuthorID: "alice", Kind: models.KindText,
		Content: "ping!", CreatedAt: base,
	})

	// neither matched; the optimistic entry is still pending
	assert.Equal(t, 3, tl.Len())
	_, ok := tl.PositionOf("tmp1")
	assert.True(t, ok)
}

func TestApplyHistoryKeepsPendingAtTail(t *testing.T) {
	tl := New("r1")
	tl.ApplyMessage(confirmed("old", "", "bob", "stale"))
	tl.AppendLocal(pendingMsg("tmp1", "alice", "in flight", time.Now()))

	tl.ApplyHistory([]*models.Message{
		confirmed("m1", "", "bob", "one"),
		confirmed("m2", "", "bob", "two"),
	})

	require.Equal(t, 3, tl.Len())
	pos, ok := tl.PositionOf("tmp1")
	require.True(t, ok)
	assert.Equal(t, 2, pos)
	_, ok = tl.PositionOf("old")
	assert.False(t, ok)

	// the late confirmation still reconciles after the refresh
	tl.ApplyMessage(confirmed("m3", "tmp1", "alice", "in flight"))
	assert.Equal(t, 3, tl.Len())
}

func TestApplyUpdateAndDelete(t *testing.T) {
	tl := New("r1")
	tl.ApplyMessage(confirmed("m1", "", "alice", "original"))

	at := time.Now().UTC()
	tl.ApplyUpdate("m1", "edited", at)
	msgs := tl.Messages()
	assert.Equal(t, "edited", msgs[0].Content)
	require.NotNil(t, msgs[0].UpdatedAt)

	tl.ApplyReactions("m1", map[string][]string{"👍": {"bob"}})
	tl.ApplyDelete("m1")
	msgs = tl.Messages()
	assert.True(t, msgs[0].IsDeleted)
	assert.Empty(t, msgs[0].Content)
	assert.Nil(t, msgs[0].Reactions)
	assert.Equal(t, 1, tl.Len())
}

func TestMutationsSkipPendingEntries(t *testing.T) {
	tl := New("r1")
	tl.AppendLocal(pendingMsg("tmp1", "alice", "pending", time.Now()))

	tl.ApplyUpdate("tmp1", "edited", time.Now())
	tl.ApplyDelete("tmp1")

	msgs := tl.Messages()
	assert.Equal(t, "pending", msgs[0].Content)
	assert.False(t, msgs[0].IsDeleted)
}

func TestApplyReceipts(t *testing.T) {
	tl := New("r1")
	tl.ApplyMessage(confirmed("m1", "", "alice", "hi"))

	tl.ApplyReceipts(&models.ReceiptSummary{
		MessageID: "m1", DeliveredCount: 3, SeenCount: 1, SeenBy: []string{"Bob"},
	})

	msgs := tl.Messages()
	require.NotNil(t, msgs[0].Receipts)
	assert.Equal(t, 3, msgs[0].Receipts.DeliveredCount)
	assert.Equal(t, []string{"Bob"}, msgs[0].Receipts.SeenBy)
}
