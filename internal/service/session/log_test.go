package session

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley-go/internal/model/chat"
)

func msgAt(id, text string, sender chat.Sender, ts time.Time) chat.Message {
	return chat.Message{ID: id, Text: text, Sender: sender, Timestamp: ts}
}

func TestLogSortsAscendingByTimestamp(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	msgs := make([]chat.Message, 10)
	for i := range msgs {
		msgs[i] = msgAt("m", "text", chat.SenderBot, base.Add(time.Duration(i)*time.Second))
	}
	rand.New(rand.NewSource(42)).Shuffle(len(msgs), func(i, j int) {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	})

	var l messageLog
	for _, m := range msgs {
		l.append(m)
	}

	snap := l.snapshot()
	require.Len(t, snap, 10)
	for i := 1; i < len(snap); i++ {
		assert.True(t, !snap[i].Timestamp.Before(snap[i-1].Timestamp),
			"log out of order at %d", i)
	}
}

func TestLogStableOnEqualTimestamps(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var l messageLog
	l.append(msgAt("a", "first", chat.SenderUser, ts))
	l.append(msgAt("b", "second", chat.SenderBot, ts))
	l.append(msgAt("c", "third", chat.SenderAgent, ts))

	snap := l.snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, []string{snap[0].ID, snap[1].ID, snap[2].ID})
}

func TestLogHydrateReplacesContent(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var l messageLog
	l.append(msgAt("old", "stale", chat.SenderUser, ts))
	l.hydrate([]chat.Message{
		msgAt("h2", "later", chat.SenderBot, ts.Add(time.Minute)),
		msgAt("h1", "earlier", chat.SenderUser, ts),
	})

	snap := l.snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "h1", snap[0].ID)
	assert.Equal(t, "h2", snap[1].ID)
}

func TestDedupByID(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var l messageLog
	l.append(msgAt("t1", "hi", chat.SenderUser, ts))

	accepted := l.appendRealtime(msgAt("t1", "different text", chat.SenderBot, ts.Add(time.Second)))
	assert.False(t, accepted)
	assert.Len(t, l.snapshot(), 1)
}

func TestDedupByFieldTuple(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var l messageLog
	l.append(msgAt("t1", "hi", chat.SenderUser, ts))

	// Same text/sender/attachment but a fresh id: a realtime echo of the
	// optimistic insert.
	accepted := l.appendRealtime(msgAt("t1-echo", "hi", chat.SenderUser, ts.Add(time.Second)))
	assert.False(t, accepted)

	snap := l.snapshot()
	require.Len(t, snap, 1)
	// The optimistic id is kept, not reconciled with the echo's id.
	assert.Equal(t, "t1", snap[0].ID)
}

func TestDedupMismatchedSenderIsAccepted(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var l messageLog
	l.append(msgAt("t1", "hi", chat.SenderUser, ts))

	accepted := l.appendRealtime(msgAt("t2", "hi", chat.SenderBot, ts.Add(time.Second)))
	assert.True(t, accepted)
	assert.Len(t, l.snapshot(), 2)
}

func TestDedupIsLastElementOnly(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var l messageLog
	l.append(msgAt("t1", "hi", chat.SenderUser, ts))
	l.append(msgAt("t2", "reply", chat.SenderBot, ts.Add(time.Second)))

	// Matches t1, but t1 is no longer the last entry; the candidate is
	// accepted as distinct.
	accepted := l.appendRealtime(msgAt("t3", "hi", chat.SenderUser, ts.Add(2*time.Second)))
	assert.True(t, accepted)
	assert.Len(t, l.snapshot(), 3)
}

func TestDedupAttachmentURL(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var l messageLog
	sent := chat.Message{
		ID:         "t1",
		Sender:     chat.SenderUser,
		Attachment: &chat.Attachment{URL: "https://files/a.png", Filename: "a.png"},
		Timestamp:  ts,
	}
	l.append(sent)

	echo := sent
	echo.ID = "t1-echo"
	echo.Timestamp = ts.Add(time.Second)
	assert.False(t, l.appendRealtime(echo))

	other := echo
	other.ID = "t2"
	other.Attachment = &chat.Attachment{URL: "https://files/b.png", Filename: "b.png"}
	assert.True(t, l.appendRealtime(other))
}

func TestSnapshotIsACopy(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var l messageLog
	l.append(msgAt("t1", "hi", chat.SenderUser, ts))

	snap := l.snapshot()
	snap[0].Text = "mutated"

	assert.Equal(t, "hi", l.snapshot()[0].Text)
}
