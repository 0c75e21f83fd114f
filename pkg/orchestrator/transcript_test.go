package orchestrator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript_AddAndSubscribe(t *testing.T) {
	tr := NewTranscript(10)

	var seen []Message
	tr.Subscribe(func(m Message) { seen = append(seen, m) })

	m := tr.Add(SenderUser, "hi")
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.Time.IsZero())

	tr.AddMedia(SenderUser, "image/png", "my balance")

	require.Len(t, seen, 2)
	assert.Equal(t, "hi", seen[0].Text)
	assert.Equal(t, "image/png", seen[1].MediaType)
	assert.Equal(t, 2, tr.Len())
}

func TestTranscript_TrimsOldest(t *testing.T) {
	tr := NewTranscript(3)
	for i := 0; i < 5; i++ {
		tr.Add(SenderAgent, fmt.Sprintf("msg %d", i))
	}

	msgs := tr.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "msg 2", msgs[0].Text)
	assert.Equal(t, "msg 4", msgs[2].Text)
}

func TestTranscript_MessagesIsACopy(t *testing.T) {
	tr := NewTranscript(0)
	assert.Equal(t, DefaultConfig().MaxTranscriptSize, tr.MaxMessages)

	tr.Add(SenderUser, "a")
	msgs := tr.Messages()
	msgs[0].Text = "changed"
	assert.Equal(t, "a", tr.Messages()[0].Text)

	tr.Clear()
	assert.Zero(t, tr.Len())
}
