package pvserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutQueueDropsOldestNotification(t *testing.T) {
	q := newOutQueue(2)

	assert.Equal(t, 0, q.push([]byte("resp1"), false))
	assert.Equal(t, 0, q.push([]byte("n1"), true))
	assert.Equal(t, 0, q.push([]byte("n2"), true))
	assert.Equal(t, 1, q.push([]byte("n3"), true))
	assert.Equal(t, 0, q.push([]byte("resp2"), false))

	var got []string
	for _, it := range q.drain() {
		got = append(got, string(it.data))
	}
	assert.Equal(t, []string{"resp1", "n2", "n3", "resp2"}, got)
	assert.Equal(t, 0, q.len())
}

func TestOutQueueNeverDropsResponses(t *testing.T) {
	q := newOutQueue(1)
	for i := 0; i < 10; i++ {
		q.push([]byte{byte(i)}, false)
	}
	assert.Equal(t, 10, q.len())
}

func TestOutQueueSignalsAndCloses(t *testing.T) {
	q := newOutQueue(4)
	q.push([]byte("x"), true)

	select {
	case <-q.signal:
	default:
		t.Fatal("push did not signal")
	}

	q.close()
	assert.Equal(t, 0, q.push([]byte("y"), true))
	assert.Equal(t, 0, q.len())
}
