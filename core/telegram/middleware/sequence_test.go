package middleware

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func textUpdate(userID int64, text string) tele.Update {
	return tele.Update{Message: &tele.Message{
		Text:   text,
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID},
	}}
}

func TestSequencerKeepsPerSenderOrder(t *testing.T) {
	const perUser = 40
	var (
		mu  sync.Mutex
		got = map[int64][]int{}
	)
	seq := NewSequencer(SequencerOptions{Workers: 2, QueueSize: 1})
	h := seq.Middleware(func(c tele.Context) error {
		n, err := strconv.Atoi(c.Text())
		if err != nil {
			return err
		}
		// early updates are slower, so an unordered pool would let later ones overtake
		if n%4 == 0 {
			time.Sleep(time.Millisecond)
		}
		mu.Lock()
		got[c.Sender().ID] = append(got[c.Sender().ID], n)
		mu.Unlock()
		return nil
	})

	for i := 0; i < perUser; i++ {
		for _, uid := range []int64{1, 2, 3} {
			require.NoError(t, h(newFakeContext(uid, textUpdate(uid, strconv.Itoa(i)))))
		}
	}
	seq.Close()

	want := make([]int, perUser)
	for i := range want {
		want[i] = i
	}
	for _, uid := range []int64{1, 2, 3} {
		assert.Equal(t, want, got[uid], "user %d", uid)
	}
}

func TestSequencerReportsErrors(t *testing.T) {
	boom := errors.New("boom")
	reported := make(chan error, 1)
	seq := NewSequencer(SequencerOptions{
		Workers: 1,
		OnError: func(err error, _ tele.Context) { reported <- err },
	})
	h := seq.Middleware(func(tele.Context) error { return boom })

	require.NoError(t, h(newFakeContext(7, textUpdate(7, "x"))))
	seq.Close()
	assert.ErrorIs(t, <-reported, boom)

	// after Close the chain runs inline and the error goes back to the caller
	assert.ErrorIs(t, h(newFakeContext(7, textUpdate(7, "y"))), boom)
	seq.Close()
}
