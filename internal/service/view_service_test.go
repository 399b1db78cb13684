package service

import (
	"context"
	"sync"
	"testing"

	"forum/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementView_ConcurrentCallsAllLand(t *testing.T) {
	h := newHarness(t)
	a := h.member(1, "alice")
	cat := h.category("general")
	thread := h.thread(a.ID, cat.ID, "T1")

	const views = 50
	var wg sync.WaitGroup
	for i := 0; i < views; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.views.IncrementView(context.Background(), thread.ID))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(views), h.reloadThread(thread.ID).ViewCount)
}

func TestIncrementView_RepeatViewsCount(t *testing.T) {
	h := newHarness(t)
	a := h.member(1, "alice")
	cat := h.category("general")
	thread := h.thread(a.ID, cat.ID, "T1")

	for i := 0; i < 3; i++ {
		require.NoError(t, h.views.IncrementView(context.Background(), thread.ID))
	}
	assert.Equal(t, int64(3), h.reloadThread(thread.ID).ViewCount)
}

func TestIncrementView_HiddenThreadIsNotFound(t *testing.T) {
	h := newHarness(t)
	a := h.member(1, "alice")
	cat := h.category("general")
	thread := h.thread(a.ID, cat.ID, "T1")
	require.NoError(t, h.threads.SoftDeleteThread(context.Background(), thread.ID))

	err := h.views.IncrementView(context.Background(), thread.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
	assert.True(t, models.IsCode(h.views.IncrementView(context.Background(), 999), models.CodeNotFound))
	assert.Zero(t, h.reloadThread(thread.ID).ViewCount)
}
