package history

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_DropsOldest(t *testing.T) {
	r := New[int](3)

	assert.False(t, r.Push(1))
	assert.False(t, r.Push(2))
	assert.False(t, r.Push(3))
	assert.True(t, r.Push(4))
	assert.True(t, r.Push(5))

	assert.Equal(t, []int{3, 4, 5}, r.Items())
}

func TestRing_DefaultSize(t *testing.T) {
	for _, size := range []int{0, -4} {
		r := New[int](size)
		for i := 0; i < DefaultSize+5; i++ {
			r.Push(i)
		}
		items := r.Items()
		assert.Len(t, items, DefaultSize)
		assert.Equal(t, 5, items[0])
	}
}

func TestRing_Empty(t *testing.T) {
	r := New[int](2)
	assert.Empty(t, r.Items())
}

func TestRing_ItemsIsACopy(t *testing.T) {
	r := New[int](2)
	r.Push(1)
	items := r.Items()
	items[0] = 99
	assert.Equal(t, []int{1}, r.Items())
}

func TestRing_ConcurrentPush(t *testing.T) {
	r := New[int](50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Push(i)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, r.Items(), 50)
}
