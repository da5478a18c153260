package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyed_SerializesSameKey(t *testing.T) {
	k := New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(1)
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, k.locks)
}

func TestKeyed_DifferentKeysDoNotBlock(t *testing.T) {
	k := New()

	unlockA := k.Lock(1)
	unlockB := k.Lock(2)
	assert.Len(t, k.locks, 2)

	unlockB()
	unlockA()
	assert.Empty(t, k.locks)
}
