package ledger

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestLocker_SerializesSameKey(t *testing.T) {
	l := newLocker()
	id := uuid.New()

	var (
		wg      sync.WaitGroup
		counter int
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock := l.lock(id)
			defer unlock()

			v := counter
			counter = v + 1
		}()
	}

	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, l.size(), "idle locks must be released")
}

func TestLocker_IndependentKeys(t *testing.T) {
	l := newLocker()

	unlockA := l.lock(uuid.New())
	unlockB := l.lock(uuid.New())

	assert.Equal(t, 2, l.size())

	unlockA()
	unlockB()

	assert.Zero(t, l.size())
}
