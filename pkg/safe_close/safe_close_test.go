package safe_close

import (
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestSafeClose_WaitsForEveryWorker(t *testing.T) {
	sc := NewSafeClose()

	var stopped atomic.Int32
	for i := 0; i < 5; i++ {
		sc.Attach(func(done func(), closeSignal <-chan struct{}) {
			defer done()
			<-closeSignal
			stopped.Add(1)
		})
	}

	first := errors.New("listener failed")
	sc.SendCloseSignal(first)
	sc.SendCloseSignal(errors.New("second"))

	assert.Equal(t, first, sc.WaitClosed())
	assert.Equal(t, int32(5), stopped.Load())
}

func TestSafeClose_DoneIsIdempotent(t *testing.T) {
	sc := NewSafeClose()
	sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		done()
		done()
	})
	sc.SendCloseSignal(nil)
	assert.NoError(t, sc.WaitClosed())
}
