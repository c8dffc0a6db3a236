package workerpool

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolRunAllJobs(t *testing.T) {
	p := New(4)
	var count int32
	jobs := make([]func() error, 0, 50)
	for i := 0; i < 50; i++ {
		jobs = append(jobs, func() error {
			atomic.AddInt32(&count, 1)
			return nil
		})
	}
	require.NoError(t, p.Run(jobs))
	require.EqualValues(t, 50, count)
}

func TestPoolRunReturnsFirstError(t *testing.T) {
	p := New(2)
	errBoom := errors.New("boom")
	jobs := []func() error{
		func() error { return nil },
		func() error { return errBoom },
		func() error { return nil },
	}
	require.ErrorIs(t, p.Run(jobs), errBoom)
}

func TestPoolClampsWorkerCount(t *testing.T) {
	p := New(0)
	require.NotNil(t, p)
	require.NoError(t, p.Run([]func() error{func() error { return nil }}))
}
