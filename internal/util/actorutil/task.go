package actorutil

import (
	"errors"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

var ErrNilResult = errors.New("result is nil")

// BackgroundTask runs fn off the actor goroutine and delivers its outcome as
// a message. Delivery goes through the system root context, so the task may
// outlive the message that started it.
type BackgroundTask[T any] struct {
	sender  actor.SenderContext
	fn      func() (*T, error)
	timeout *time.Duration
	recover func(error) T
}

func NewBackgroundTask[T any](ctx actor.Context, fn func() (*T, error)) *BackgroundTask[T] {
	return NewBackgroundTaskFrom(ctx.ActorSystem().Root, fn)
}

func NewBackgroundTaskFrom[T any](sender actor.SenderContext, fn func() (*T, error)) *BackgroundTask[T] {
	return &BackgroundTask[T]{
		sender: sender,
		fn:     fn,
	}
}

func (t *BackgroundTask[T]) WithTimeout(timeout time.Duration) *BackgroundTask[T] {
	t.timeout = &timeout
	return t
}

// Recover maps a failure (including a timeout) to the message delivered
// instead. Without it, failures are dropped.
func (t *BackgroundTask[T]) Recover(fn func(error) T) *BackgroundTask[T] {
	t.recover = fn
	return t
}

func (t *BackgroundTask[T]) PipeTo(pid *actor.PID) {
	go func() {
		value, ok := t.Run()
		if ok {
			t.sender.Send(pid, value)
		}
	}()
}

// Run executes the task synchronously. ok is false when it failed and no
// Recover was set.
func (t *BackgroundTask[T]) Run() (T, bool) {
	fn := t.fn
	bgFn := io.Eval(func() (*T, error) {
		a, err := fn()
		if err == nil && a == nil {
			err = ErrNilResult
		}
		return a, err
	})
	bg := io.Map(bgFn, func(a *T) T {
		return *a
	})
	if t.timeout != nil {
		bg = io.WithTimeout[T](*t.timeout)(bg)
	}
	result := io.RunSync(bg)
	if result.Error != nil {
		if t.recover != nil {
			return t.recover(result.Error), true
		}
		var zero T
		return zero, false
	}
	return result.Value, true
}

func MapBackgroundTask[T, T2 any](bgt *BackgroundTask[T], mapFn func(*T) *T2) *BackgroundTask[T2] {
	newFn := func() (*T2, error) {
		r, err := bgt.fn()
		if err != nil {
			return nil, err
		}
		return mapFn(r), nil
	}
	return &BackgroundTask[T2]{
		sender:  bgt.sender,
		fn:      newFn,
		timeout: bgt.timeout,
	}
}
