package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/Vovarama1992/otk-assistant/internal/logger"
)

var (
	ErrClosed   = errors.New("dispatcher is closed")
	errPanicked = errors.New("handler panicked")
)

const laneBuffer = 16

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context)
	done chan error
}

type lane struct {
	jobs    chan job
	pending int
}

// Dispatcher — по горутине на активного пользователя: события одного
// пользователя идут строго по очереди, разные пользователи параллельно.
type Dispatcher struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup
	log    logger.Logger
}

func NewDispatcher(log logger.Logger) *Dispatcher {
	return &Dispatcher{lanes: map[string]*lane{}, log: log}
}

// Do ставит fn в очередь пользователя и ждёт выполнения.
func (d *Dispatcher) Do(ctx context.Context, userID string, fn func(ctx context.Context)) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	l, ok := d.lanes[userID]
	if !ok {
		l = &lane{jobs: make(chan job, laneBuffer)}
		d.lanes[userID] = l
		d.wg.Add(1)
		go d.run(userID, l)
	}
	l.pending++
	d.mu.Unlock()

	l.jobs <- j

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run(userID string, l *lane) {
	defer d.wg.Done()

	for j := range l.jobs {
		j.done <- d.exec(userID, j)

		d.mu.Lock()
		l.pending--
		if l.pending == 0 {
			delete(d.lanes, userID)
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
	}
}

func (d *Dispatcher) exec(userID string, j job) (err error) {
	if err := j.ctx.Err(); err != nil {
		d.log.Warn(module, "dropped event, caller gone", map[string]any{"user_id": userID, "error": err})
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error(module, "handler panic recovered", map[string]any{
				"user_id": userID,
				"panic":   fmt.Sprint(r),
				"stack":   string(debug.Stack()),
			})
			err = errPanicked
		}
	}()

	j.fn(j.ctx)
	return nil
}

// Active — число пользователей с очередью.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lanes)
}

// Close перестаёт принимать события и ждёт, пока доработают очереди.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
