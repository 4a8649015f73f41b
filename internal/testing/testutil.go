// Package testing provides test utilities for the depot project.
//
// This package provides utilities for safe testing with goroutines,
// including the error channel pattern to avoid t.Fatal in goroutines.
package testing

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Error Channel Pattern
// =============================================================================

// GoroutineTest provides safe testing utilities for goroutines.
//
// Using t.Fatal or t.FailNow in a goroutine causes the test to hang
// because these functions call runtime.Goexit() which only exits the
// current goroutine, not the test goroutine. This type provides the
// error channel pattern as a safe alternative.
type GoroutineTest struct {
	t    *testing.T
	wg   sync.WaitGroup
	errs chan error
}

// NewGoroutineTest creates goroutine test helpers bound to t.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	return &GoroutineTest{
		t:    t,
		errs: make(chan error, 64),
	}
}

// Go runs fn in a goroutine. A returned error fails the test at Wait.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(); err != nil {
			select {
			case gt.errs <- err:
			default:
			}
		}
	}()
}

// Wait blocks until every goroutine finished and reports their errors.
func (gt *GoroutineTest) Wait() {
	gt.wg.Wait()
	close(gt.errs)
	for err := range gt.errs {
		gt.t.Error(err)
	}
}

// =============================================================================
// Timing Helpers
// =============================================================================

// WithTimeout runs fn, failing if it does not return in time.
func WithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// Eventually waits for a condition to become true.
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v", timeout)
}
