package utils

import (
	"testing"
	"time"
)

func TestGoroutineLeakDetectorCleanPath(t *testing.T) {
	detector := NewGoroutineLeakDetector(t).SetStabilizeDelay(50 * time.Millisecond)
	detector.Start()

	done := make(chan struct{})
	go func() {
		close(done)
	}()
	<-done

	detector.Check()
}

func TestGoroutineLeakDetectorAllowedGrowth(t *testing.T) {
	detector := NewGoroutineLeakDetector(t).
		SetStabilizeDelay(50 * time.Millisecond).
		SetAllowedGrowth(1)
	detector.Start()

	// Deliberately leave one goroutine running within the allowance
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		<-stop
	}()

	detector.Check()
}
