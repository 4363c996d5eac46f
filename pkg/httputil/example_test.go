package httputil_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matzehuels/wheelhouse/pkg/httputil"
)

func ExampleRetry() {
	calls := 0
	err := httputil.Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return &httputil.RetryableError{Err: errors.New("503 service unavailable")}
		}
		return nil
	})
	fmt.Println("calls:", calls, "err:", err)
	// Output:
	// calls: 3 err: <nil>
}

func ExampleRetry_permanent() {
	calls := 0
	err := httputil.Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return errors.New("404 not found")
	})
	fmt.Println("calls:", calls, "err:", err)
	// Output:
	// calls: 1 err: 404 not found
}
