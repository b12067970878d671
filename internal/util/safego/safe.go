// Package safego runs callbacks and goroutines so that a panic is logged
// instead of terminating the process.
package safego

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	runtimeutil "k8s.io/apimachinery/pkg/util/runtime"
)

func init() {
	runtimeutil.ReallyCrash = false
}

// InitPanicLogger routes recovered panics to the given logger.
func InitPanicLogger(logger *zap.Logger) {
	if logger == nil {
		return
	}
	runtimeutil.PanicHandlers = []func(context.Context, any){
		func(_ context.Context, r any) {
			if r == http.ErrAbortHandler { // nolint:errorlint
				return
			}
			logger.Error("Observed a panic", zap.Any("panic", r), zap.Stack("stack"))
		},
	}
}

// Go runs f on a new goroutine.
func Go(f func()) {
	go func() {
		defer runtimeutil.HandleCrash()

		f()
	}()
}

// Call runs f on the current goroutine and returns a panic as an error.
func Call(f func()) (err error) {
	defer runtimeutil.HandleCrash(func(r any) {
		err = fmt.Errorf("recovered panic: %v", r)
	})

	f()
	return nil
}
