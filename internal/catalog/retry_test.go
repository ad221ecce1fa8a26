package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryWithBackoff(t *testing.T) {
	transient := errors.New("transient")

	tests := []struct {
		name      string
		retries   int
		failures  int
		permanent bool
		wantCalls int
		wantErr   bool
	}{
		{name: "first try succeeds", retries: 2, failures: 0, wantCalls: 1},
		{name: "succeeds after retries", retries: 2, failures: 2, wantCalls: 3},
		{name: "exhausts retries", retries: 2, failures: 5, wantCalls: 3, wantErr: true},
		{name: "no retries", retries: 0, failures: 1, wantCalls: 1, wantErr: true},
		{name: "permanent stops early", retries: 3, failures: 5, permanent: true, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryWithBackoff(context.Background(), tt.retries, time.Millisecond, func() error {
				calls++
				if calls <= tt.failures {
					if tt.permanent {
						return permanent(transient)
					}
					return transient
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, transient)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryWithBackoffContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, 3, time.Second, func() error {
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
