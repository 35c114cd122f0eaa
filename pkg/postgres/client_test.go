package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsFatalConnError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bad password", &pq.Error{Code: "28P01"}, true},
		{"no such database", fmt.Errorf("ping: %w", &pq.Error{Code: "3D000"}), true},
		{"starting up", &pq.Error{Code: "57P03"}, false},
		{"connection refused", errors.New("dial tcp: connection refused"), false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isFatalConnError(tc.err))
		})
	}
	assert.False(t, connectRetry.Retryable(&pq.Error{Code: "28000"}))
}
