package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"integrity", ErrIntegrity, true},
		{"wrapped not found", fmt.Errorf("vault file: %w", ErrorNotFound), true},
		{"bad path", ErrInvalidPath, true},
		{"out of order is retried", ErrOutOfOrder, false},
		{"version conflict is retried", ErrVersionConflict, false},
		{"hold pending is retried", ErrHoldPending, false},
		{"blob miss is retried", fmt.Errorf("read part 2: %w", ErrObjectNotVisible), false},
		{"transient", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Permanent(tt.err))
		})
	}
}
