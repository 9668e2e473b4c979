package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetOperator(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{name: "unset falls back to system", ctx: context.Background(), expected: SystemOperator},
		{name: "blank falls back to system", ctx: SetOperator(context.Background(), ""), expected: SystemOperator},
		{name: "set", ctx: SetOperator(context.Background(), "analyst-7"), expected: "analyst-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetOperator(tt.ctx))
		})
	}
}

func TestRequestValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetCaseID(ctx))

	ctx = SetRequestID(ctx, "req-1")
	ctx = SetCaseID(ctx, "case-1")
	ctx = SetRoute(ctx, "/api/v1/cases")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "case-1", GetCaseID(ctx))
	assert.Equal(t, "/api/v1/cases", GetRoute(ctx))
}
