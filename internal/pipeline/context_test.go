package pipeline

import (
	"context"
	"testing"

	"github.com/openimsdk/tools/mcontext"
	"github.com/stretchr/testify/assert"
)

func TestWithRequestIDStampsOperationID(t *testing.T) {
	ctx := withRequestID(context.Background())
	assert.NotEmpty(t, mcontext.GetOperationID(ctx))
}

func TestWithRequestIDGeneratesDistinctIDs(t *testing.T) {
	a := mcontext.GetOperationID(withRequestID(context.Background()))
	b := mcontext.GetOperationID(withRequestID(context.Background()))
	assert.NotEqual(t, a, b)
}
