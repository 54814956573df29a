package alembic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/go-utils/errs"
)

func TestCycleError_ErrorInterface(t *testing.T) {
	var err error = ErrCycle([]Key{"a", "b", "a"})

	assert.Contains(t, err.Error(), "a -> b -> a")

	// The coded error stays reachable through the chain.
	var coded *errs.Error
	assert.ErrorAs(t, err, &coded)
	assert.Equal(t, "a -> b -> a", coded.GetContext()["cycle"])
}

func TestCycleError_TraceThroughErrorsAs(t *testing.T) {
	var err error = ErrCycle([]Key{"a", "a"})

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []Key{"a", "a"}, cycleErr.Trace)
}

func TestRenderTrace(t *testing.T) {
	assert.Equal(t, "a -> b -> a", renderTrace([]Key{"a", "b", "a"}))
	assert.Equal(t, "", renderTrace(nil))
}
