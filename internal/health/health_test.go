package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/liftlog/internal/errors"
)

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("github", func(ctx context.Context) Status { return StatusOK })
	c.Register("mirror", func(ctx context.Context) Status { return StatusOK })

	assert.True(t, c.IsReady(context.Background()))
	assert.Equal(t, map[string]Status{"github": StatusOK, "mirror": StatusOK}, c.Last())
}

func TestChecker_OneDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("github", func(ctx context.Context) Status { return StatusDown })
	c.Register("mirror", func(ctx context.Context) Status { return StatusOK })

	assert.False(t, c.IsReady(context.Background()))
}

func TestChecker_Degraded_StillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("mirror", func(ctx context.Context) Status { return StatusDegraded })

	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_NoChecks(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.True(t, c.IsReady(context.Background()))
	assert.Empty(t, c.Last())
}

func TestChecker_ChecksGetDeadline(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("github", func(ctx context.Context) Status {
		if _, ok := ctx.Deadline(); !ok {
			return StatusDown
		}
		return StatusOK
	})
	assert.True(t, c.IsReady(context.Background()))
}

func TestErrorCheck(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, StatusOK, ErrorCheck(func(context.Context) error { return nil })(ctx))
	assert.Equal(t, StatusDegraded, ErrorCheck(func(context.Context) error {
		return perrors.NewAPIError("github", 429, "slow down")
	})(ctx))
	assert.Equal(t, StatusDown, ErrorCheck(func(context.Context) error { return errors.New("dial tcp: refused") })(ctx))
}

func TestMirrorCheck(t *testing.T) {
	dir := t.TempDir()
	check := MirrorCheck(dir)
	assert.Equal(t, StatusDegraded, check(context.Background()))

	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	assert.Equal(t, StatusOK, check(context.Background()))
}
