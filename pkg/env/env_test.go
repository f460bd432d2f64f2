package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMode_Validate(t *testing.T) {
	t.Parallel()

	for _, m := range []Mode{Test, Local, Dev, Prod} {
		assert.True(t, m.Validate(), m.String())
	}
	assert.False(t, Mode("staging").Validate())
}

func TestMode_Diagnostics(t *testing.T) {
	t.Parallel()

	assert.True(t, Dev.Diagnostics())
	assert.True(t, Local.Diagnostics())
	assert.False(t, Prod.Diagnostics())
}

func TestSetMode_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { SetMode("staging") })
}

func TestLookups(t *testing.T) {
	t.Setenv("IDB_TEST_STR", "value")
	t.Setenv("IDB_TEST_INT", "42")
	t.Setenv("IDB_TEST_BAD_INT", "forty-two")
	t.Setenv("IDB_TEST_BOOL", "false")
	t.Setenv("IDB_TEST_DUR", "90s")
	t.Setenv("IDB_TEST_EMPTY", "")

	assert.Equal(t, "value", String("IDB_TEST_STR", "x"))
	assert.Equal(t, "x", String("IDB_TEST_EMPTY", "x"))
	assert.Equal(t, 42, Int("IDB_TEST_INT", 1))
	assert.Equal(t, 1, Int("IDB_TEST_BAD_INT", 1))
	assert.False(t, Bool("IDB_TEST_BOOL", true))
	assert.True(t, Bool("IDB_TEST_MISSING", true))
	assert.Equal(t, 90*time.Second, Duration("IDB_TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, Duration("IDB_TEST_MISSING", time.Minute))
}
