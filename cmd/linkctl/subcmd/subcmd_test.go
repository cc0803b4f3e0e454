package subcmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/linkctl/state"
)

func TestParse(t *testing.T) {
	t.Parallel()
	noop := func(context.Context, *state.Config) error { return nil }
	mods := []Mod{{Name: "run", Usage: "daemon", Main: noop}, {Name: "probe", Usage: "one-shot", Main: noop}}

	m, err := Parse("probe", mods)
	require.NoError(t, err)
	assert.Equal(t, "probe", m.Name)

	_, err = Parse("", mods)
	assert.EqualError(t, err, "empty command")
	_, err = Parse("fly", mods)
	assert.EqualError(t, err, "unknown command='fly'")
	assert.Panics(t, func() { _, _ = Parse("x", []Mod{{}}) })

	assert.Equal(t, "  probe    one-shot\n  run      daemon", Usage(mods))
}
