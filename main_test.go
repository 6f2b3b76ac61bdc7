package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestNewAppCommands(t *testing.T) {
	app := newApp()

	var names []string
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
		require.NotNil(t, cmd.Action, "command %s has no action", cmd.Name)
	}
	assert.Equal(t, []string{"crawl", "leads", "runs"}, names)

	crawl := app.Command("crawl")
	require.NotNil(t, crawl)
	assert.True(t, hasFlag(crawl.Flags, "max-total"))
	assert.True(t, hasFlag(crawl.Flags, "dsn"))
}

func hasFlag(flags []cli.Flag, name string) bool {
	for _, f := range flags {
		for _, n := range f.Names() {
			if n == name {
				return true
			}
		}
	}
	return false
}
