package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatlineCommand(t *testing.T) {
	cmd := NewChatlineCommand()
	require.NotNil(t, cmd)

	assert.Equal(t, "chatline", cmd.Use)
	assert.True(t, cmd.HasSubCommands())

	for _, name := range []string{"login", "watch", "room", "history", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}
