package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/arjunv/quotaproxy/internal/keyengine"
)

func TestPrintKeyStatusIncludesKeysAndModels(t *testing.T) {
	status := keyengine.Status{
		CurrentKey: "K1",
		ModelOrder: []keyengine.Model{"flash", "pro"},
		KeyUsage: map[keyengine.Key]map[keyengine.Model]keyengine.KeyModelStatus{
			"K1": {
				"flash": {TotalTokens: 42, TokensLastMinute: 5, IsAvailable: true},
			},
		},
		RateLimitedKeys: []keyengine.Key{"K2"},
	}

	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	printKeyStatus(cmd, status)

	out := buf.String()
	require.Contains(t, out, "K1")
	require.Contains(t, out, "flash")
	require.Contains(t, out, "42")
	require.Contains(t, out, "rate-limited keys")
}
