package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerreserve/internal/control"
)

func TestRunUsage(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"explode"},
		{"reserve"},
		{"unreserve", "a", "b"},
		{"list", "extra"},
		{"-bogus", "list"},
	} {
		err := run(context.Background(), args, &bytes.Buffer{})
		assert.ErrorIs(t, err, errUsage, "args %v", args)
	}
}

func TestPrintSnapshot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSnapshot(&buf, control.Snapshot{
		Self: "10.0.0.1:5005",
		Resources: []control.Resource{
			{ID: "Resource-1", Reserved: true, Owner: "10.0.0.2:5005", Timestamp: 1714566600},
			{ID: "Resource-2"},
		},
	}))

	out := buf.String()
	assert.Contains(t, out, "node 10.0.0.1:5005")
	assert.Regexp(t, `Resource-1\s+reserved\s+10\.0\.0\.2:5005\s+2024-05-01T12:30:00Z`, out)
	assert.Regexp(t, `Resource-2\s+available`, out)
}
