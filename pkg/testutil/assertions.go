package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub003/pkg/events"
)

// RequireEnvelope decodes a wire payload and checks it carries the expected
// schema.
func RequireEnvelope(t *testing.T, payload []byte, schema string) events.Envelope {
	t.Helper()
	env, err := events.DecodeEnvelope(payload)
	require.NoError(t, err)
	require.Equal(t, schema, env.Schema)
	return env
}

// RequirePayload decodes an envelope's payload into out.
func RequirePayload(t *testing.T, env events.Envelope, out any) {
	t.Helper()
	require.NoError(t, env.DecodePayload(out))
}
