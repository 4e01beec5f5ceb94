// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authkeep/authkeep/internal/auth"
)

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer("http://localhost:3000", slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, m.SendVerification(context.Background(), auth.VerificationMessage{
		To: "a@example.com", Username: "alice", Token: "vtok", ExpiresAt: expires,
	}))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "verification mail", entry["msg"])
	assert.Equal(t, "http://localhost:3000/verify-email?token=vtok", entry["link"])

	buf.Reset()
	require.NoError(t, m.SendPasswordReset(context.Background(), auth.PasswordResetMessage{
		To: "a@example.com", Token: "rtok",
	}))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http://localhost:3000/reset-password?token=rtok", entry["link"])
}
