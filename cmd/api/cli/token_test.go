package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doclocker/internal/config"
	"doclocker/internal/http/middleware"
	"doclocker/internal/model"
)

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")
	t.Setenv("JWT_ISSUER", "")

	cmd := NewTokenCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--sub", "sup-1", "--role", "supervisor", "--department", "maintenance", "--ttl", "10m"})

	require.NoError(t, cmd.Execute())

	auth, err := middleware.NewAuthenticator(config.AuthConfig{JWTSecret: "cli-test-secret"})
	require.NoError(t, err)
	actor, err := auth.Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, model.Actor{ID: "sup-1", Role: model.RoleSupervisor, Department: "maintenance"}, actor)
}

func TestTokenCommand_Validation(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown role", []string{"--sub", "u1", "--role", "root"}},
		{"missing subject", []string{"--role", "user"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewTokenCommand()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)
			assert.Error(t, cmd.Execute())
		})
	}
}

func TestRootCommand_Flags(t *testing.T) {
	root := NewRootCommand(VersionInfo{Version: "1.2.3", Commit: "abc"})

	assert.Equal(t, "1.2.3.abc", root.Version)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
	assert.Error(t, initConfig("/nonexistent/doclocker.yaml"))
	assert.NoError(t, initConfig(""))
}
