package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func setMySQLEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("DB_USER", "store")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_NAME", "store")
	t.Setenv("EVENT_BUS", "none")
}

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRejectsMemoryDriver(t *testing.T) {
	setMySQLEnv(t)
	t.Setenv("STORE_DRIVER", "memory")
	_, err := execute("migrate", "version")
	require.ErrorContains(t, err, "STORE_DRIVER=mysql")
}

func TestFlagValidationRunsBeforeConnecting(t *testing.T) {
	setMySQLEnv(t)

	_, err := execute("migrate", "down", "--steps", "0")
	require.ErrorContains(t, err, "--steps")

	_, err = execute("user", "create", "--email", "a@example.com", "--password", "short")
	require.ErrorContains(t, err, "--password")

	_, err = execute("user", "create", "--email", "a@example.com", "--password", "longenough", "--role", "owner")
	require.ErrorContains(t, err, "--role")

	_, err = execute("sessions", "revoke")
	require.ErrorContains(t, err, "--user-id")

	_, err = execute("product", "add", "--stock", "-1", "--name", "x")
	require.ErrorContains(t, err, "--stock")
}
