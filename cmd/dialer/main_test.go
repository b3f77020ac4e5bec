package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cart-dialer/internal/batch"
	"cart-dialer/internal/calllog"
	"cart-dialer/internal/calls"
	"cart-dialer/internal/config"
	"cart-dialer/internal/contacts"
	"cart-dialer/internal/reporting"
	"cart-dialer/internal/telephony"
	"cart-dialer/pkg/logger"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func dryRunEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("CALL_PROVIDER", "dryrun")
	t.Setenv("SCRIPT_PROVIDER", "none")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LINE_CAP", "")
	t.Setenv("ARCHIVE_S3_BUCKET", "")
}

func writeSource(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "abandoned_cart.csv")
	body := "name,phone,items,total\n" +
		"Rahul Sharma,+917499902809,\"Headphones, Speaker\",4098\n" +
		"No Plus,917499902809,Lamp,25\n"
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRunCommand_DryRunLogsEveryRecord(t *testing.T) {
	dryRunEnv(t)
	dir := t.TempDir()
	src := writeSource(t, dir)
	logPath := filepath.Join(dir, "call_logs.csv")

	out, err := execute(t, "run", src, "--log", logPath, "--delay", "0s")
	require.NoError(t, err)

	var sum batch.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Initiated)
	assert.Equal(t, 1, sum.Skipped)

	rows, err := calllog.ReadRows(logPath)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, calls.OutcomeInitiated, rows[0].Status)
	assert.Equal(t, calls.OutcomeSkipped, rows[1].Status)

	// a second run with skip-logged dials nobody; invalid rows are logged again
	out, err = execute(t, "run", src, "--log", logPath, "--delay", "0s", "--policy", "skip-logged")
	require.NoError(t, err)
	sum = batch.RunSummary{}
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 1, sum.AlreadyLogged)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Initiated)

	out, err = execute(t, "report", logPath)
	require.NoError(t, err)
	var rep reporting.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 3, rep.TotalRows)
	assert.Equal(t, 1, rep.Initiated)
	assert.Equal(t, 2, rep.Skipped)
}

func TestRunCommand_MalformedSourceFails(t *testing.T) {
	dryRunEnv(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(src, []byte("customer,items\nRahul,Lamp\n"), 0o644))

	out, err := execute(t, "run", src, "--log", filepath.Join(dir, "log.csv"))
	var sfe *contacts.SourceFormatError
	require.ErrorAs(t, err, &sfe)
	assert.Empty(t, strings.TrimSpace(out))
}

func TestRunCommand_ConfigurationError(t *testing.T) {
	dryRunEnv(t)
	t.Setenv("CALL_PROVIDER", "vapi")
	t.Setenv("VAPI_API_KEY", "")

	_, err := execute(t, "run", writeSource(t, t.TempDir()))
	var ce *config.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Error(), "VAPI_API_KEY")
}

func TestTokenCommand(t *testing.T) {
	dryRunEnv(t)
	t.Setenv("JWT_SECRET", "secret")

	out, err := execute(t, "token", "--operator", "ops")
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(strings.TrimSpace(out), ".")))

	t.Setenv("JWT_SECRET", "")
	_, err = execute(t, "token", "--operator", "ops")
	var ce *config.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func TestNewCaller(t *testing.T) {
	cfg := config.Config{}
	cfg.Provider.Name = config.ProviderDryRun
	c, err := newCaller(cfg, logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &telephony.DryRunCaller{}, c)

	cfg.Provider.Name = config.ProviderTwilio
	cfg.Twilio = config.TwilioConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+15550000000"}
	c, err = newCaller(cfg, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "twilio", c.Name())

	cfg.Provider.Name = "carrier-pigeon"
	_, err = newCaller(cfg, logger.Discard())
	assert.Error(t, err)
}

func TestNewGenerator_None(t *testing.T) {
	cfg := config.Config{}
	cfg.Script.Provider = config.ScriptNone
	g, err := newGenerator(t.Context(), cfg)
	require.NoError(t, err)
	assert.Nil(t, g)

	cfg.Script.Provider = config.ScriptGroq
	cfg.Script.GroqAPIKey = "k"
	g, err = newGenerator(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "groq", g.Name())
}
