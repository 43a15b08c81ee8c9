package config

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/agent-notify/internal/keys"
	"github.com/nhle/agent-notify/internal/model"
)

func TestApplyForm(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 30)
	m.Start(*model.DefaultConfig(), filepath.Join(t.TempDir(), "config.yaml"), nil)

	m.fb.baseURL = " https://assistant.example.com/ "
	m.fb.deviceName = "laptop"
	m.fb.foreground = "45s"
	m.fb.background = "10m"
	m.fb.alertTimeout = "5s"

	cfg, err := m.applyForm()
	require.NoError(t, err)
	assert.Equal(t, "https://assistant.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, "laptop", cfg.Registration.DeviceName)
	assert.Equal(t, 45*time.Second, cfg.Polling.ForegroundInterval)
	assert.Equal(t, 10*time.Minute, cfg.Polling.BackgroundInterval)
	assert.Equal(t, 5*time.Second, cfg.Presenter.AlertTimeout)
}

func TestApplyForm_RejectsBadDuration(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 30)
	m.Start(*model.DefaultConfig(), "unused", nil)
	m.fb.foreground = "soon"

	_, err := m.applyForm()
	assert.Error(t, err)
}

func TestValidateAndSave_WritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m := New(keys.DefaultKeyMap(), 80, 30)

	var checked string
	m.Start(*model.DefaultConfig(), path, func(_ context.Context, baseURL string) error {
		checked = baseURL
		return nil
	})
	m.cfg.Backend.BaseURL = "http://backend.test:9000"
	m.cfg.Polling.ForegroundInterval = time.Minute

	msg := m.validateAndSave()()
	assert.Equal(t, resultMsg{}, msg)
	assert.Equal(t, "http://backend.test:9000", checked)

	loaded, err := model.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://backend.test:9000", loaded.Backend.BaseURL)
	assert.Equal(t, time.Minute, loaded.Polling.ForegroundInterval)

	m, _ = m.Update(msg)
	assert.Equal(t, ModeResult, m.mode)
	assert.Contains(t, m.View(), "Settings saved")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, DoneMsg{Saved: true}, cmd())
}

func TestValidateAndSave_CheckFailureDoesNotWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m := New(keys.DefaultKeyMap(), 80, 30)
	m.Start(*model.DefaultConfig(), path, func(context.Context, string) error {
		return errors.New("connection refused")
	})

	msg := m.validateAndSave()()
	res, ok := msg.(resultMsg)
	require.True(t, ok)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "connection refused")
	assert.NoFileExists(t, path)

	m, _ = m.Update(msg)
	assert.Contains(t, m.View(), "Settings not saved")
}

func TestEscapeClosesForm(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 30)
	m.Start(*model.DefaultConfig(), "unused", nil)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, DoneMsg{}, cmd())
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateURL("http://localhost:8000"))
	assert.Error(t, validateURL(""))
	assert.Error(t, validateURL("localhost"))

	check := validateDuration("Interval")
	assert.NoError(t, check("30s"))
	assert.Error(t, check("0s"))
	assert.Error(t, check("often"))
}
