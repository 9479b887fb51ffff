package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorominseok/festival-pj/app/feed"
	"github.com/dorominseok/festival-pj/app/proc"
)

func TestLoadConfig(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "festival-pj.yml")
	require.NoError(t, os.WriteFile(fname, []byte("system:\n  update: 30s\nmoderation:\n  bad_words: \"(meh)\"\n"), 0600))

	conf, err := loadConfig(fname)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, conf.System.UpdateInterval)
	assert.Equal(t, "(meh)", conf.Moderation.BadWords)
	assert.Equal(t, feed.DefaultOrigin, conf.Feed.Origin)
}

func TestLoadConfig_Missing(t *testing.T) {
	conf, err := loadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, proc.DefaultBadWords, conf.Moderation.BadWords)
	assert.Equal(t, 7, conf.Feed.EndedWindowDays)
}

func TestLoadConfig_Broken(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "broken.yml")
	require.NoError(t, os.WriteFile(fname, []byte("system: [1, 2"), 0600))
	_, err := loadConfig(fname)
	assert.Error(t, err)
}

func TestApplyEnvFallbacks(t *testing.T) {
	t.Setenv("EXPO_PUBLIC_API_BASE_URL", "http://10.0.2.2:8080")
	t.Setenv("EXPO_PUBLIC_UNSMILE_URL", "http://10.0.2.2:8001")

	opts := options{}
	applyEnvFallbacks(&opts)
	assert.Equal(t, "http://10.0.2.2:8080", opts.API)
	assert.Equal(t, "http://10.0.2.2:8001", opts.Classifier)

	opts = options{API: "http://api", Classifier: "http://cls"}
	applyEnvFallbacks(&opts)
	assert.Equal(t, "http://api", opts.API, "explicit value wins")
	assert.Equal(t, "http://cls", opts.Classifier)
}
