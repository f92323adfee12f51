package config

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestFromEnv(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := FromEnv(envFrom(map[string]string{
			"TELEGRAM_BOT_TOKEN": "token",
			"STORAGE_DRIVER":     "memory",
			"SOURCE_GROUPS":      "-1001, -1002",
			"TARGET_GROUPS":      "-2001,,-2002",
			"ADMIN_IDS":          "42",
		}))
		require.NoError(t, err)
		assert.Equal(t, []int64{-1001, -1002}, cfg.SourceGroups)
		assert.Equal(t, []int64{-2001, -2002}, cfg.TargetGroups)
		assert.Equal(t, []int64{42}, cfg.AdminIDs)
		assert.Equal(t, 60*time.Second, cfg.ForwardInterval)
		assert.Equal(t, 5, cfg.BoostEveryN)
		assert.Equal(t, time.Second, cfg.TargetDelay)
		assert.Equal(t, RetryStrand, cfg.RetryPolicy)
		assert.Equal(t, "en", cfg.DefaultLanguage)
	})

	t.Run("MissingToken", func(t *testing.T) {
		_, err := FromEnv(envFrom(map[string]string{"STORAGE_DRIVER": "memory"}))
		assert.Error(t, err)
	})

	t.Run("MongoRequiresURI", func(t *testing.T) {
		_, err := FromEnv(envFrom(map[string]string{"TELEGRAM_BOT_TOKEN": "token"}))
		assert.ErrorContains(t, err, "MONGODB_URI")
	})

	t.Run("MalformedGroupID", func(t *testing.T) {
		_, err := FromEnv(envFrom(map[string]string{
			"TELEGRAM_BOT_TOKEN": "token",
			"STORAGE_DRIVER":     "memory",
			"TARGET_GROUPS":      "-100,abc",
		}))
		assert.ErrorContains(t, err, "TARGET_GROUPS")
	})

	t.Run("UnknownRetryPolicy", func(t *testing.T) {
		_, err := FromEnv(envFrom(map[string]string{
			"TELEGRAM_BOT_TOKEN": "token",
			"STORAGE_DRIVER":     "memory",
			"ERROR_RETRY_POLICY": "sometimes",
		}))
		assert.ErrorContains(t, err, "ERROR_RETRY_POLICY")
	})

	t.Run("NonPositiveInterval", func(t *testing.T) {
		for _, interval := range []string{"0", "-5"} {
			_, err := FromEnv(envFrom(map[string]string{
				"TELEGRAM_BOT_TOKEN": "token",
				"STORAGE_DRIVER":     "memory",
				"FORWARD_INTERVAL":   interval,
			}))
			assert.ErrorContains(t, err, "FORWARD_INTERVAL", "interval %s", interval)
		}
	})

	t.Run("EmptyAdminsWarnsOnce", func(t *testing.T) {
		var buf bytes.Buffer
		log.SetOutput(&buf)
		defer log.SetOutput(os.Stderr)

		_, err := FromEnv(envFrom(map[string]string{
			"TELEGRAM_BOT_TOKEN": "token",
			"STORAGE_DRIVER":     "memory",
		}))
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(buf.String(), "ADMIN_IDS"))
	})
}
