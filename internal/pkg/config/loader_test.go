package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	pkgconfig "briefcast/internal/pkg/config"
)

func TestLoadEnvString(t *testing.T) {
	assert.Equal(t, "default", pkgconfig.LoadEnvString("BRIEFCAST_TEST_UNSET", "default"))

	t.Setenv("BRIEFCAST_TEST_STR", "override")
	assert.Equal(t, "override", pkgconfig.LoadEnvString("BRIEFCAST_TEST_STR", "default"))
}

func TestLoadEnvWithFallback(t *testing.T) {
	v := pkgconfig.ValidateOneOf("claude", "openai")

	r := pkgconfig.LoadEnvWithFallback("BRIEFCAST_TEST_UNSET", "claude", v)
	assert.Equal(t, "claude", r.Value)
	assert.False(t, r.FallbackApplied)
	assert.Empty(t, r.Warnings)

	t.Setenv("BRIEFCAST_TEST_PROVIDER", "openai")
	r = pkgconfig.LoadEnvWithFallback("BRIEFCAST_TEST_PROVIDER", "claude", v)
	assert.Equal(t, "openai", r.Value)

	t.Setenv("BRIEFCAST_TEST_PROVIDER", "bard")
	r = pkgconfig.LoadEnvWithFallback("BRIEFCAST_TEST_PROVIDER", "claude", v)
	assert.Equal(t, "claude", r.Value)
	assert.True(t, r.FallbackApplied)
	assert.Len(t, r.Warnings, 1)
}

func TestLoadEnvInt(t *testing.T) {
	v := pkgconfig.ValidateIntRange(1, 50)

	r := pkgconfig.LoadEnvInt("BRIEFCAST_TEST_UNSET", 5, v)
	assert.Equal(t, 5, r.Value)

	t.Setenv("BRIEFCAST_TEST_INT", "8")
	r = pkgconfig.LoadEnvInt("BRIEFCAST_TEST_INT", 5, v)
	assert.Equal(t, 8, r.Value)

	for _, bad := range []string{"eight", "0", "9000"} {
		t.Setenv("BRIEFCAST_TEST_INT", bad)
		r = pkgconfig.LoadEnvInt("BRIEFCAST_TEST_INT", 5, v)
		assert.Equal(t, 5, r.Value, "value %q should fall back", bad)
		assert.True(t, r.FallbackApplied)
	}
}

func TestLoadEnvFloat(t *testing.T) {
	r := pkgconfig.LoadEnvFloat("BRIEFCAST_TEST_UNSET", 50.0, pkgconfig.ValidateNonNegativeFloat)
	assert.Equal(t, 50.0, r.Value)

	t.Setenv("BRIEFCAST_TEST_FLOAT", "12.5")
	r = pkgconfig.LoadEnvFloat("BRIEFCAST_TEST_FLOAT", 50.0, pkgconfig.ValidateNonNegativeFloat)
	assert.Equal(t, 12.5, r.Value)

	t.Setenv("BRIEFCAST_TEST_FLOAT", "-1")
	r = pkgconfig.LoadEnvFloat("BRIEFCAST_TEST_FLOAT", 50.0, pkgconfig.ValidateNonNegativeFloat)
	assert.Equal(t, 50.0, r.Value)
	assert.True(t, r.FallbackApplied)
}

func TestLoadEnvDuration(t *testing.T) {
	r := pkgconfig.LoadEnvDuration("BRIEFCAST_TEST_UNSET", 30*time.Minute, pkgconfig.ValidatePositiveDuration)
	assert.Equal(t, 30*time.Minute, r.Value)

	t.Setenv("BRIEFCAST_TEST_DUR", "1h")
	r = pkgconfig.LoadEnvDuration("BRIEFCAST_TEST_DUR", 30*time.Minute, pkgconfig.ValidatePositiveDuration)
	assert.Equal(t, time.Hour, r.Value)

	for _, bad := range []string{"fast", "-5m", "0s"} {
		t.Setenv("BRIEFCAST_TEST_DUR", bad)
		r = pkgconfig.LoadEnvDuration("BRIEFCAST_TEST_DUR", 30*time.Minute, pkgconfig.ValidatePositiveDuration)
		assert.Equal(t, 30*time.Minute, r.Value, "value %q should fall back", bad)
		assert.True(t, r.FallbackApplied)
	}
}

func TestLoadEnvBool(t *testing.T) {
	r := pkgconfig.LoadEnvBool("BRIEFCAST_TEST_UNSET", true)
	assert.Equal(t, true, r.Value)

	t.Setenv("BRIEFCAST_TEST_BOOL", "false")
	r = pkgconfig.LoadEnvBool("BRIEFCAST_TEST_BOOL", true)
	assert.Equal(t, false, r.Value)

	t.Setenv("BRIEFCAST_TEST_BOOL", "maybe")
	r = pkgconfig.LoadEnvBool("BRIEFCAST_TEST_BOOL", true)
	assert.Equal(t, true, r.Value)
	assert.True(t, r.FallbackApplied)
}

func TestValidateCronSchedule(t *testing.T) {
	assert.NoError(t, pkgconfig.ValidateCronSchedule("0 6 * * *"))
	assert.NoError(t, pkgconfig.ValidateCronSchedule("*/15 * * * 1-5"))
	assert.Error(t, pkgconfig.ValidateCronSchedule("not a schedule"))
	assert.Error(t, pkgconfig.ValidateCronSchedule("0 6 * *"))
}

func TestValidateTimezone(t *testing.T) {
	assert.NoError(t, pkgconfig.ValidateTimezone("UTC"))
	assert.NoError(t, pkgconfig.ValidateTimezone("Asia/Tokyo"))
	assert.Error(t, pkgconfig.ValidateTimezone("Mars/Olympus_Mons"))
}

func TestValidateOneOf(t *testing.T) {
	v := pkgconfig.ValidateOneOf("single", "pairwise", "all")
	assert.NoError(t, v("pairwise"))
	assert.Error(t, v("tournament"))
}
