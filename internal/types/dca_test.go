package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFrequencyInterval(t *testing.T) {
	tests := []struct {
		frequency Frequency
		interval  time.Duration
		ok        bool
	}{
		{FrequencyDaily, 24 * time.Hour, true},
		{FrequencyWeekly, 7 * 24 * time.Hour, true},
		{FrequencyMonthly, 30 * 24 * time.Hour, true},
		{"yearly", 0, false},
		{"", 0, false},
		{"Daily", 0, false},
	}

	for _, tt := range tests {
		interval, ok := tt.frequency.Interval()
		assert.Equal(t, tt.ok, ok, "frequency %q", tt.frequency)
		assert.Equal(t, tt.interval, interval, "frequency %q", tt.frequency)
	}
}

func TestDCAConfigValidate(t *testing.T) {
	valid := DCAConfig{
		TargetToken: "cbBTC",
		AmountUSD:   decimal.NewFromInt(50),
		Frequency:   FrequencyWeekly,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*DCAConfig)
	}{
		{"zero amount", func(c *DCAConfig) { c.AmountUSD = decimal.Zero }},
		{"negative amount", func(c *DCAConfig) { c.AmountUSD = decimal.NewFromInt(-1) }},
		{"above ceiling", func(c *DCAConfig) { c.AmountUSD = decimal.RequireFromString("1000.01") }},
		{"bad frequency", func(c *DCAConfig) { c.Frequency = "fortnightly" }},
		{"empty target token", func(c *DCAConfig) { c.TargetToken = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			assert.Error(t, config.Validate())
		})
	}

	t.Run("ceiling is inclusive", func(t *testing.T) {
		config := valid
		config.AmountUSD = decimal.NewFromInt(1000)
		assert.NoError(t, config.Validate())
	})
}

func TestDCAConfigPatchValidate(t *testing.T) {
	empty := DCAConfigPatch{}
	assert.NoError(t, empty.Validate(), "empty patch touches nothing")

	bad := decimal.NewFromInt(0)
	overLimit := decimal.RequireFromString("1000.50")
	badFreq := Frequency("hourly")
	emptyToken := ""

	assert.Error(t, (&DCAConfigPatch{AmountUSD: &bad}).Validate())
	assert.Error(t, (&DCAConfigPatch{AmountUSD: &overLimit}).Validate())
	assert.Error(t, (&DCAConfigPatch{Frequency: &badFreq}).Validate())
	assert.Error(t, (&DCAConfigPatch{TargetToken: &emptyToken}).Validate())

	good := decimal.NewFromInt(25)
	freq := FrequencyMonthly
	assert.NoError(t, (&DCAConfigPatch{AmountUSD: &good, Frequency: &freq}).Validate())
}
