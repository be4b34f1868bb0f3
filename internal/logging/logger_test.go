package logging

import (
	"bytes"
	"testing"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]log.Lvl{
		"debug":   log.DEBUG,
		" INFO ":  log.INFO,
		"warning": log.WARN,
		"error":   log.ERROR,
		"off":     log.OFF,
		"bogus":   log.INFO,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewInheritsLevelAndOutput(t *testing.T) {
	var buf bytes.Buffer
	prevOut := L().Output()
	prevLvl := L().Level()
	t.Cleanup(func() {
		SetOutput(prevOut)
		L().SetLevel(prevLvl)
	})

	SetOutput(&buf)
	SetLevel("warn")

	child := New("test")
	child.Info("dropped")
	child.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
