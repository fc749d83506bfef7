package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestWarnf(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()
	ResetWarnings()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Warnf("unknown road %d", 9)
	if got != "warning: unknown road 9" {
		t.Errorf("Warnf wrote %q", got)
	}
	if Warnings() != 1 {
		t.Errorf("Warnings() = %d, want 1", Warnings())
	}

	ResetWarnings()
	if Warnings() != 0 {
		t.Errorf("Warnings() after reset = %d, want 0", Warnings())
	}
}
