package pfslog

import "testing"

func TestNopLoggerDiscardsEverything(t *testing.T) {
	if Nop.IsDebugEnabled() {
		t.Fatal("Nop logger must never report debug enabled")
	}
	if Nop.IsInfoEnabled() {
		t.Fatal("Nop logger must never report info enabled")
	}
	// These must not panic.
	Nop.Debugf("x %d", 1)
	Nop.Errorf("x %d", 1)
	Nop.Infof("x %d", 1)
	Nop.Printf("x %d", 1)
	Nop.Warnf("x %d", 1)
}

func TestCLIRespectsVerbosityFlags(t *testing.T) {
	log := &CLI{DisableColors: true}
	if log.IsInfoEnabled() {
		t.Fatal("CLI with no flags set should not report info enabled")
	}
	log.IsVerbose = true
	if !log.IsInfoEnabled() {
		t.Fatal("CLI with IsVerbose set should report info enabled")
	}
	if log.IsDebugEnabled() {
		t.Fatal("CLI without IsDebug should not report debug enabled")
	}
}
