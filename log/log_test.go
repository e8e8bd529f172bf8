package log

import "testing"

type fakeTB struct {
	errs []string
	logs []string
}

func (f *fakeTB) Errorf(format string, args ...interface{}) { f.errs = append(f.errs, format) }
func (f *fakeTB) Fatalf(format string, args ...interface{}) { f.errs = append(f.errs, format) }
func (f *fakeTB) Logf(format string, args ...interface{})   { f.logs = append(f.logs, format) }
func (f *fakeTB) Helper()                                   {}

func TestTestingLoggerDelegatesToTB(t *testing.T) {
	fb := &fakeTB{}
	l := &Testing{TB: fb}
	l.Debug("hello", "k", "v")
	if len(fb.logs) != 1 {
		t.Fatalf("want 1 log line, got %d", len(fb.logs))
	}
	l.Error("oops")
	if len(fb.errs) != 1 {
		t.Fatalf("want 1 error line, got %d", len(fb.errs))
	}
	tagged := l.With("req", "r1")
	tagged.Debug("tagged")
	if len(fb.logs) != 2 {
		t.Fatalf("want 2 log lines after With, got %d", len(fb.logs))
	}
}
