package btsnoop

import "testing"

func TestSetLogger(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	custom := orig.ChildLogger(map[string]interface{}{"test": true})
	SetLogger(custom)
	if GetLogger() != custom {
		t.Fatal("installed logger not returned")
	}
}

func TestChildLoggerIsDistinct(t *testing.T) {
	l := GetLogger()
	if c := l.ChildLogger(map[string]interface{}{"rule": "x"}); c == l {
		t.Fatal("child logger should be a new instance")
	}
}
