package middleware

import (
	"path/filepath"
	"testing"
)

func panicky() {
	var m map[string]int
	m["boom"] = 1
}

func TestPanicSite(t *testing.T) {
	var file string
	var line int
	func() {
		defer func() {
			if recover() != nil {
				file, line = PanicSite()
			}
		}()
		panicky()
	}()
	if filepath.Base(file) != "recover_test.go" || line == 0 {
		t.Fatalf("site = %s:%d", file, line)
	}
}
