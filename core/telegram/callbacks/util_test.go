package callbacks

import (
	"testing"

	"github.com/m3rciful/kaoribot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func TestDataParsesBack(t *testing.T) {
	data := Data("verify", F("val", "AB12CD"), F("user_id", int64(42)), F("note", "two words"))
	if len(data) > MaxDataLen {
		t.Fatalf("data too long: %d", len(data))
	}
	in := commands.ParseCallback(data, "/", "")
	if in.Command != "verify" {
		t.Fatalf("command = %q", in.Command)
	}
	if in.Flags["val"] != "AB12CD" || in.Flags["note"] != "two words" {
		t.Fatalf("flags = %v", in.Flags)
	}
	if id, ok := in.Int64("user_id"); !ok || id != 42 {
		t.Fatalf("user_id = %d", id)
	}
}

func TestKey(t *testing.T) {
	cb := &tele.Callback{Data: "cmd:ttt r:1 c:2"}
	if got := Key(cb); got != "ttt" {
		t.Fatalf("key = %q", got)
	}
	if got := Raw(&tele.Callback{Data: "\fbtn|payload", Unique: "btn"}); got != "payload" {
		t.Fatalf("raw = %q", got)
	}
}
