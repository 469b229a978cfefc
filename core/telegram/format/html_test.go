package format

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                     "0s",
		59 * time.Second:                      "59s",
		time.Hour + 2*time.Minute:             "1h 2m",
		26*time.Hour + 3*time.Second:          "1d 2h 3s",
		90*time.Second + 500*time.Millisecond: "1m 30s",
	}
	for d, want := range cases {
		if got := Duration(d); got != want {
			t.Errorf("Duration(%s) = %q, want %q", d, got, want)
		}
	}
}

func TestMentionEscapes(t *testing.T) {
	got := Mention(7, "<Kaori>")
	want := `<a href="tg://user?id=7">&lt;Kaori&gt;</a>`
	if got != want {
		t.Fatalf("mention = %q", got)
	}
}

func TestMessageLink(t *testing.T) {
	if got := MessageLink(-1001234, 55); got != "https://t.me/c/1234/55" {
		t.Fatalf("link = %q", got)
	}
}

func TestSpoilerEscapes(t *testing.T) {
	if got := Spoiler("a<b"); got != "<tg-spoiler>a&lt;b</tg-spoiler>" {
		t.Fatalf("spoiler = %q", got)
	}
}
