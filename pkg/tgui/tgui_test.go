package tgui

import (
	"strings"
	"testing"
)

func TestCardEscapesValues(t *testing.T) {
	got := NewCard(B("New message")).
		Field("Firstname", "<Ann>").
		Field("Username", "").
		CodeField("Chat ID", "42").
		String()
	want := "<b>New message</b>\n\n" +
		"<b>Firstname:</b> &lt;Ann&gt;\n" +
		"<b>Username:</b> -\n" +
		"<b>Chat ID:</b> <code>42</code>"
	if got != want {
		t.Fatalf("card mismatch:\n%s\nwant:\n%s", got, want)
	}
}

func TestYesNo(t *testing.T) {
	rm, err := YesNo("Yes", "confirm_yes", "No", "confirm_no")
	if err != nil {
		t.Fatalf("YesNo: %v", err)
	}
	if len(rm.InlineKeyboard) != 1 || len(rm.InlineKeyboard[0]) != 2 {
		t.Fatalf("unexpected keyboard: %+v", rm.InlineKeyboard)
	}
	if d := rm.InlineKeyboard[0][0].Data; d != "confirm_yes" {
		t.Fatalf("first button data %q", d)
	}
}

func TestInlineRejectsLongData(t *testing.T) {
	_, err := NewInline().Row(Btn("x", strings.Repeat("a", MaxCallbackDataLen+1))).Markup()
	if err != ErrCallbackDataTooLong {
		t.Fatalf("expected ErrCallbackDataTooLong, got %v", err)
	}
}
