package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		prefix, subject, want string
	}{
		{"[profilemig]", "capture failed", "[profilemig] capture failed"},
		{"  ", "done", "done"},
		{"", "done", "done"},
	}
	for _, tc := range tests {
		if got := Subject(tc.prefix, tc.subject); got != tc.want {
			t.Errorf("Subject(%q, %q) = %q, want %q", tc.prefix, tc.subject, got, tc.want)
		}
	}
}

func TestMailer_Message(t *testing.T) {
	m := NewMailer(MailOptions{
		Server:        "smtp.corp.local",
		Port:          25,
		From:          "osd@corp.local",
		To:            []string{"helpdesk@corp.local", "ops@corp.local"},
		SubjectPrefix: "[profilemig]",
	})
	msg, err := m.Message("capture failed on PC-OLD", "details")
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if got := msg.GetToString(); len(got) != 2 {
		t.Errorf("To = %v, want two recipients", got)
	}
	if got := msg.GetGenHeader("Subject"); len(got) != 1 || got[0] != "[profilemig] capture failed on PC-OLD" {
		t.Errorf("Subject = %v", got)
	}
}

func TestMailer_Message_BadFrom(t *testing.T) {
	m := NewMailer(MailOptions{From: "not an address", To: []string{"ops@corp.local"}})
	if _, err := m.Message("x", "y"); err == nil {
		t.Fatal("expected error for invalid from address")
	}
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(context.Context, string, string) error {
	f.calls++
	return errors.New("smtp down")
}

func TestLogged_SwallowsErrors(t *testing.T) {
	next := &failingNotifier{}
	l := Logged{Next: next, Log: zerolog.Nop()}
	if err := l.Notify(context.Background(), "s", "b"); err != nil {
		t.Fatalf("Logged.Notify returned %v, want nil", err)
	}
	if next.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", next.calls)
	}
}

func TestDiscard(t *testing.T) {
	if err := (Discard{}).Notify(context.Background(), "s", "b"); err != nil {
		t.Fatal(err)
	}
}
