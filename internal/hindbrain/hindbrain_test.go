package hindbrain

import (
	"testing"

	"roboone/internal/serialport"
)

func TestLinkSendReadsUpToTerminator(t *testing.T) {
	fake := serialport.NewFake([]byte("OK\rgarbage-after-terminator"))
	link := &Link{port: fake}

	response, err := link.Send("!\n", true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if response != "OK" {
		t.Errorf("Send() = %q, want %q", response, "OK")
	}
	if len(fake.Written) != 1 || string(fake.Written[0]) != "!\n" {
		t.Errorf("Written = %q, want one write of %q", fake.Written, "!\n")
	}
}

func TestLinkSendWithoutResponseDoesNotRead(t *testing.T) {
	fake := serialport.NewFake()
	link := &Link{port: fake}

	if _, err := link.Send("O1=ON\n", false); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestLinkSendNoTerminatorIsError(t *testing.T) {
	fake := serialport.NewFake([]byte("no terminator here"))
	link := &Link{port: fake}

	if _, err := link.Send("!\n", true); err == nil {
		t.Fatalf("Send() with no terminator: want error, got nil")
	}
}

func TestCheckOK(t *testing.T) {
	cases := map[string]bool{
		"OK":     true,
		"OK\r":   true,
		"ERROR":  false,
		"O":      false,
		"":       false,
	}
	for in, want := range cases {
		if got := CheckOK(in); got != want {
			t.Errorf("CheckOK(%q) = %v, want %v", in, got, want)
		}
	}
}
