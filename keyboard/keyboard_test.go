//go:build linux && !baremetal

package keyboard

import (
	"testing"

	"github.com/kenshaw/evdev"

	"quadenc/eventpipe"
)

func TestCommandForKey(t *testing.T) {
	tests := []struct {
		key  evdev.KeyType
		want eventpipe.Command
	}{
		{evdev.KeyRight, eventpipe.Command{Kind: eventpipe.Turn, N: 1}},
		{evdev.KeyLeft, eventpipe.Command{Kind: eventpipe.Turn, N: -1}},
		{evdev.KeyUp, eventpipe.Command{Kind: eventpipe.Step, N: 1}},
		{evdev.KeyDown, eventpipe.Command{Kind: eventpipe.Step, N: -1}},
		{evdev.KeyEnter, eventpipe.Command{Kind: eventpipe.Reset}},
	}
	for _, tt := range tests {
		got, ok := commandForKey(tt.key)
		if !ok || got != tt.want {
			t.Errorf("%v: expected %+v, got %+v (ok=%v)", tt.key, tt.want, got, ok)
		}
	}

	if _, ok := commandForKey(evdev.KeyA); ok {
		t.Error("expected unmapped key to be ignored")
	}
}

func TestNew_NoDevice(t *testing.T) {
	k, err := New(Config{}, nil)
	if k != nil || err != nil {
		t.Errorf("expected nil keyboard and nil error, got %v, %v", k, err)
	}
}
