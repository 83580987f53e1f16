package chat

import (
	"encoding/json"
	"testing"
)

func TestMarshal_Envelope(t *testing.T) {
	payload := marshal(evtErrorNotice, errorNotice{Code: errCodeSpamWarning})
	if payload == nil {
		t.Fatal("marshal() returned nil")
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("Unmarshal envelope: %v", err)
	}
	if env.Event != evtErrorNotice {
		t.Errorf("Event = %q, want %q", env.Event, evtErrorNotice)
	}

	var notice errorNotice
	if err := json.Unmarshal(env.Data, &notice); err != nil {
		t.Fatalf("Unmarshal data: %v", err)
	}
	if notice.Code != errCodeSpamWarning {
		t.Errorf("Code = %d, want %d", notice.Code, errCodeSpamWarning)
	}
}

func TestMarshal_UnmarshalableData(t *testing.T) {
	if got := marshal(evtNewMessage, make(chan int)); got != nil {
		t.Errorf("marshal(chan) = %q, want nil", got)
	}
}
