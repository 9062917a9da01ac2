package bridge

import (
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"navigate", `{"type":"NAVIGATE","targetId":"B"}`, "B", true},
		{"extra fields", `{"type":"NAVIGATE","targetId":"B","x":1}`, "B", true},
		{"other type", `{"type":"CLICK","targetId":"B"}`, "", false},
		{"lowercase type", `{"type":"navigate","targetId":"B"}`, "", false},
		{"missing target", `{"type":"NAVIGATE"}`, "", false},
		{"empty target", `{"type":"NAVIGATE","targetId":""}`, "", false},
		{"numeric target", `{"type":"NAVIGATE","targetId":7}`, "", false},
		{"not json", `NAVIGATE B`, "", false},
		{"array", `["NAVIGATE","B"]`, "", false},
	}
	for _, tt := range tests {
		got, ok := Decode([]byte(tt.raw))
		if ok != tt.wantOK || got.TargetID != tt.want {
			t.Fatalf("%s: got=(%q,%v) want=(%q,%v)", tt.name, got.TargetID, ok, tt.want, tt.wantOK)
		}
	}
}

func TestListenerForwardsOnlyNavigate(t *testing.T) {
	var got []string
	l := Attach(ReceiverFunc(func(id string) { got = append(got, id) }))

	l.Handle([]byte(`{"type":"CLICK","targetId":"B"}`))
	if len(got) != 0 {
		t.Fatalf("CLICK must be ignored, got=%v", got)
	}
	if !l.Handle([]byte(`{"type":"NAVIGATE","targetId":"B"}`)) {
		t.Fatal("NAVIGATE should be forwarded")
	}
	if len(got) != 1 || got[0] != "B" {
		t.Fatalf("got=%v want=[B]", got)
	}
}

func TestListenerIgnoresMessagesAfterClose(t *testing.T) {
	calls := 0
	l := Attach(ReceiverFunc(func(string) { calls++ }))
	l.Close()

	if l.Handle([]byte(`{"type":"NAVIGATE","targetId":"B"}`)) {
		t.Fatal("closed listener must not forward")
	}
	if calls != 0 || !l.Closed() {
		t.Fatalf("calls=%d closed=%v", calls, l.Closed())
	}
}
