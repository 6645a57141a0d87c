package cdp

import (
	"encoding/json"
	"testing"
)

func TestWireRequestMarshalsOmitsEmptyParams(t *testing.T) {
	req := wireRequest{ID: 1, Method: "Page.enable"}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := got["params"]; ok {
		t.Error("expected params omitted when nil")
	}
	if got["method"] != "Page.enable" {
		t.Errorf("method = %v", got["method"])
	}
}

func TestWireFrameDecodesResponseAndEvent(t *testing.T) {
	resp := []byte(`{"id":3,"result":{"ok":true}}`)
	var f wireFrame
	if err := json.Unmarshal(resp, &f); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if f.ID != 3 || f.Method != "" {
		t.Errorf("unexpected response frame: %+v", f)
	}

	event := []byte(`{"method":"Page.loadEventFired","params":{"timestamp":1.0}}`)
	if err := json.Unmarshal(event, &f); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if f.Method != "Page.loadEventFired" || f.ID != 0 {
		t.Errorf("unexpected event frame: %+v", f)
	}
}

func TestWireFrameDecodesError(t *testing.T) {
	errFrame := []byte(`{"id":5,"error":{"code":-32000,"message":"Cannot find context"}}`)
	var f wireFrame
	if err := json.Unmarshal(errFrame, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Error == nil || f.Error.Message != "Cannot find context" {
		t.Errorf("unexpected error frame: %+v", f)
	}
}
