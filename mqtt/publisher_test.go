package mqtt

import (
	"encoding/json"
	"testing"

	"histlink/config"
	"histlink/namespace"
)

func newTestPublisher() *Publisher {
	cfg := &config.MQTTConfig{
		Broker:   "localhost",
		Port:     1883,
		ClientID: "histlink-test",
	}
	return NewPublisher(cfg, namespace.New("plant1", ""))
}

func TestPublisher_Address(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		p := newTestPublisher()
		if got := p.Address(); got != "tcp://localhost:1883" {
			t.Errorf("Address = %q", got)
		}
	})

	t.Run("tls", func(t *testing.T) {
		cfg := &config.MQTTConfig{Broker: "broker", Port: 8883, UseTLS: true}
		p := NewPublisher(cfg, namespace.New("plant1", ""))
		if got := p.Address(); got != "ssl://broker:8883" {
			t.Errorf("Address = %q", got)
		}
	})
}

func TestPublisher_NotRunning(t *testing.T) {
	p := newTestPublisher()

	if p.IsRunning() {
		t.Error("publisher should not be running before Start")
	}
	if p.Publish("FIC101.PV", 41.5, "") {
		t.Error("Publish should return false when not connected")
	}
	// Stop before Start must not panic
	p.Stop()
}

func TestTagMessageShape(t *testing.T) {
	msg := TagMessage{
		Namespace: "plant1",
		Tag:       "FIC101.PV",
		Value:     41.5,
		Timestamp: "2026-08-30T12:00:00Z",
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["namespace"] != "plant1" {
		t.Errorf("namespace = %v", decoded["namespace"])
	}
	if decoded["tag"] != "FIC101.PV" {
		t.Errorf("tag = %v", decoded["tag"])
	}
	if decoded["value"] != 41.5 {
		t.Errorf("value = %v", decoded["value"])
	}
}

func TestWriteResponseOmitsEmptyFields(t *testing.T) {
	resp := WriteResponse{Tag: "TI100", Value: 1, Success: true, Timestamp: "t"}
	payload, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	json.Unmarshal(payload, &decoded)
	if _, present := decoded["error"]; present {
		t.Error("error key should be omitted on success")
	}
	if _, present := decoded["location"]; present {
		t.Error("location key should be omitted when empty")
	}
}
