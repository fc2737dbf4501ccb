package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.PollRate != time.Second {
		t.Errorf("expected 1s poll rate, got %v", cfg.PollRate)
	}
	if !cfg.Web.Enabled {
		t.Error("expected Web.Enabled true by default")
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected Web port 8080, got %d", cfg.Web.Port)
	}
	if cfg.Web.Host != "0.0.0.0" {
		t.Errorf("expected Web host 0.0.0.0, got %s", cfg.Web.Host)
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.PollRate != time.Second {
			t.Errorf("expected default poll rate, got %v", cfg.PollRate)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")

		cfg := DefaultConfig()
		cfg.Namespace = "plant1"
		cfg.DataServer = "PISRV01"
		cfg.Historian.Host = "pi.example.com"
		cfg.Historian.Username = "svc-histlink"
		cfg.Historian.Insecure = true
		cfg.PollRate = 5 * time.Second
		cfg.AddTag(TagConfig{Name: "FIC101.PV"})
		cfg.AddTag(TagConfig{Name: "TI100", WebID: "w-abc", IgnoreChanges: true})
		cfg.MQTT = MQTTConfig{Enabled: true, Broker: "mqtt.example.com", Port: 1883, ClientID: "histlink"}
		cfg.Kafka = KafkaConfig{Enabled: true, Brokers: []string{"k1:9092"}, RequiredAcks: -1}
		cfg.Valkey = ValkeyConfig{Enabled: true, Address: "localhost:6379", KeyTTL: time.Minute}

		if err := cfg.Save(path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if loaded.Namespace != "plant1" {
			t.Errorf("namespace = %q", loaded.Namespace)
		}
		if loaded.Historian.Host != "pi.example.com" {
			t.Errorf("historian host = %q", loaded.Historian.Host)
		}
		if !loaded.Historian.Insecure {
			t.Error("insecure flag lost")
		}
		if loaded.PollRate != 5*time.Second {
			t.Errorf("poll rate = %v", loaded.PollRate)
		}
		if len(loaded.Tags) != 2 {
			t.Fatalf("expected 2 tags, got %d", len(loaded.Tags))
		}
		if loaded.Tags[1].WebID != "w-abc" || !loaded.Tags[1].IgnoreChanges {
			t.Errorf("tag 1 round trip: %+v", loaded.Tags[1])
		}
		if !loaded.MQTT.Enabled || loaded.MQTT.Broker != "mqtt.example.com" {
			t.Errorf("mqtt round trip: %+v", loaded.MQTT)
		}
		if loaded.Kafka.RequiredAcks != -1 {
			t.Errorf("kafka acks = %d", loaded.Kafka.RequiredAcks)
		}
		if loaded.Valkey.KeyTTL != time.Minute {
			t.Errorf("valkey ttl = %v", loaded.Valkey.KeyTTL)
		}
	})

	t.Run("save creates directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sub", "dir", "config.yaml")
		cfg := DefaultConfig()
		if err := cfg.Save(path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("config file not created: %v", err)
		}
	})
}

func TestTagHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AddTag(TagConfig{Name: "a"})
	cfg.AddTag(TagConfig{Name: "b"})

	if cfg.FindTag("a") == nil {
		t.Error("FindTag(a) returned nil")
	}
	if cfg.FindTag("missing") != nil {
		t.Error("FindTag(missing) should return nil")
	}

	if !cfg.UpdateTag("b", TagConfig{Name: "b", IgnoreChanges: true}) {
		t.Error("UpdateTag(b) failed")
	}
	if !cfg.FindTag("b").IgnoreChanges {
		t.Error("UpdateTag did not apply")
	}

	if !cfg.RemoveTag("a") {
		t.Error("RemoveTag(a) failed")
	}
	if cfg.RemoveTag("a") {
		t.Error("RemoveTag(a) should fail the second time")
	}
	if len(cfg.Tags) != 1 {
		t.Errorf("expected 1 tag, got %d", len(cfg.Tags))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {
			c.Namespace = "plant1"
			c.Historian.Host = "pi.example.com"
			c.DataServer = "PISRV01"
		}, false},
		{"missing namespace", func(c *Config) {
			c.Historian.Host = "pi.example.com"
			c.DataServer = "PISRV01"
		}, true},
		{"bad namespace", func(c *Config) {
			c.Namespace = "plant 1"
			c.Historian.Host = "pi.example.com"
			c.DataServer = "PISRV01"
		}, true},
		{"missing host", func(c *Config) {
			c.Namespace = "plant1"
			c.DataServer = "PISRV01"
		}, true},
		{"missing dataserver", func(c *Config) {
			c.Namespace = "plant1"
			c.Historian.Host = "pi.example.com"
		}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestIsValidNamespace(t *testing.T) {
	tests := []struct {
		ns       string
		expected bool
	}{
		{"plant1", true},
		{"plant-1.line_a", true},
		{"", false},
		{"plant 1", false},
		{"plant/1", false},
	}

	for _, tc := range tests {
		if got := IsValidNamespace(tc.ns); got != tc.expected {
			t.Errorf("IsValidNamespace(%q) = %v, want %v", tc.ns, got, tc.expected)
		}
	}
}
