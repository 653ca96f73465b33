package main

import (
	"testing"

	"github.com/dexhub/node/internal/config"
	"github.com/dexhub/node/internal/speech"
)

func TestBuildSynthesizerLocal(t *testing.T) {
	s, err := buildSynthesizer(&config.Config{TTSMode: "local", TTSCommand: "say"})
	if err != nil {
		t.Fatalf("buildSynthesizer failed: %v", err)
	}
	if _, ok := s.(*speech.CommandSynthesizer); !ok {
		t.Errorf("expected CommandSynthesizer, got %T", s)
	}
}

func TestBuildSynthesizerCloud(t *testing.T) {
	s, err := buildSynthesizer(&config.Config{
		TTSMode:     "cloud",
		CloudTTSURL: "https://example.invalid/tts",
	})
	if err != nil {
		t.Fatalf("buildSynthesizer failed: %v", err)
	}
	if _, ok := s.(*speech.CloudSynthesizer); !ok {
		t.Errorf("expected CloudSynthesizer, got %T", s)
	}
}

func TestBuildSynthesizerCloudRequiresURL(t *testing.T) {
	if _, err := buildSynthesizer(&config.Config{TTSMode: "cloud"}); err == nil {
		t.Error("expected error when cloud_tts_url is missing")
	}
}

func TestBuildSynthesizerUnknownMode(t *testing.T) {
	if _, err := buildSynthesizer(&config.Config{TTSMode: "telepathy"}); err == nil {
		t.Error("expected error for unknown tts_mode")
	}
}

func TestListenPort(t *testing.T) {
	cases := []struct {
		addr string
		want int
	}{
		{"0.0.0.0:5000", 5000},
		{"127.0.0.1:8080", 8080},
		{"no-port", 5000},
		{"", 5000},
	}
	for _, tc := range cases {
		if got := listenPort(tc.addr); got != tc.want {
			t.Errorf("listenPort(%q) = %d, want %d", tc.addr, got, tc.want)
		}
	}
}
