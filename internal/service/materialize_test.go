package service

import (
	"context"
	"testing"

	"github.com/waveroom/api/internal/provider"
)

func TestMaterialize_NamedStemsPlusArchive(t *testing.T) {
	env := newTestEnv(t)
	job := env.seedJob(t, nil)

	outputs := []provider.Output{
		{Name: "vocals.wav", URL: "https://out.test/1.wav", Format: "wav"},
		{Name: "drums.wav", URL: "https://out.test/2.wav", Format: "wav"},
		{Name: "bass.wav", URL: "https://out.test/3.wav", Format: "wav"},
		{Name: "other.wav", URL: "https://out.test/4.wav", Format: "wav"},
		{Name: "stems.zip", URL: "https://out.test/5.zip", Format: "zip"},
	}
	for _, o := range outputs {
		env.fetcher.serve(o.URL, []byte("data-"+o.Name))
	}

	artifacts := env.material.Materialize(context.Background(), job, outputs)
	if len(artifacts) != 5 {
		t.Fatalf("expected 5 artifacts, got %d", len(artifacts))
	}

	keys := make(map[string]bool)
	for _, a := range artifacts {
		if keys[a.StorageKey] {
			t.Errorf("duplicate storage key %s", a.StorageKey)
		}
		keys[a.StorageKey] = true
		if a.JobID != job.ID || a.SessionID != job.SessionID {
			t.Errorf("artifact %s has wrong ownership", a.ID)
		}
		if a.SizeBytes == 0 {
			t.Errorf("artifact %s has zero size", a.ID)
		}
	}
}

func TestMaterialize_DuplicateFilenamesGetDistinctKeys(t *testing.T) {
	env := newTestEnv(t)
	job := env.seedJob(t, nil)

	outputs := []provider.Output{
		{Name: "vocals.wav", URL: "https://out.test/a.wav"},
		{Name: "vocals.wav", URL: "https://out.test/b.wav"},
	}
	env.fetcher.serve(outputs[0].URL, []byte("aaaa"))
	env.fetcher.serve(outputs[1].URL, []byte("bbbb"))

	artifacts := env.material.Materialize(context.Background(), job, outputs)
	if len(artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(artifacts))
	}
	if artifacts[0].StorageKey == artifacts[1].StorageKey {
		t.Fatalf("colliding filenames produced the same key: %s", artifacts[0].StorageKey)
	}
}

func TestMaterialize_FailedFetchIsDropped(t *testing.T) {
	env := newTestEnv(t)
	job := env.seedJob(t, nil)

	outputs := make([]provider.Output, 5)
	for i := range outputs {
		url := "https://out.test/" + string(rune('a'+i)) + ".wav"
		outputs[i] = provider.Output{URL: url, Format: "wav"}
		if i != 2 { // third URL stays unknown → 404 soft failure
			env.fetcher.serve(url, []byte("x"))
		}
	}

	artifacts := env.material.Materialize(context.Background(), job, outputs)
	if len(artifacts) != 4 {
		t.Fatalf("expected 4 artifacts after one dropped fetch, got %d", len(artifacts))
	}
}

func TestMaterialize_NoOutputs(t *testing.T) {
	env := newTestEnv(t)
	job := env.seedJob(t, nil)

	if got := env.material.Materialize(context.Background(), job, nil); len(got) != 0 {
		t.Fatalf("expected no artifacts, got %d", len(got))
	}
}

func TestDeriveFilenames(t *testing.T) {
	tests := []struct {
		name    string
		outputs []provider.Output
		want    []string
	}{
		{
			name: "hints kept and sanitized",
			outputs: []provider.Output{
				{Name: "My Vocals (final).wav", URL: "https://x/y.wav"},
				{Name: "../../etc/passwd", URL: "https://x/z.wav", Format: "wav"},
			},
			want: []string{"My_Vocals_final_.wav", "passwd.wav"},
		},
		{
			name: "synthesized when no hint",
			outputs: []provider.Output{
				{URL: "https://x/audio.mp3"},
				{URL: "https://x/noext", Format: "flac"},
				{URL: "https://x/none"},
			},
			want: []string{"output-1.mp3", "output-2.flac", "output-3.bin"},
		},
		{
			name: "collisions get numeric suffixes in order",
			outputs: []provider.Output{
				{Name: "stem.wav", URL: "https://x/1.wav"},
				{Name: "stem.wav", URL: "https://x/2.wav"},
				{Name: "stem.wav", URL: "https://x/3.wav"},
			},
			want: []string{"stem.wav", "stem-2.wav", "stem-3.wav"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveFilenames(tt.outputs)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d names, got %d", len(tt.want), len(got))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("name[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"vocals.wav", "vocals.wav"},
		{"a b/c d.mp3", "c_d.mp3"},
		{"", ""},
		{"...", ""},
		{"https://host/path/track.flac", "track.flac"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
