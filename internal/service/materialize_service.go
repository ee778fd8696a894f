package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"mime"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waveroom/api/internal/client"
	"github.com/waveroom/api/internal/model"
	"github.com/waveroom/api/internal/provider"
	"github.com/waveroom/api/internal/store"
)

const (
	defaultMaterializeConcurrency = 4
	maxFilenameLen                = 80
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Materializer turns provider-reported output references into durably
// stored artifact records: fetch each source URL, re-upload the bytes into
// owned storage under the job's namespace, persist one artifact row per
// output that made it.
type Materializer struct {
	storage     client.StorageClient
	fetcher     client.Fetcher
	artifacts   store.ArtifactStore
	concurrency int
	artifactTTL time.Duration
}

func NewMaterializer(storage client.StorageClient, fetcher client.Fetcher, artifacts store.ArtifactStore, concurrency int, artifactTTL time.Duration) *Materializer {
	if concurrency <= 0 {
		concurrency = defaultMaterializeConcurrency
	}
	if artifactTTL <= 0 {
		artifactTTL = 72 * time.Hour
	}
	return &Materializer{
		storage:     storage,
		fetcher:     fetcher,
		artifacts:   artifacts,
		concurrency: concurrency,
		artifactTTL: artifactTTL,
	}
}

// Materialize downloads and re-uploads every output with a bounded worker
// pool. An output whose fetch fails is dropped from the result set; partial
// materialization is preferred over failing the job.
func (m *Materializer) Materialize(ctx context.Context, job *model.Job, outputs []provider.Output) []*model.Artifact {
	if len(outputs) == 0 {
		return nil
	}

	filenames := deriveFilenames(outputs)

	results := make([]*model.Artifact, len(outputs))
	sem := make(chan struct{}, m.concurrency)
	var wg sync.WaitGroup

	for i := range outputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			artifact, err := m.materializeOne(ctx, job, outputs[i], filenames[i])
			if err != nil {
				// soft failure: drop this output, keep the rest
				log.Printf("[Materialize] Job %s: dropping output %q: %v", job.ID, outputs[i].URL, err)
				return
			}
			results[i] = artifact
		}(i)
	}
	wg.Wait()

	// persist in input order
	artifacts := make([]*model.Artifact, 0, len(outputs))
	for _, a := range results {
		if a == nil {
			continue
		}
		if err := m.artifacts.CreateArtifact(ctx, a); err != nil {
			log.Printf("[Materialize] Job %s: failed to persist artifact %s: %v", job.ID, a.ID, err)
			continue
		}
		artifacts = append(artifacts, a)
	}
	return artifacts
}

func (m *Materializer) materializeOne(ctx context.Context, job *model.Job, out provider.Output, filename string) (*model.Artifact, error) {
	res, err := m.fetcher.Fetch(ctx, out.URL)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, fmt.Errorf("fetch returned status %d", res.StatusCode)
	}

	key := fmt.Sprintf("artifacts/%s/%s/%s", job.SessionID, job.ID, filename)
	contentType := res.ContentType
	if contentType == "" {
		contentType = contentTypeFor(filename)
	}

	url, err := m.storage.Upload(ctx, key, bytes.NewReader(res.Body), contentType)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	now := time.Now()
	return &model.Artifact{
		ID:         uuid.New().String(),
		JobID:      job.ID,
		SessionID:  job.SessionID,
		StorageKey: key,
		StorageURL: url,
		Format:     extOf(filename),
		SizeBytes:  int64(len(res.Body)),
		ExpiresAt:  now.Add(m.artifactTTL),
		CreatedAt:  now,
	}, nil
}

// deriveFilenames yields one collision-free filename per output,
// deterministically in input order. Provider name hints are sanitized;
// outputs without a usable hint get output-N.<ext>.
func deriveFilenames(outputs []provider.Output) []string {
	names := make([]string, len(outputs))
	seen := make(map[string]int)

	for i, out := range outputs {
		name := sanitizeFilename(out.Name)
		ext := strings.ToLower(out.Format)
		if ext == "" {
			ext = extOf(out.URL)
		}
		if ext == "" {
			ext = "bin"
		}

		if name == "" {
			name = fmt.Sprintf("output-%d.%s", i+1, ext)
		} else if extOf(name) == "" {
			name = name + "." + ext
		}

		for {
			n, ok := seen[name]
			if !ok {
				seen[name] = 1
				break
			}
			seen[name] = n + 1
			base := strings.TrimSuffix(name, path.Ext(name))
			name = fmt.Sprintf("%s-%d%s", base, n+1, path.Ext(name))
		}
		names[i] = name
	}
	return names
}

// sanitizeFilename strips a provider filename hint down to a safe character
// set and caps its length. Returns "" when nothing usable remains.
func sanitizeFilename(hint string) string {
	if hint == "" {
		return ""
	}
	// hints sometimes arrive as full paths or URLs
	hint = path.Base(strings.ReplaceAll(hint, "\\", "/"))

	clean := unsafeFilenameChars.ReplaceAllString(hint, "_")
	clean = strings.Trim(clean, "._-")
	if len(clean) > maxFilenameLen {
		clean = clean[:maxFilenameLen]
	}
	if clean == "" || clean == "." || clean == ".." {
		return ""
	}
	return clean
}

// extOf returns the lowercase extension of a filename or URL path, without
// the dot.
func extOf(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(path.Ext(filename)); ct != "" {
		return ct
	}
	switch extOf(filename) {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/flac"
	case "mid", "midi":
		return "audio/midi"
	case "zip":
		return "application/zip"
	case "json":
		return "application/json"
	}
	return "application/octet-stream"
}
