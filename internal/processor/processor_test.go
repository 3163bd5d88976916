package processor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spacedriveapp/spacedrive-sub011/internal/entrystore"
	"github.com/spacedriveapp/spacedrive-sub011/internal/sidecar"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume"
	"github.com/spacedriveapp/spacedrive-sub011/internal/volume/memory"
)

func TestDetectMIMEKnownExtensions(t *testing.T) {
	cases := map[string]string{
		"photo.jpg":  "image/jpeg",
		"photo.JPEG": "image/jpeg",
		"clip.mp4":   "video/mp4",
		"note.bin":   "application/octet-stream",
	}
	for name, want := range cases {
		if got := DetectMIME(name); got != want {
			t.Errorf("DetectMIME(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestRegistryDispatchesByMIME(t *testing.T) {
	r := NewRegistry()
	store, _ := newTestSidecarStore(t)
	backend := memory.New()
	proc := NewThumbnailProcessor(store, backend, ThumbnailVariant{Name: "small", Ext: "thumb"})
	r.Register(proc)

	got, ok := r.Lookup("image/jpeg")
	if !ok || got.Name() != "thumbnail" {
		t.Fatalf("expected thumbnail processor registered for image/jpeg, got %v %v", got, ok)
	}
	if _, ok := r.Lookup("audio/mpeg"); ok {
		t.Fatal("expected no processor registered for audio/mpeg")
	}
}

func newTestSidecarStore(t *testing.T) (*sidecar.Store, string) {
	t.Helper()
	dir := t.TempDir()
	return sidecar.New(dir, t.TempDir()), dir
}

func TestThumbnailProcessorWritesSidecarAndDedupesGeneration(t *testing.T) {
	backend := memory.New()
	backend.PutDir("root")
	backend.PutFile("root/photo.jpg", []byte("jpeg-bytes"), time.Unix(1000, 0))

	store, _ := newTestSidecarStore(t)
	proc := NewThumbnailProcessor(store, backend, ThumbnailVariant{Name: "small", Ext: "thumb"})

	entry := entrystore.Entry{UUID: "entry-1", Name: "photo.jpg"}

	should, err := proc.ShouldProcess(context.Background(), entry)
	if err != nil {
		t.Fatalf("ShouldProcess: %v", err)
	}
	if !should {
		t.Fatal("expected ShouldProcess true before any sidecar exists")
	}

	var calls int32
	backendCounting := &countingReadBackend{Backend: backend, reads: &calls}

	var results [2]Result
	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			results[i] = proc.Process(context.Background(), backendCounting, "root/photo.jpg", entry)
			done <- struct{}{}
		}(i)
	}
	<-done
	<-done

	for i, r := range results {
		if !r.Success {
			t.Fatalf("result %d failed: %v", i, r.Err)
		}
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("got %d backend reads, want exactly 1 (GenerateOnce should dedupe)", calls)
	}

	should, err = proc.ShouldProcess(context.Background(), entry)
	if err != nil {
		t.Fatalf("ShouldProcess after generation: %v", err)
	}
	if should {
		t.Fatal("expected ShouldProcess false once the sidecar exists")
	}
}

type countingReadBackend struct {
	*memory.Backend
	reads *int32
}

func (b *countingReadBackend) Read(ctx context.Context, path string) ([]byte, error) {
	atomic.AddInt32(b.reads, 1)
	return b.Backend.Read(ctx, path)
}

func TestPoolRunsWithinWorkerBound(t *testing.T) {
	backend := memory.New()
	var concurrent, maxConcurrent int32

	probe := &probingProcessor{onProcess: func() {
		n := atomic.AddInt32(&concurrent, 1)
		for {
			m := atomic.LoadInt32(&maxConcurrent)
			if n <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
	}}

	pool := NewPool(backend, 2)
	var tasks []Task
	for i := 0; i < 8; i++ {
		tasks = append(tasks, Task{Processor: probe, AbsPath: "x"})
	}

	results, err := pool.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, r := range results {
		if !r.Success {
			t.Fatalf("task %d failed: %v", i, r.Err)
		}
	}
	if atomic.LoadInt32(&maxConcurrent) > 2 {
		t.Fatalf("got max concurrency %d, want <= 2", maxConcurrent)
	}
}

type probingProcessor struct {
	onProcess func()
}

func (p *probingProcessor) Name() string          { return "probe" }
func (p *probingProcessor) MIMETypes() []string   { return nil }
func (p *probingProcessor) ShouldProcess(ctx context.Context, entry entrystore.Entry) (bool, error) {
	return true, nil
}
func (p *probingProcessor) Process(ctx context.Context, backend volume.Backend, absPath string, entry entrystore.Entry) Result {
	p.onProcess()
	return Result{Success: true}
}
