package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitForStatus(t *testing.T, store *Store, id string, want Status) Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := store.Get(id)
		if !ok {
			t.Fatalf("job %s disappeared", id)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.Get(id)
	t.Fatalf("job %s status = %s, want %s", id, job.Status, want)
	return Job{}
}

func TestJobSuccess(t *testing.T) {
	store := NewStore()

	id := store.Start(context.Background(), "user-1", func(ctx context.Context, progress func(string)) (string, error) {
		progress("[tool call] combined_search")
		progress("[tool result] combined_search -> 3 articles")
		return "final answer", nil
	})

	job := waitForStatus(t, store, id, StatusDone)
	if job.Result != "final answer" {
		t.Errorf("Result = %q, want %q", job.Result, "final answer")
	}
	if job.Error != "" {
		t.Errorf("Error = %q, want empty", job.Error)
	}
	if job.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", job.UserID)
	}
	if len(job.Log) != 2 {
		t.Errorf("log lines = %d, want 2", len(job.Log))
	}
	if job.FinishedAt == nil {
		t.Error("FinishedAt is nil after completion")
	}
}

func TestJobFailure(t *testing.T) {
	store := NewStore()

	id := store.Start(context.Background(), "", func(ctx context.Context, progress func(string)) (string, error) {
		return "", errors.New("model unavailable")
	})

	job := waitForStatus(t, store, id, StatusError)
	if job.Error != "model unavailable" {
		t.Errorf("Error = %q, want %q", job.Error, "model unavailable")
	}
	if job.Result != "" {
		t.Errorf("Result = %q, want empty", job.Result)
	}
}

func TestJobPanicContained(t *testing.T) {
	store := NewStore()

	id := store.Start(context.Background(), "", func(ctx context.Context, progress func(string)) (string, error) {
		panic("boom")
	})

	job := waitForStatus(t, store, id, StatusError)
	if job.Error == "" {
		t.Error("Error is empty after panicking runner")
	}
}

func TestGetUnknownJob(t *testing.T) {
	store := NewStore()
	if _, ok := store.Get("missing"); ok {
		t.Error("Get() returned a job for an unknown id")
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	store := NewStore()

	release := make(chan struct{})
	id := store.Start(context.Background(), "", func(ctx context.Context, progress func(string)) (string, error) {
		progress("line 1")
		<-release
		return "done", nil
	})

	waitForStatus(t, store, id, StatusRunning)

	job, _ := store.Get(id)
	if len(job.Log) > 0 {
		// Mutating the snapshot must not touch the stored job.
		job.Log[0] = "tampered"
		again, _ := store.Get(id)
		if len(again.Log) > 0 && again.Log[0] == "tampered" {
			t.Error("Get() log shares backing storage with the store")
		}
	}

	close(release)
	waitForStatus(t, store, id, StatusDone)
}
