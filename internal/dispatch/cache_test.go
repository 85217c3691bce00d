// ABOUTME: Tests for the invocation idempotency cache
// ABOUTME: Covers in-flight markers, replay, release, eviction, and expiry

package dispatch

import (
	"fmt"
	"testing"
	"time"
)

func TestCacheBeginMarksInflight(t *testing.T) {
	c := newInvocationCache(time.Hour, 100)
	defer c.close()

	result, seen := c.begin("inv-1")
	if seen {
		t.Fatal("first begin should not report the id as seen")
	}
	if result != nil {
		t.Fatal("first begin should not return a result")
	}

	result, seen = c.begin("inv-1")
	if !seen {
		t.Fatal("second begin should report the id as seen")
	}
	if result != nil {
		t.Fatal("in-flight id should not have a result")
	}
}

func TestCacheCompleteReplays(t *testing.T) {
	c := newInvocationCache(time.Hour, 100)
	defer c.close()

	c.begin("inv-1")
	c.complete("inv-1", &Result{InvocationID: "inv-1", Status: "completed"})

	result, seen := c.begin("inv-1")
	if !seen {
		t.Fatal("completed id should be seen")
	}
	if result == nil || result.InvocationID != "inv-1" {
		t.Fatalf("expected cached result for inv-1, got %+v", result)
	}
}

func TestCacheReleaseAllowsRetry(t *testing.T) {
	c := newInvocationCache(time.Hour, 100)
	defer c.close()

	c.begin("inv-1")
	c.release("inv-1")

	if _, seen := c.begin("inv-1"); seen {
		t.Fatal("released id should be retryable")
	}
}

func TestCacheReleaseKeepsCompleted(t *testing.T) {
	c := newInvocationCache(time.Hour, 100)
	defer c.close()

	c.begin("inv-1")
	c.complete("inv-1", &Result{InvocationID: "inv-1"})
	c.release("inv-1")

	result, seen := c.begin("inv-1")
	if !seen || result == nil {
		t.Fatal("release must not drop a completed result")
	}
}

func TestCacheEvictsOldestAtCapacity(t *testing.T) {
	c := newInvocationCache(time.Hour, 3)
	defer c.close()

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("inv-%d", i)
		c.begin(id)
		c.complete(id, &Result{InvocationID: id})
	}

	if _, seen := c.begin("inv-0"); seen {
		t.Fatal("oldest entry should have been evicted")
	}
	if result, seen := c.begin("inv-3"); !seen || result == nil {
		t.Fatal("newest entry should survive eviction")
	}
}

func TestCacheExpiresEntries(t *testing.T) {
	c := newInvocationCache(10*time.Millisecond, 100)
	defer c.close()

	c.begin("inv-1")
	c.complete("inv-1", &Result{InvocationID: "inv-1"})

	time.Sleep(25 * time.Millisecond)
	c.runCleanup()

	if _, seen := c.begin("inv-1"); seen {
		t.Fatal("expired entry should not replay")
	}
}
