package tiered_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/curatd/curatd/internal/adapter/tiered"
)

// fakeCache records its operations so tests can assert routing and order.
type fakeCache struct {
	name    string
	data    map[string][]byte
	log     *[]string
	failSet bool
	failDel bool
}

func newPair() (*fakeCache, *fakeCache, *[]string) {
	log := new([]string)
	near := &fakeCache{name: "near", data: map[string][]byte{}, log: log}
	far := &fakeCache{name: "far", data: map[string][]byte{}, log: log}
	return near, far, log
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	*f.log = append(*f.log, f.name+".get")
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	*f.log = append(*f.log, f.name+".set")
	if f.failSet {
		return errors.New(f.name + " set failed")
	}
	f.data[key] = value
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	*f.log = append(*f.log, f.name+".del")
	if f.failDel {
		return errors.New(f.name + " delete failed")
	}
	delete(f.data, key)
	return nil
}

func sameOps(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestGetPrefersNear(t *testing.T) {
	near, far, log := newPair()
	near.data["pool:essays"] = []byte("near-copy")
	far.data["pool:essays"] = []byte("far-copy")
	c := tiered.New(near, far, time.Minute)

	val, ok, err := c.Get(context.Background(), "pool:essays")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if string(val) != "near-copy" {
		t.Errorf("value = %q, want the near copy", val)
	}
	if !sameOps(*log, "near.get") {
		t.Errorf("ops = %v, far should not be consulted on a near hit", *log)
	}
}

func TestGetBackfillsNearFromFar(t *testing.T) {
	near, far, _ := newPair()
	far.data["pool:essays"] = []byte(`["reviewer-a","reviewer-b"]`)
	c := tiered.New(near, far, time.Minute)

	val, ok, err := c.Get(context.Background(), "pool:essays")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if string(val) != `["reviewer-a","reviewer-b"]` {
		t.Errorf("value = %q", val)
	}
	if _, ok := near.data["pool:essays"]; !ok {
		t.Fatal("far hit should backfill near")
	}

	// The second read must be served locally.
	*near.log = nil
	if _, ok, _ := c.Get(context.Background(), "pool:essays"); !ok {
		t.Fatal("expected backfilled hit")
	}
	if !sameOps(*near.log, "near.get") {
		t.Errorf("ops = %v, want a near-only read", *near.log)
	}
}

func TestGetMiss(t *testing.T) {
	near, far, _ := newPair()
	c := tiered.New(near, far, time.Minute)

	if _, ok, err := c.Get(context.Background(), "pool:unknown"); ok || err != nil {
		t.Fatalf("Get = %v, %v, want clean miss", ok, err)
	}
}

func TestSetWritesFarFirst(t *testing.T) {
	near, far, log := newPair()
	c := tiered.New(near, far, time.Minute)

	if err := c.Set(context.Background(), "pool:essays", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if !sameOps(*log, "far.set", "near.set") {
		t.Errorf("ops = %v, want far before near", *log)
	}
	if _, ok := near.data["pool:essays"]; !ok {
		t.Error("near missing the value")
	}
	if _, ok := far.data["pool:essays"]; !ok {
		t.Error("far missing the value")
	}
}

func TestSetFarFailureSkipsNear(t *testing.T) {
	near, far, _ := newPair()
	far.failSet = true
	c := tiered.New(near, far, time.Minute)

	if err := c.Set(context.Background(), "pool:essays", []byte("v"), time.Minute); err == nil {
		t.Fatal("expected far set error")
	}
	if len(near.data) != 0 {
		t.Error("near must not hold a value the shared level rejected")
	}
}

func TestDeleteRemovesFarFirst(t *testing.T) {
	near, far, log := newPair()
	near.data["pool:essays"] = []byte("v")
	far.data["pool:essays"] = []byte("v")
	c := tiered.New(near, far, time.Minute)

	if err := c.Delete(context.Background(), "pool:essays"); err != nil {
		t.Fatal(err)
	}
	if !sameOps(*log, "far.del", "near.del") {
		t.Errorf("ops = %v, want far before near", *log)
	}
	if len(near.data) != 0 || len(far.data) != 0 {
		t.Error("both levels should be empty")
	}
}

func TestDeleteFarFailureKeepsNear(t *testing.T) {
	near, far, _ := newPair()
	near.data["pool:essays"] = []byte("v")
	far.data["pool:essays"] = []byte("v")
	far.failDel = true
	c := tiered.New(near, far, time.Minute)

	if err := c.Delete(context.Background(), "pool:essays"); err == nil {
		t.Fatal("expected far delete error")
	}
	if _, ok := near.data["pool:essays"]; !ok {
		t.Error("near delete should not run when far delete fails")
	}
}
