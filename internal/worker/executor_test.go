package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/curatd/curatd/internal/config"
	"github.com/curatd/curatd/internal/domain/policy"
)

func testTable() policy.Table {
	fast := policy.RetryPolicy{
		Class:              policy.ClassLightweight,
		Timeout:            time.Second,
		MaxAttempts:        3,
		InitialInterval:    time.Millisecond,
		BackoffCoefficient: 2.0,
		MaxInterval:        10 * time.Millisecond,
	}
	return policy.Table{
		policy.TaskScore:       fast,
		policy.TaskAssign:      fast,
		policy.TaskIndexSearch: fast,
		policy.TaskIndexGraph:  fast,
		policy.TaskNotify:      fast,
	}
}

func testExecutor() *Executor {
	pools := NewPools(config.Workers{AIBound: 2, IOBound: 2, Lightweight: 2})
	return NewExecutor(testTable(), pools)
}

func TestExecuteSuccess(t *testing.T) {
	e := testExecutor()
	e.Register(policy.TaskScore, func(ctx context.Context, input []byte) ([]byte, error) {
		return []byte(`{"score":9.2}`), nil
	})

	out, attempts, err := e.Execute(context.Background(), policy.TaskScore, []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	if string(out) != `{"score":9.2}` {
		t.Errorf("unexpected output %s", out)
	}
}

func TestExecuteRetriesTransient(t *testing.T) {
	e := testExecutor()
	var calls atomic.Int32
	e.Register(policy.TaskIndexSearch, func(ctx context.Context, input []byte) ([]byte, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection reset")
		}
		return []byte(`{"ok":true}`), nil
	})

	out, attempts, err := e.Execute(context.Background(), policy.TaskIndexSearch, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if string(out) != `{"ok":true}` {
		t.Errorf("unexpected output %s", out)
	}
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	e := testExecutor()
	wantErr := errors.New("still down")
	e.Register(policy.TaskIndexGraph, func(ctx context.Context, input []byte) ([]byte, error) {
		return nil, wantErr
	})

	_, attempts, err := e.Execute(context.Background(), policy.TaskIndexGraph, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wantErr, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecutePermanentStopsEarly(t *testing.T) {
	e := testExecutor()
	e.Register(policy.TaskNotify, func(ctx context.Context, input []byte) ([]byte, error) {
		return nil, policy.Permanent(errors.New("recipient unknown"))
	})

	_, attempts, err := e.Execute(context.Background(), policy.TaskNotify, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !policy.IsPermanent(err) {
		t.Fatalf("expected permanent classification, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteUnknownTask(t *testing.T) {
	e := testExecutor()

	_, attempts, err := e.Execute(context.Background(), policy.TaskType("bogus"), nil)
	if err == nil {
		t.Fatal("expected error for unregistered task")
	}
	if !policy.IsPermanent(err) {
		t.Fatalf("unregistered task should be permanent, got %v", err)
	}
	if attempts != 0 {
		t.Errorf("expected 0 attempts, got %d", attempts)
	}
}

func TestExecuteHonorsClassPool(t *testing.T) {
	pools := NewPools(config.Workers{AIBound: 1, IOBound: 4, Lightweight: 4})
	e := NewExecutor(testTableWithClass(policy.ClassAIBound), pools)

	var running, maxSeen atomic.Int32
	e.Register(policy.TaskScore, func(ctx context.Context, input []byte) ([]byte, error) {
		cur := running.Add(1)
		for {
			old := maxSeen.Load()
			if cur <= old || maxSeen.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return []byte(`{}`), nil
	})

	done := make(chan struct{}, 4)
	for range 4 {
		go func() {
			defer func() { done <- struct{}{} }()
			_, _, err := e.Execute(context.Background(), policy.TaskScore, nil)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	for range 4 {
		<-done
	}

	if m := maxSeen.Load(); m > 1 {
		t.Errorf("ai_bound pool of 1 allowed %d concurrent attempts", m)
	}
}

func testTableWithClass(class policy.QueueClass) policy.Table {
	tbl := testTable()
	p := tbl[policy.TaskScore]
	p.Class = class
	tbl[policy.TaskScore] = p
	return tbl
}
