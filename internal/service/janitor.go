package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/curatd/curatd/internal/config"
	"github.com/curatd/curatd/internal/port/database"
	"github.com/curatd/curatd/internal/port/eventstore"
	"github.com/curatd/curatd/internal/port/messagequeue"
)

// JanitorService runs the background sweeps: archiving terminal instances
// past the retention window and re-deriving repair tasks for partial
// side-effect rows that went stale without a queued repair.
type JanitorService struct {
	store   database.Store
	journal eventstore.Store
	queue   messagequeue.Queue
	cfg     config.Janitor
	cron    *cron.Cron
}

// NewJanitorService creates the janitor with its sweep schedule. The journal
// supplies the recorded assessment for re-derived repair tasks.
func NewJanitorService(store database.Store, journal eventstore.Store, queue messagequeue.Queue, cfg config.Janitor) *JanitorService {
	return &JanitorService{store: store, journal: journal, queue: queue, cfg: cfg}
}

// Start schedules the sweeps. An empty cron spec disables that sweep.
func (s *JanitorService) Start() error {
	c := cron.New()
	if s.cfg.ArchiveCron != "" {
		if _, err := c.AddFunc(s.cfg.ArchiveCron, s.archiveSweep); err != nil {
			return fmt.Errorf("schedule archive sweep: %w", err)
		}
	}
	if s.cfg.RepairCron != "" {
		if _, err := c.AddFunc(s.cfg.RepairCron, s.repairSweep); err != nil {
			return fmt.Errorf("schedule repair sweep: %w", err)
		}
	}
	c.Start()
	s.cron = c
	slog.Info("janitor started", "archive_cron", s.cfg.ArchiveCron, "repair_cron", s.cfg.RepairCron)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *JanitorService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// archiveSweep flags terminal instances older than the retention window.
// Archived rows stay queryable; nothing is deleted.
func (s *JanitorService) archiveSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.cfg.ArchiveAfter)
	n, err := s.store.ArchiveTerminalBefore(ctx, cutoff)
	if err != nil {
		slog.Error("archive sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("archived terminal instances", "count", n, "cutoff", cutoff)
	}
}

// repairSweep requeues repair tasks for partial rows that have not moved
// since the staleness window. It is the backstop for repair tasks lost
// between the fan-out's journal append and its publish.
func (s *JanitorService) repairSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	olderThan := time.Now().UTC().Add(-s.cfg.RepairStaleAfter)
	partials, err := s.store.ListStalePartials(ctx, olderThan, 100)
	if err != nil {
		slog.Error("repair sweep failed", "error", err)
		return
	}

	for _, p := range partials {
		task, err := buildRepairTask(ctx, s.store, s.journal, p.ContentItemID)
		if err != nil {
			slog.Error("build repair task for sweep", "content_item_id", p.ContentItemID, "error", err)
			continue
		}

		requeued := 0
		if !p.Result.SearchIndexed {
			task.Side = "search"
			if s.publishTask(ctx, task) {
				requeued++
			}
		}
		if !p.Result.GraphUpdated {
			task.Side = "graph"
			if s.publishTask(ctx, task) {
				requeued++
			}
		}
		if requeued > 0 {
			slog.Info("requeued stale partial", "content_item_id", p.ContentItemID, "sides", requeued)
		}
	}
}

func (s *JanitorService) publishTask(ctx context.Context, task messagequeue.RepairIndexPayload) bool {
	data, err := json.Marshal(task)
	if err != nil {
		slog.Error("marshal repair task", "error", err)
		return false
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectRepairIndex, data); err != nil {
		slog.Error("publish repair task", "content_item_id", task.ContentItemID, "side", task.Side, "error", err)
		return false
	}
	return true
}
