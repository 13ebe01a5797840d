package main

import (
	"context"
	"log/slog"

	apiPkg "github.com/glpibot/glpibot/internal/api"
	"github.com/glpibot/glpibot/internal/changes"
	"github.com/glpibot/glpibot/internal/conversation"
	"github.com/glpibot/glpibot/internal/journal"
	"github.com/glpibot/glpibot/internal/poller"
	"github.com/glpibot/glpibot/internal/scheduler"
	"github.com/glpibot/glpibot/internal/session"
	"github.com/glpibot/glpibot/pkg/protocol"
)

// botService implements api.BotService over the daemon's components.
type botService struct {
	sessions  *session.Store
	states    *conversation.StateStore
	snapshots *changes.SnapshotStore
	poller    *poller.Poller
	sched     *scheduler.Scheduler
	journal   *journal.Store
	logger    *slog.Logger
}

func (b *botService) Sessions() []protocol.SessionInfo {
	list := b.sessions.List()
	out := make([]protocol.SessionInfo, len(list))
	for i, s := range list {
		out[i] = protocol.SessionInfo{
			ChatID:    s.ChatID,
			Role:      s.Role.String(),
			Profile:   s.Profile,
			UserID:    s.UserID,
			CreatedAt: s.CreatedAt,
		}
	}
	return out
}

func (b *botService) Snapshots() []protocol.SnapshotInfo {
	list := b.snapshots.List()
	out := make([]protocol.SnapshotInfo, len(list))
	for i, s := range list {
		out[i] = protocol.SnapshotInfo{
			TicketID: s.TicketID,
			Title:    s.Title,
			Status:   changes.StatusLabel(s.Status),
			Urgency:  changes.UrgencyLabel(s.Urgency),
			Type:     changes.TypeLabel(s.Type),
			Deadline: s.Deadline,
			Comments: len(s.CommentIDs),
		}
	}
	return out
}

func (b *botService) Stats() protocol.Stats {
	st := protocol.Stats{
		Sessions:      b.sessions.Len(),
		Conversations: b.states.Len(),
		Snapshots:     b.snapshots.Len(),
		Cycles:        b.poller.Cycles(),
	}
	if last, ok := b.poller.LastCycle(); ok {
		info := cycleInfo(last)
		st.LastCycle = &info
	}
	if b.sched != nil {
		if next, ok := b.sched.Next(poller.JobName); ok {
			st.NextPoll = &next
		}
	}
	if b.journal != nil {
		st.Delivered = b.count(journal.StatusSent)
		st.Undelivered = b.count(journal.StatusFailed)
	}
	return st
}

func (b *botService) count(status journal.Status) int {
	n, err := b.journal.Count(status)
	if err != nil {
		b.log().Error("journal count failed", "status", string(status), "error", err)
	}
	return n
}

func (b *botService) log() *slog.Logger {
	if b.logger == nil {
		return slog.Default()
	}
	return b.logger
}

func (b *botService) Notifications(f apiPkg.NotificationFilter) ([]protocol.NotificationRecord, error) {
	if b.journal == nil {
		return nil, nil
	}
	entries, err := b.journal.List(journal.Filter{
		TicketID: f.TicketID,
		Status:   journal.Status(f.Status),
		Limit:    f.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]protocol.NotificationRecord, len(entries))
	for i, e := range entries {
		out[i] = protocol.NotificationRecord{
			ID:       e.ID,
			Cycle:    e.Cycle,
			TicketID: e.TicketID,
			ChatID:   e.ChatID,
			Kind:     string(e.Kind),
			Status:   string(e.Status),
			Error:    e.Error,
			SentAt:   e.SentAt,
		}
	}
	return out, nil
}

func (b *botService) PollNow(ctx context.Context) protocol.CycleStats {
	return cycleInfo(b.poller.RunCycle(ctx))
}

func cycleInfo(c poller.CycleStats) protocol.CycleStats {
	return protocol.CycleStats{
		ID:         c.ID,
		StartedAt:  c.StartedAt,
		Duration:   c.Duration,
		Sessions:   c.Sessions,
		Tickets:    c.Tickets,
		FirstSeen:  c.FirstSeen,
		Notified:   c.Notified,
		Failed:     c.Failed,
		Skipped:    c.Skipped,
		FetchError: c.FetchError,
	}
}
