package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glpibot/glpibot/internal/changes"
	"github.com/glpibot/glpibot/internal/glpi"
	"github.com/glpibot/glpibot/internal/helpdesk"
	"github.com/glpibot/glpibot/internal/notifier"
	"github.com/glpibot/glpibot/internal/scheduler"
	"github.com/glpibot/glpibot/internal/session"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 10 * time.Second

// JobName is the scheduler job the poll loop runs under.
const JobName = "poll"

// Helpdesk is what a poll cycle reads from the backend.
type Helpdesk interface {
	VisibleTickets(ctx context.Context, sess session.Session) ([]glpi.Ticket, error)
	Comments(ctx context.Context, sess session.Session, ticketID int) ([]glpi.Comment, error)
	Ticket(ctx context.Context, sess session.Session, id int) (*glpi.Ticket, error)
}

// Notifier delivers one change event.
type Notifier interface {
	Notify(ctx context.Context, sess session.Session, ev notifier.Event) notifier.Result
}

// CycleStats summarizes one poll cycle.
type CycleStats struct {
	ID         string
	StartedAt  time.Time
	Duration   time.Duration
	Sessions   int // sessions with a usable token
	Tickets    int // tickets examined
	FirstSeen  int // snapshots stored without notifying
	Notified   int // notifications delivered
	Failed     int // notifications that could not be delivered
	Skipped    int // tickets skipped on fetch errors or missing recipients
	FetchError int // sessions whose ticket list could not be fetched
}

// Poller compares every session's visible tickets against the last
// snapshots and notifies the ticket's chat about differences.
type Poller struct {
	helpdesk  Helpdesk
	sessions  *session.Store
	snapshots *changes.SnapshotStore
	notifier  Notifier
	logger    *slog.Logger

	runMu sync.Mutex    // serializes cycles
	kick  chan struct{} // pending out-of-schedule cycle

	mu     sync.RWMutex
	last   *CycleStats
	cycles int
}

// New creates a poller over the shared session and snapshot stores.
func New(hd Helpdesk, sessions *session.Store, snapshots *changes.SnapshotStore, n Notifier, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		helpdesk:  hd,
		sessions:  sessions,
		snapshots: snapshots,
		notifier:  n,
		logger:    logger,
		kick:      make(chan struct{}, 1),
	}
}

// Register schedules RunCycle every interval on sched. Cycles run with ctx
// and stop polling once it is cancelled.
func (p *Poller) Register(ctx context.Context, sched *scheduler.Scheduler, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return sched.AddJob(JobName, scheduler.Every(interval), func() { p.RunCycle(ctx) })
}

// Trigger requests an extra cycle outside the schedule. Requests made while
// one is already pending are coalesced. It never blocks.
func (p *Poller) Trigger() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// RunTriggered runs a cycle for every Trigger until ctx is cancelled.
func (p *Poller) RunTriggered(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
			p.RunCycle(ctx)
		}
	}
}

// RunCycle polls every session once. Errors are logged and skipped; a
// panic is recovered so the next cycle still runs.
func (p *Poller) RunCycle(ctx context.Context) (stats CycleStats) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	stats = CycleStats{ID: uuid.NewString(), StartedAt: time.Now()}
	log := p.logger.With("cycle", stats.ID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("poll cycle panicked", "panic", fmt.Sprint(r))
		}
		stats.Duration = time.Since(stats.StartedAt)
		p.record(stats)
		log.Debug("poll cycle finished",
			"sessions", stats.Sessions,
			"tickets", stats.Tickets,
			"notified", stats.Notified,
			"duration", stats.Duration,
		)
	}()

	for _, sess := range p.sessions.List() {
		if ctx.Err() != nil {
			return stats
		}
		if sess.Token == "" {
			continue
		}
		stats.Sessions++
		p.pollSession(ctx, log.With("chat_id", sess.ChatID), stats.ID, sess, &stats)
	}
	return stats
}

func (p *Poller) pollSession(ctx context.Context, log *slog.Logger, cycle string, sess session.Session, stats *CycleStats) {
	tickets, err := p.helpdesk.VisibleTickets(ctx, sess)
	if err != nil {
		stats.FetchError++
		log.Warn("ticket list fetch failed", "error", err)
		return
	}
	if len(tickets) == 0 {
		return
	}

	for _, t := range tickets {
		if ctx.Err() != nil {
			return
		}
		stats.Tickets++
		p.pollTicket(ctx, log.With("ticket", int(t.ID)), cycle, sess, t, stats)
	}
}

func (p *Poller) pollTicket(ctx context.Context, log *slog.Logger, cycle string, sess session.Session, t glpi.Ticket, stats *CycleStats) {
	id := int(t.ID)

	comments, err := p.helpdesk.Comments(ctx, sess, id)
	if err != nil {
		stats.Skipped++
		log.Warn("comment fetch failed, keeping previous snapshot", "error", err)
		return
	}
	curr := changes.FromTicket(t, comments)

	prev, seen := p.snapshots.Get(id)
	if !seen {
		p.snapshots.Put(curr)
		stats.FirstSeen++
		log.Debug("ticket first seen")
		return
	}
	// Whatever happens below, the current observation replaces the old one.
	defer p.snapshots.Put(curr)

	cs := changes.Detect(prev, curr)
	fresh := changes.NewComments(prev.CommentIDs, comments)
	if len(cs) == 0 && len(fresh) == 0 {
		return
	}

	chatID, err := p.recipient(ctx, sess, id)
	if err != nil {
		stats.Skipped++
		if errors.Is(err, helpdesk.ErrNoRecipient) {
			log.Debug("ticket has no chat recipient, not notifying")
		} else {
			log.Warn("ticket detail fetch failed", "error", err)
		}
		return
	}

	res := p.notifier.Notify(ctx, sess, notifier.Event{
		Cycle:    cycle,
		TicketID: id,
		Title:    curr.Title,
		ChatID:   chatID,
		Changes:  cs,
		Comments: fresh,
	})
	if res.Sent {
		stats.Notified++
	} else if res.Kind != "" {
		stats.Failed++
	}
}

// recipient re-fetches the ticket so the stamp is read from the full body.
func (p *Poller) recipient(ctx context.Context, sess session.Session, id int) (int64, error) {
	detail, err := p.helpdesk.Ticket(ctx, sess, id)
	if err != nil {
		return 0, err
	}
	return helpdesk.RecipientChatID(*detail)
}

func (p *Poller) record(stats CycleStats) {
	p.mu.Lock()
	p.last = &stats
	p.cycles++
	p.mu.Unlock()
}

// LastCycle returns the stats of the most recent cycle.
func (p *Poller) LastCycle() (CycleStats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return CycleStats{}, false
	}
	return *p.last, true
}

// Cycles returns how many cycles have completed.
func (p *Poller) Cycles() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cycles
}
