package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	gh "github.com/aerostitch/trac-hub/internal/github"
	"github.com/aerostitch/trac-hub/internal/logging"
	"github.com/aerostitch/trac-hub/pkg/models"
)

// ErrIssueNumberMismatch is returned when a created issue's number differs
// from its ticket id. It means GitHub's number sequence has drifted from the
// ticket sequence, so continuing would misalign every cross reference; the
// run aborts rather than papering over it.
var ErrIssueNumberMismatch = errors.New("created issue number does not match ticket id")

// errJobPending drives the poll loop; it never escapes waitForJob.
var errJobPending = errors.New("import job still pending")

// TicketStore is the read-only slice of the Trac store the migrator needs.
type TicketStore interface {
	TicketsFrom(ctx context.Context, minID int64) ([]models.Ticket, error)
	Changes(ctx context.Context, ticketID int64) ([]models.ChangeEvent, error)
	Attachments(ctx context.Context, ticketID int64) ([]models.AttachmentEvent, error)
}

// IssueService is the remote surface the migrator drives.
type IssueService interface {
	FindIssue(ctx context.Context, number int64) (*models.ComposedIssue, bool, error)
	LastIssueNumber(ctx context.Context) (int64, error)
	SubmitImport(ctx context.Context, issue *models.ComposedIssue) (*gh.ImportJob, error)
	PollImport(ctx context.Context, url string) (*gh.ImportJob, error)
}

// Options are the migration run parameters.
type Options struct {
	// StartTicket is the first ticket id to migrate. Zero derives the start
	// from the highest issue number already on GitHub.
	StartTicket int64

	// SkipClosed leaves tickets whose final status is closed behind.
	SkipClosed bool

	// Verify enables the safety checks: skip tickets that already exist
	// remotely, poll every import job to completion and assert the created
	// issue number equals the ticket id.
	Verify bool

	// PollInterval is the pause between import job polls.
	PollInterval time.Duration
}

// Migrator iterates tickets in ascending id order and imports each one
// completely before touching the next.
type Migrator struct {
	store    TicketStore
	service  IssueService
	merger   *Merger
	composer *Composer
	opts     Options

	// lastMigrated advances as tickets complete; it only informs logging and
	// the default start id of later invocations, nothing is persisted.
	lastMigrated int64
}

// NewMigrator creates a migrator.
func NewMigrator(store TicketStore, service IssueService, merger *Merger, composer *Composer, opts Options) *Migrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	return &Migrator{
		store:    store,
		service:  service,
		merger:   merger,
		composer: composer,
		opts:     opts,
	}
}

// LastMigrated returns the id of the last ticket that completed, zero if
// none did.
func (m *Migrator) LastMigrated() int64 {
	return m.lastMigrated
}

// Run migrates every ticket from the start id upward. Cancellation is
// sampled only between tickets, so a ticket is either fully imported or not
// attempted at all.
func (m *Migrator) Run(ctx context.Context) error {
	start := m.opts.StartTicket
	if start <= 0 {
		last, err := m.service.LastIssueNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to determine start ticket: %w", err)
		}
		start = last + 1
	}

	tickets, err := m.store.TicketsFrom(ctx, start)
	if err != nil {
		return err
	}
	logging.Info("starting migration", "start_ticket", start, "tickets", len(tickets))

	for _, ticket := range tickets {
		if err := ctx.Err(); err != nil {
			logging.Info("migration interrupted", "last_migrated", m.lastMigrated)
			return err
		}

		if m.opts.SkipClosed && ticket.Status == statusClosed {
			logging.Info("skipping closed ticket", "ticket", ticket.ID)
			continue
		}

		if err := m.migrateTicket(ctx, ticket); err != nil {
			return err
		}
	}

	logging.Info("migration finished", "last_migrated", m.lastMigrated)
	return nil
}

// migrateTicket runs one ticket through compose, submit and, with safety
// checks on, poll and verify.
func (m *Migrator) migrateTicket(ctx context.Context, ticket models.Ticket) error {
	if m.opts.Verify {
		_, found, err := m.service.FindIssue(ctx, ticket.ID)
		if err != nil {
			// A failed lookup reads as "not migrated yet". The worst case is
			// one redundant submission, which the id check below catches.
			logging.Warn("existing issue lookup failed", "ticket", ticket.ID, "error", err)
		}
		if found {
			logging.Info("ticket already migrated, skipping", "ticket", ticket.ID)
			m.lastMigrated = ticket.ID
			return nil
		}
	}

	changes, err := m.store.Changes(ctx, ticket.ID)
	if err != nil {
		return err
	}
	attachments, err := m.store.Attachments(ctx, ticket.ID)
	if err != nil {
		return err
	}

	merged := m.merger.Merge(ctx, ticket, changes, attachments)
	issue := m.composer.Compose(ctx, ticket, merged)

	job, err := m.service.SubmitImport(ctx, issue)
	if err != nil {
		return fmt.Errorf("failed to submit ticket %d: %w", ticket.ID, err)
	}
	logging.Info("submitted import", "ticket", ticket.ID, "job", job.ID, "status", job.Status)

	if !m.opts.Verify {
		// Without safety checks the submission is trusted as-is; the job
		// outcome is left for manual inspection.
		m.lastMigrated = ticket.ID
		return nil
	}

	job, err = m.waitForJob(ctx, job)
	if err != nil {
		return fmt.Errorf("failed waiting for import of ticket %d: %w", ticket.ID, err)
	}
	if job.Status != gh.ImportStatusImported {
		return fmt.Errorf("import of ticket %d ended in state %q: %+v", ticket.ID, job.Status, job.Errors)
	}

	number, err := job.IssueNumber()
	if err != nil {
		return fmt.Errorf("import of ticket %d: %w", ticket.ID, err)
	}
	if number != ticket.ID {
		return fmt.Errorf("%w: ticket %d became issue %d", ErrIssueNumberMismatch, ticket.ID, number)
	}

	logging.Info("ticket migrated", "ticket", ticket.ID, "issue", number)
	m.lastMigrated = ticket.ID
	return nil
}

// waitForJob polls until the job leaves the pending state. There is no
// deadline: the remote service is trusted to resolve every job eventually.
func (m *Migrator) waitForJob(ctx context.Context, job *gh.ImportJob) (*gh.ImportJob, error) {
	url := job.URL
	resolved := job

	poll := func() error {
		polled, err := m.service.PollImport(ctx, url)
		if err != nil {
			return backoff.Permanent(err)
		}
		resolved = polled
		if polled.Status == gh.ImportStatusPending {
			return errJobPending
		}
		return nil
	}

	if resolved.Status == gh.ImportStatusPending {
		if err := backoff.Retry(poll, backoff.NewConstantBackOff(m.opts.PollInterval)); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}
