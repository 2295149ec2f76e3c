// Package orchestrator drives the pass loop: discover unblocked tickets,
// execute coding agents in parallel worktrees, sync review feedback, requeue
// reworked tickets, and merge approved work one ticket at a time.
//
// All collaborators enter through capability interfaces; the orchestrator
// holds no provider-specific code. Ticket state only moves through the pure
// transition function in transition.go.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mjankowski/autodev/internal/agent"
	"github.com/mjankowski/autodev/internal/config"
	"github.com/mjankowski/autodev/internal/events"
	"github.com/mjankowski/autodev/internal/faults"
	"github.com/mjankowski/autodev/internal/forge"
	"github.com/mjankowski/autodev/internal/tracker"
	"github.com/mjankowski/autodev/internal/types"
	"github.com/mjankowski/autodev/internal/worktree"
)

// Deps holds the collaborators the orchestrator drives
type Deps struct {
	Tracker   tracker.Tracker
	Events    tracker.EventStore // optional; nil disables the audit trail
	Agent     agent.Agent
	Forge     forge.Forge
	Worktrees worktree.Manager
	Describer *forge.Describer // optional; nil selects the template body
}

// Orchestrator runs passes over the ticket set
type Orchestrator struct {
	cfg       *config.Config
	tracker   tracker.Tracker
	events    tracker.EventStore
	agent     agent.Agent
	forge     forge.Forge
	worktrees worktree.Manager
	describer *forge.Describer
	retry     faults.RetryConfig
	reg       *registry
}

// New validates the wiring and returns an orchestrator
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if deps.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if deps.Forge == nil {
		return nil, fmt.Errorf("forge is required")
	}
	if deps.Worktrees == nil {
		return nil, fmt.Errorf("worktree manager is required")
	}
	describer := deps.Describer
	if describer == nil {
		describer = forge.NewDescriber(nil, "")
	}
	return &Orchestrator{
		cfg:       cfg,
		tracker:   deps.Tracker,
		events:    deps.Events,
		agent:     deps.Agent,
		forge:     deps.Forge,
		worktrees: deps.Worktrees,
		describer: describer,
		retry:     faults.DefaultRetryConfig(),
		reg:       newRegistry(),
	}, nil
}

// RunOnce executes a single pass: discover, execute, sync, reprocess, merge.
// Each phase finishes for every ticket before the next begins. The returned
// error is only non-nil for fatal conditions; per-ticket failures are
// recorded in the report and on the tickets themselves.
func (o *Orchestrator) RunOnce(ctx context.Context) (*PassReport, error) {
	passID := uuid.New().String()
	report := newPassReport(passID, o.cfg.DryRun)
	defer func() { report.FinishedAt = time.Now() }()

	fmt.Printf("Starting pass %s\n", passID)

	if err := o.discover(ctx, passID, report, ""); err != nil {
		return report, err
	}
	if err := o.execute(ctx, passID, report, ""); err != nil {
		return report, err
	}
	if err := o.syncPhase(ctx, passID, report, ""); err != nil {
		return report, err
	}
	if err := o.reprocessPhase(ctx, passID, report, ""); err != nil {
		return report, err
	}
	if err := o.mergePhase(ctx, passID, report, ""); err != nil {
		return report, err
	}

	o.emit(ctx, events.New(events.EventTypePassCompleted, passID, "", events.SeverityInfo,
		fmt.Sprintf("pass completed: %d ticket(s) advanced, %d merged, %d failed",
			len(report.Outcomes), report.Merged(), report.Failed())))
	return report, nil
}

// RunContinuous runs passes until stop is closed or the context is canceled.
// Closing stop is the graceful path: the pass in flight runs to completion
// and the loop exits at the pass boundary. Canceling the context aborts
// in-flight work immediately.
func (o *Orchestrator) RunContinuous(ctx context.Context, stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			fmt.Println("Shutting down")
			return nil
		case <-ctx.Done():
			fmt.Println("Shutting down")
			return nil
		default:
		}

		report, err := o.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println("Shutting down")
				return nil
			}
			return err
		}
		fmt.Print(report.Summary())

		select {
		case <-stop:
			fmt.Println("Shutting down")
			return nil
		case <-ctx.Done():
			fmt.Println("Shutting down")
			return nil
		case <-time.After(o.cfg.PollInterval):
		}
	}
}

// ProcessTicket runs a pass scoped to a single ticket. A failed ticket is
// first reset to ready; this is the only path back from failed.
func (o *Orchestrator) ProcessTicket(ctx context.Context, id string) (*PassReport, error) {
	t, err := o.tracker.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == types.StatusMerged {
		return nil, fmt.Errorf("ticket %s is already merged", id)
	}
	if t.Branch == "" {
		t.Branch = types.BranchName(o.cfg.BranchPrefix, t.ID)
	}
	if t.Status == types.StatusFailed {
		t.Status = types.StatusReady
		t.FailureReason = ""
		t.RetriesUsed = 0
		if !o.cfg.DryRun {
			if err := o.tracker.SaveProgress(ctx, t); err != nil {
				return nil, err
			}
		}
		fmt.Printf("Reset %s: failed -> ready\n", id)
	}
	o.reg.upsert(*t)

	passID := uuid.New().String()
	report := newPassReport(passID, o.cfg.DryRun)
	defer func() { report.FinishedAt = time.Now() }()

	if err := o.discover(ctx, passID, report, id); err != nil {
		return report, err
	}
	if err := o.execute(ctx, passID, report, id); err != nil {
		return report, err
	}
	if err := o.syncPhase(ctx, passID, report, id); err != nil {
		return report, err
	}
	if err := o.reprocessPhase(ctx, passID, report, id); err != nil {
		return report, err
	}
	if err := o.mergePhase(ctx, passID, report, id); err != nil {
		return report, err
	}
	return report, nil
}

// SyncReviews polls review state for in-review tickets without running agents
func (o *Orchestrator) SyncReviews(ctx context.Context) (*PassReport, error) {
	passID := uuid.New().String()
	report := newPassReport(passID, o.cfg.DryRun)
	defer func() { report.FinishedAt = time.Now() }()

	if _, err := o.load(ctx, ""); err != nil {
		return report, err
	}
	if err := o.syncPhase(ctx, passID, report, ""); err != nil {
		return report, err
	}
	return report, nil
}

// MergeReady merges all approved tickets without running the other phases
func (o *Orchestrator) MergeReady(ctx context.Context) (*PassReport, error) {
	passID := uuid.New().String()
	report := newPassReport(passID, o.cfg.DryRun)
	defer func() { report.FinishedAt = time.Now() }()

	if _, err := o.load(ctx, ""); err != nil {
		return report, err
	}
	if err := o.mergePhase(ctx, passID, report, ""); err != nil {
		return report, err
	}
	return report, nil
}

// Status returns every ticket plus the recent audit trail
func (o *Orchestrator) Status(ctx context.Context) (*StatusReport, error) {
	tickets, err := o.tracker.ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	report := &StatusReport{Tickets: tickets}
	if o.events != nil {
		evs, err := o.events.RecentEvents(ctx, 20)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load recent events: %v\n", err)
		} else {
			report.RecentEvents = evs
		}
	}
	return report, nil
}

// load refreshes the registry from the tracker, the worktree list, and the
// forge. It returns worktree existence keyed by branch. Tickets whose merge
// request turns out to be merged or closed externally are retired here.
func (o *Orchestrator) load(ctx context.Context, only string) (map[string]bool, error) {
	var tickets []*types.Ticket
	err := faults.Retry(ctx, o.retry, "tracker.list_unblocked", func(ctx context.Context) error {
		var err error
		tickets, err = o.tracker.ListUnblocked(ctx)
		return err
	})
	if err != nil {
		// Without the backlog nothing can proceed
		return nil, err
	}

	handles, err := o.worktrees.List(ctx)
	if err != nil {
		return nil, err
	}
	wt := make(map[string]bool, len(handles))
	for _, h := range handles {
		wt[h.Branch] = true
	}

	for _, t := range tickets {
		if only != "" && t.ID != only {
			continue
		}
		if t.Branch == "" {
			t.Branch = types.BranchName(o.cfg.BranchPrefix, t.ID)
		}

		// Re-derive the merge request link lost across a restart
		if t.MergeRequestID == "" && reviewPhase(t.Status) {
			mr, err := o.forge.FindMergeRequestByBranch(ctx, t.Branch)
			if err != nil {
				if faults.IsFatal(err) {
					return nil, err
				}
				fmt.Fprintf(os.Stderr, "Warning: failed to find merge request for %s: %v\n", t.ID, err)
			} else if mr != nil {
				t.MergeRequestID = mr.ID
			}
		}

		known := o.reg.has(t.ID)
		o.reg.upsert(*t)

		// A fresh process lost the pending-comment set; rebuild it from the
		// forge so a requeued ticket still hands the agent its feedback and
		// already-applied signals are not replayed.
		if !known && t.MergeRequestID != "" && carriesCommentState(t) {
			if err := o.reseedComments(ctx, t); err != nil {
				if faults.IsFatal(err) {
					return nil, err
				}
				fmt.Fprintf(os.Stderr, "Warning: failed to reload comments for %s: %v\n", t.ID, err)
			}
		}
	}
	return wt, nil
}

func reviewPhase(s types.TicketStatus) bool {
	return s == types.StatusInReview || s == types.StatusChangesNeeded || s == types.StatusApproved
}

// carriesCommentState reports whether a ticket's registry entry would hold
// review comments in a process that never restarted.
func carriesCommentState(t *types.Ticket) bool {
	switch t.Status {
	case types.StatusInReview, types.StatusChangesNeeded:
		return true
	case types.StatusInProgress:
		return t.ReviewRound > 0
	}
	return false
}

func (o *Orchestrator) reseedComments(ctx context.Context, t *types.Ticket) error {
	var comments []types.ReviewComment
	err := faults.Retry(ctx, o.retry, "forge.list_comments", func(ctx context.Context) error {
		var err error
		comments, err = o.forge.ListComments(ctx, t.MergeRequestID)
		return err
	})
	if err != nil {
		return err
	}
	o.reg.seedPending(t.ID, comments)
	return nil
}

// discover advances ready tickets into in_progress, creating worktrees
func (o *Orchestrator) discover(ctx context.Context, passID string, report *PassReport, only string) error {
	wt, err := o.load(ctx, only)
	if err != nil {
		return err
	}

	for _, t := range o.reg.inStatus(types.StatusReady) {
		if only != "" && t.ID != only {
			continue
		}
		d := Decide(t, Signals{WorktreeExists: wt[t.Branch]})
		if err := o.settle(ctx, passID, t, d, nil, report); err != nil {
			return err
		}
	}
	return nil
}

// execute runs the coding agent for every in_progress ticket, bounded by
// MaxConcurrentAgents. Each ticket's invocation and transition are
// independent; one ticket failing never touches its siblings.
func (o *Orchestrator) execute(ctx context.Context, passID string, report *PassReport, only string) error {
	var pending []types.Ticket
	for _, t := range o.reg.inStatus(types.StatusInProgress) {
		if only != "" && t.ID != only {
			continue
		}
		pending = append(pending, t)
	}
	if len(pending) == 0 {
		return nil
	}

	if o.cfg.DryRun {
		for _, t := range pending {
			report.record(TicketOutcome{
				TicketID: t.ID, From: t.Status, To: t.Status,
				Trigger: "agent_invocation_skipped",
			})
		}
		return nil
	}

	sem := semaphore.NewWeighted(int64(o.cfg.MaxConcurrentAgents))
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range pending {
		t := t
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return faults.Fatal("orchestrator.execute", err)
			}
			defer sem.Release(1)
			return o.runAgent(gctx, passID, t, report)
		})
	}
	return g.Wait()
}

// runAgent performs one agent invocation and the resulting transition.
// Only fatal errors propagate; everything else fails the ticket in place.
func (o *Orchestrator) runAgent(ctx context.Context, passID string, t types.Ticket, report *PassReport) error {
	task := &types.AgentTask{
		Ticket:       t,
		WorktreePath: o.worktreePath(t.ID),
		Comments:     o.reg.pending(t.ID),
	}

	fmt.Printf("Dispatching agent for %s (round %d)\n", t.ID, t.ReviewRound)
	o.emit(ctx, events.New(events.EventTypeAgentInvoked, passID, t.ID, events.SeverityInfo,
		fmt.Sprintf("agent invoked (round %d, %d comment(s))", t.ReviewRound, len(task.Comments))))

	var result *types.AgentResult
	err := faults.Retry(ctx, o.retry, "agent.execute", func(ctx context.Context) error {
		r, err := o.agent.Execute(ctx, task)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if faults.IsFatal(err) {
			return err
		}
		o.failTicket(ctx, passID, t, err, report)
		return nil
	}

	o.emit(ctx, events.New(events.EventTypeAgentCompleted, passID, t.ID, events.SeverityInfo,
		fmt.Sprintf("agent completed (success=%v)", result.Success)))

	return o.settle(ctx, passID, t, Decide(t, Signals{AgentResult: result}), result, report)
}

// syncPhase polls review state for in_review tickets and applies signals
func (o *Orchestrator) syncPhase(ctx context.Context, passID string, report *PassReport, only string) error {
	for _, t := range o.reg.inStatus(types.StatusInReview) {
		if only != "" && t.ID != only {
			continue
		}
		if t.MergeRequestID == "" {
			fmt.Fprintf(os.Stderr, "Warning: %s is in review without a merge request\n", t.ID)
			continue
		}

		var mr *types.MergeRequest
		err := faults.Retry(ctx, o.retry, "forge.get_merge_request", func(ctx context.Context) error {
			var err error
			mr, err = o.forge.GetMergeRequest(ctx, t.MergeRequestID)
			return err
		})
		if err != nil {
			if faults.IsFatal(err) {
				return err
			}
			o.failTicket(ctx, passID, t, err, report)
			continue
		}

		// Humans can merge or close the request out from under the loop
		switch mr.State {
		case types.MergeRequestMerged:
			if err := o.retireMergedExternally(ctx, passID, t, report); err != nil {
				return err
			}
			continue
		case types.MergeRequestClosed:
			o.failTicket(ctx, passID, t,
				faults.TicketScoped("forge.sync", fmt.Errorf("merge request %s closed without merging", t.MergeRequestID)),
				report)
			continue
		}

		var comments []types.ReviewComment
		err = faults.Retry(ctx, o.retry, "forge.list_comments", func(ctx context.Context) error {
			var err error
			comments, err = o.forge.ListComments(ctx, t.MergeRequestID)
			return err
		})
		if err != nil {
			if faults.IsFatal(err) {
				return err
			}
			o.failTicket(ctx, passID, t, err, report)
			continue
		}

		fresh := o.reg.recordComments(t.ID, comments)
		reprocess, approve := DetectSignals(fresh, o.cfg.ReprocessSignals, o.cfg.ApprovalSignals)
		// Advance the persisted watermark with the transition, so a restart
		// does not re-apply the signals acted on here
		t.LastCommentAt = o.reg.commentWatermark(t.ID)
		d := Decide(t, Signals{NewComments: fresh, ReprocessSignal: reprocess, ApprovalSignal: approve})
		if d.Ticket.Status == t.Status {
			// No signal yet; the self-loop writes nothing
			continue
		}
		if err := o.settle(ctx, passID, t, d, nil, report); err != nil {
			return err
		}
	}
	return nil
}

// reprocessPhase requeues changes_needed tickets for another agent round.
// The agent itself runs in the next pass's execute phase.
func (o *Orchestrator) reprocessPhase(ctx context.Context, passID string, report *PassReport, only string) error {
	for _, t := range o.reg.inStatus(types.StatusChangesNeeded) {
		if only != "" && t.ID != only {
			continue
		}
		if err := o.settle(ctx, passID, t, Decide(t, Signals{}), nil, report); err != nil {
			return err
		}
	}
	return nil
}

// settle carries a decision through: perform its side effects, persist the
// advanced ticket, emit events, and record the outcome. Ticket-scoped and
// escalated errors fail the ticket; only fatal errors return.
func (o *Orchestrator) settle(ctx context.Context, passID string, from types.Ticket, d Decision, result *types.AgentResult, report *PassReport) error {
	if o.cfg.DryRun {
		report.record(TicketOutcome{
			TicketID: from.ID, From: from.Status, To: d.Ticket.Status,
			Trigger: d.Trigger, FailureReason: d.Ticket.FailureReason,
		})
		o.reg.upsert(d.Ticket)
		return nil
	}

	if err := o.perform(ctx, passID, &d, result); err != nil {
		if faults.IsFatal(err) {
			return err
		}
		o.failTicket(ctx, passID, from, err, report)
		return nil
	}

	if err := o.persist(ctx, d.Ticket); err != nil {
		if faults.IsFatal(err) {
			return err
		}
		// The tracker write failed but the world already moved; state will
		// re-derive from the worktree and forge on the next pass
		fmt.Fprintf(os.Stderr, "Warning: failed to persist %s: %v\n", d.Ticket.ID, err)
	}

	if d.Ticket.Status != from.Status {
		o.emit(ctx, events.NewStatusTransition(passID, from.ID, string(from.Status), string(d.Ticket.Status), d.Trigger))
	}
	if d.Ticket.Status == types.StatusFailed {
		o.emit(ctx, events.NewTicketFailed(passID, from.ID, d.Ticket.FailureReason))
	}

	report.record(TicketOutcome{
		TicketID: from.ID, From: from.Status, To: d.Ticket.Status,
		Trigger: d.Trigger, FailureReason: d.Ticket.FailureReason,
		RetriesUsed: d.Ticket.RetriesUsed,
	})

	if d.Ticket.Status == types.StatusMerged {
		o.reg.retire(from.ID)
		return nil
	}
	o.reg.upsert(d.Ticket)
	return nil
}

// perform executes a decision's side effects in order, updating the ticket
// in place (opening a merge request assigns its ID).
func (o *Orchestrator) perform(ctx context.Context, passID string, d *Decision, result *types.AgentResult) error {
	t := &d.Ticket
	handle := &worktree.Handle{Branch: t.Branch, Path: o.worktreePath(t.ID)}

	for _, action := range d.Actions {
		switch action {
		case ActionCreateWorktree:
			err := faults.Retry(ctx, o.retry, "worktree.create", func(ctx context.Context) error {
				_, err := o.worktrees.Create(ctx, t.Branch, handle.Path)
				return err
			})
			if err != nil {
				return err
			}
			o.emit(ctx, events.New(events.EventTypeWorktreeCreated, passID, t.ID, events.SeverityInfo,
				fmt.Sprintf("worktree created at %s on %s", handle.Path, t.Branch)))

		case ActionPushBranch:
			message := fmt.Sprintf("%s: %s", t.ID, t.Title)
			if t.ReviewRound > 0 {
				message = fmt.Sprintf("%s (review round %d)", message, t.ReviewRound)
			}
			err := faults.Retry(ctx, o.retry, "worktree.push", func(ctx context.Context) error {
				return o.worktrees.CommitAndPush(ctx, handle, message)
			})
			if err != nil {
				return err
			}

		case ActionOpenMergeRequest:
			title, body := o.describer.Describe(ctx, t, result)
			var id string
			err := faults.Retry(ctx, o.retry, "forge.create_merge_request", func(ctx context.Context) error {
				var err error
				id, err = o.forge.CreateMergeRequest(ctx, types.NewMergeRequest{
					TicketID:     t.ID,
					Title:        title,
					Body:         body,
					SourceBranch: t.Branch,
					TargetBranch: o.cfg.MainBranch,
				})
				return err
			})
			if err != nil {
				return err
			}
			t.MergeRequestID = id
			fmt.Printf("Opened merge request %s for %s\n", id, t.ID)
			o.emit(ctx, events.New(events.EventTypeMergeRequestOpened, passID, t.ID, events.SeverityInfo,
				fmt.Sprintf("merge request %s opened for branch %s", id, t.Branch)))

		case ActionCaptureComments:
			// Comments were folded into the registry during sync

		case ActionMerge:
			err := faults.Retry(ctx, o.retry, "forge.merge", func(ctx context.Context) error {
				return o.forge.Merge(ctx, t.MergeRequestID)
			})
			if err != nil {
				return err
			}
			fmt.Printf("Merged %s (merge request %s)\n", t.ID, t.MergeRequestID)
			o.emit(ctx, events.New(events.EventTypeMerged, passID, t.ID, events.SeverityInfo,
				fmt.Sprintf("merge request %s merged", t.MergeRequestID)))

		case ActionRemoveWorktree:
			if err := o.worktrees.Remove(ctx, handle); err != nil {
				// The merge already happened; a leftover worktree is cleanup debt
				fmt.Fprintf(os.Stderr, "Warning: failed to remove worktree for %s: %v\n", t.ID, err)
			}

		case ActionCloseTicket:
			err := faults.Retry(ctx, o.retry, "tracker.close_ticket", func(ctx context.Context) error {
				return o.tracker.CloseTicket(ctx, t.ID)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// retireMergedExternally catches up a ticket whose merge request a human
// merged outside the loop.
func (o *Orchestrator) retireMergedExternally(ctx context.Context, passID string, t types.Ticket, report *PassReport) error {
	d := Decision{
		Ticket:  t,
		Actions: []ActionKind{ActionRemoveWorktree, ActionCloseTicket},
		Trigger: "merged_externally",
	}
	d.Ticket.Status = types.StatusMerged
	return o.settle(ctx, passID, t, d, nil, report)
}

// failTicket marks a ticket failed from a collaborator error and persists it.
// Never called with a fatal error; those abort the pass.
func (o *Orchestrator) failTicket(ctx context.Context, passID string, t types.Ticket, opErr error, report *PassReport) {
	if faults.Attempts(opErr) > 0 {
		o.emit(ctx, events.New(events.EventTypeRetryEscalated, passID, t.ID, events.SeverityWarning,
			fmt.Sprintf("retries exhausted after %d attempt(s): %v", faults.Attempts(opErr), opErr)))
	}

	failed := Fail(t, opErr.Error(), faults.Attempts(opErr))
	if !o.cfg.DryRun {
		if err := o.persist(ctx, failed); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to persist failure of %s: %v\n", t.ID, err)
		}
	}

	o.emit(ctx, events.NewStatusTransition(passID, t.ID, string(t.Status), string(failed.Status), "error"))
	o.emit(ctx, events.NewTicketFailed(passID, t.ID, failed.FailureReason))

	fmt.Fprintf(os.Stderr, "Warning: ticket %s failed: %v\n", t.ID, opErr)

	o.reg.upsert(failed)
	report.record(TicketOutcome{
		TicketID: t.ID, From: t.Status, To: failed.Status,
		Trigger: "error", FailureReason: failed.FailureReason,
		RetriesUsed: failed.RetriesUsed,
	})
}

func (o *Orchestrator) persist(ctx context.Context, t types.Ticket) error {
	return faults.Retry(ctx, o.retry, "tracker.save_progress", func(ctx context.Context) error {
		return o.tracker.SaveProgress(ctx, &t)
	})
}

func (o *Orchestrator) emit(ctx context.Context, e *events.Event) {
	if o.events == nil {
		return
	}
	if err := o.events.StoreEvent(ctx, e); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to store event: %v\n", err)
	}
}

func (o *Orchestrator) worktreePath(ticketID string) string {
	return filepath.Join(o.cfg.WorktreeRoot, ticketID)
}
