package orchestrator

import (
	"context"
	"fmt"

	"github.com/mjankowski/autodev/internal/faults"
	"github.com/mjankowski/autodev/internal/types"
	"github.com/mjankowski/autodev/internal/worktree"
)

// mergePhase integrates approved tickets one at a time, in ascending ticket
// ID order. Sequencing matters: each merge moves main, so every following
// ticket rebases onto the result before its own merge. A conflicting rebase
// fails that ticket and the coordinator moves on; it never blocks the queue.
func (o *Orchestrator) mergePhase(ctx context.Context, passID string, report *PassReport, only string) error {
	approved := o.reg.inStatus(types.StatusApproved)
	if len(approved) == 0 {
		return nil
	}

	for _, t := range approved {
		if only != "" && t.ID != only {
			continue
		}

		if o.cfg.DryRun {
			report.record(TicketOutcome{
				TicketID: t.ID, From: t.Status, To: t.Status,
				Trigger: "merge_skipped",
			})
			continue
		}

		fmt.Printf("Merging %s (merge request %s)\n", t.ID, t.MergeRequestID)

		handle := &worktree.Handle{Branch: t.Branch, Path: o.worktreePath(t.ID)}
		var rebase *types.RebaseResult
		err := faults.Retry(ctx, o.retry, "worktree.rebase", func(ctx context.Context) error {
			var err error
			rebase, err = o.worktrees.RebaseOnMain(ctx, handle)
			return err
		})
		if err != nil {
			if faults.IsFatal(err) {
				return err
			}
			o.failTicket(ctx, passID, t, err, report)
			continue
		}

		if err := o.settle(ctx, passID, t, Decide(t, Signals{Rebase: rebase}), nil, report); err != nil {
			return err
		}
	}
	return nil
}
