package settlement

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/omentrader/internal/domain"
	"github.com/alanyoungcy/omentrader/internal/notify"
)

// Stream and channel the settlement side listens on.
const (
	PayloadStream  = "settlement:payloads"
	PayloadChannel = "ch:settlement"
)

// Sink implements domain.ResultSink. Every dependency is optional; a nil
// one is skipped.
type Sink struct {
	Bus      domain.SignalBus
	Results  domain.ResultStore
	Archive  domain.BlobWriter
	Audit    domain.AuditStore
	Notifier *notify.Notifier
	Logger   *slog.Logger
}

// Emit delivers res to every configured destination concurrently. A failed
// destination does not stop the others; the first error is returned after
// all have finished.
func (s *Sink) Emit(ctx context.Context, res domain.WorkflowResult) error {
	log := s.logger().With(
		slog.String("run_id", res.RunID),
		slog.String("workflow", string(res.Workflow)),
	)
	payload, err := Encode(res)
	if err != nil {
		return fmt.Errorf("settlement: encode: %w", err)
	}

	var g errgroup.Group
	run := func(dest string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				log.ErrorContext(ctx, "settlement destination failed",
					slog.String("destination", dest), slog.String("error", err.Error()))
				return fmt.Errorf("settlement: %s: %w", dest, err)
			}
			return nil
		})
	}

	if s.Bus != nil {
		run("stream", func() error {
			if err := s.Bus.StreamAppend(ctx, PayloadStream, payload); err != nil {
				return err
			}
			return s.Bus.Publish(ctx, PayloadChannel, payload)
		})
	}
	if s.Results != nil {
		run("results", func() error { return s.Results.Insert(ctx, res) })
	}
	if s.Archive != nil && res.HasPayload() {
		run("archive", func() error {
			return s.Archive.Put(ctx, ArchiveKey(res), bytes.NewReader(payload), "application/json")
		})
	}
	if s.Audit != nil {
		run("audit", func() error {
			return s.Audit.Log(ctx, "workflow_completed", map[string]any{
				"run_id":      res.RunID,
				"workflow":    string(res.Workflow),
				"has_payload": res.HasPayload(),
			})
		})
	}
	if s.Notifier.Enabled() && res.HasPayload() {
		run("notify", func() error {
			return s.Notifier.Notify(ctx, notify.EventPayloadReady, "Settlement payload ready", summary(res))
		})
	}

	err = g.Wait()
	log.InfoContext(ctx, "workflow result emitted", slog.Bool("has_payload", res.HasPayload()))
	return err
}

func (s *Sink) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func summary(res domain.WorkflowResult) string {
	msg := fmt.Sprintf("workflow=%s run=%s submitter=%s bytes=%d",
		res.Workflow, res.RunID, deref(res.Submitter), len(deref(res.TxHex))/2)
	if res.ExpectedWinnings != nil && res.ExpectedWinnings.Sign() > 0 {
		msg += " expected_winnings=" + res.ExpectedWinnings.String()
	}
	return msg
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ domain.ResultSink = (*Sink)(nil)
