package activity

import (
	"context"
	"log/slog"
)

// Writer is what domain services use to log and announce their mutations.
type Writer interface {
	// Record appends an activity row inside the transaction bound to ctx.
	Record(ctx context.Context, e Entry) (*Activity, error)
	// Publish announces committed activity. Failures are not returned.
	Publish(ctx context.Context, acts ...*Activity)
}

// Appender persists activity rows.
type Appender interface {
	Append(ctx context.Context, e Entry) (*Activity, error)
}

// Observer is notified of publish outcomes.
type Observer interface {
	IncActivityPublished(status string)
}

// Recorder implements Writer on top of an Appender and a Bus.
type Recorder struct {
	store    Appender
	bus      Bus
	observer Observer
}

// NewRecorder creates a Recorder.
func NewRecorder(store Appender, bus Bus) *Recorder {
	return &Recorder{store: store, bus: bus}
}

// SetObserver installs an observer for publish outcomes.
func (r *Recorder) SetObserver(o Observer) {
	r.observer = o
}

func (r *Recorder) Record(ctx context.Context, e Entry) (*Activity, error) {
	return r.store.Append(ctx, e)
}

func (r *Recorder) Publish(ctx context.Context, acts ...*Activity) {
	for _, a := range acts {
		if a == nil {
			continue
		}
		status := "ok"
		if err := r.bus.Publish(ctx, a); err != nil {
			status = "error"
			slog.Error("activity publish failed",
				"error", err,
				"activity_id", a.ID,
				"team_id", a.TeamID,
			)
		}
		if r.observer != nil {
			r.observer.IncActivityPublished(status)
		}
	}
}
