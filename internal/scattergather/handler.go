package scattergather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/R3E-Network/composition_layer/internal/httputil"
	"github.com/R3E-Network/composition_layer/internal/logging"
	"github.com/R3E-Network/composition_layer/internal/metrics"
)

// StatusClientClosedRequest is logged when the client went away before the
// response could be written.
const StatusClientClosedRequest = 499

// handler runs the scatter/gather protocol for one route.
type handler struct {
	template string
	opts     Options
	services *Services
}

func newHandler(template string, opts Options, services *Services) *handler {
	return &handler{template: template, opts: opts, services: services}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := WithServices(r.Context(), h.services)
	ctx = logging.WithRoute(ctx, h.template)
	log := h.services.Logger.WithContext(ctx)

	// Started
	newAggregator := h.opts.Aggregator
	if newAggregator == nil {
		newAggregator = defaultAggregatorFactory
	}
	aggregator, err := newAggregator(r)
	if err != nil {
		h.fail(ctx, w, r, log, fmt.Errorf("resolve aggregator: %w", err), start)
		return
	}
	if aggregator == nil {
		h.fail(ctx, w, r, log, errors.New("resolve aggregator: factory returned nil"), start)
		return
	}

	// Scattering
	log.WithField("gatherers", len(h.opts.Gatherers)).Debug("scattering")
	group, groupCtx := errgroup.WithContext(ctx)
	for _, g := range h.opts.Gatherers {
		g := g
		group.Go(func() error {
			items, err := h.gather(groupCtx, g, r)
			if err != nil {
				return err
			}
			aggregator.Add(items)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		h.fail(ctx, w, r, log, err, start)
		return
	}

	// Aggregating
	log.Debug("aggregating")
	result := aggregator.Aggregate()

	// Responding
	log.Debug("responding")
	if h.opts.UseOutputFormatters {
		if err := h.services.Negotiator.Write(w, r, http.StatusOK, result); err != nil {
			h.fail(ctx, w, r, log, err, start)
			return
		}
	} else {
		httputil.WriteJSON(w, http.StatusOK, result)
	}

	h.record(metrics.OutcomeSuccess, itemCount(result), start)
}

// gather runs one gatherer, turning a panic into an error and recording its outcome.
func (h *handler) gather(ctx context.Context, g Gatherer, r *http.Request) (items []interface{}, err error) {
	start := time.Now()
	rec := &outcomeRecorder{}
	ctx = withOutcome(ctx, rec)

	defer func() {
		if p := recover(); p != nil {
			items, err = nil, fmt.Errorf("gatherer %q panicked: %v", g.Key(), p)
		}
		outcome := rec.get()
		if err != nil {
			outcome = metrics.OutcomeFailed
		} else if outcome == "" {
			outcome = metrics.OutcomeSuccess
		}
		if h.services.Metrics != nil {
			h.services.Metrics.RecordGatherer(g.Key(), outcome, time.Since(start))
		}
	}()

	return g.Gather(ctx, r)
}

func (h *handler) fail(ctx context.Context, w http.ResponseWriter, r *http.Request, log *logrus.Entry, err error, start time.Time) {
	if errors.Is(r.Context().Err(), context.Canceled) {
		log.WithError(err).WithField("status", StatusClientClosedRequest).Info("client closed request")
		h.record(metrics.OutcomeFailed, 0, start)
		return
	}

	status := http.StatusInternalServerError
	message := "scatter/gather failed"
	var downstream *DownstreamError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		message = "downstream request timed out"
	case errors.As(err, &downstream):
		status = http.StatusBadGateway
		message = fmt.Sprintf("downstream %q failed", downstream.Key)
	}

	log.WithError(err).WithField("status", status).Error("scatter/gather failed")
	httputil.WriteError(w, status, message)
	h.record(metrics.OutcomeFailed, 0, start)
}

func (h *handler) record(outcome string, items int, start time.Time) {
	if h.services.Metrics != nil {
		h.services.Metrics.RecordScatter(h.template, outcome, items, time.Since(start))
	}
}

func itemCount(v interface{}) int {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len()
	default:
		return 1
	}
}

// =============================================================================
// Gatherer outcomes
// =============================================================================

type outcomeRecorder struct {
	mu      sync.Mutex
	outcome string
}

func (o *outcomeRecorder) set(outcome string) {
	o.mu.Lock()
	o.outcome = outcome
	o.mu.Unlock()
}

func (o *outcomeRecorder) get() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcome
}

type outcomeKey struct{}

func withOutcome(ctx context.Context, rec *outcomeRecorder) context.Context {
	return context.WithValue(ctx, outcomeKey{}, rec)
}

// ReportOutcome lets a gatherer mark its call as ignored or cached for metrics.
// It is a no-op outside a scatter/gather request.
func ReportOutcome(ctx context.Context, outcome string) {
	if rec, ok := ctx.Value(outcomeKey{}).(*outcomeRecorder); ok {
		rec.set(outcome)
	}
}
