package analytics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MagnunAVF/shortener-core/internal"
	"github.com/MagnunAVF/shortener-core/internal/logger"
	"github.com/MagnunAVF/shortener-core/internal/metrics"
)

const (
	maxIPLength        = 45
	maxUserAgentLength = 500
	maxRefererLength   = 2048
	maxCountryLength   = 64
	maxCityLength      = 128
)

// EventSink is where click events go: an in-process buffer or a broker.
type EventSink interface {
	Publish(ctx context.Context, ev *internal.ClickEvent) error
}

// Recorder builds click events and hands them to a sink in the background.
type Recorder struct {
	sink       EventSink
	classifier Classifier
	timeout    time.Duration
	metrics    *metrics.Metrics
	wg         sync.WaitGroup
}

func NewRecorder(sink EventSink, classifier Classifier, timeout time.Duration, m *metrics.Metrics) *Recorder {
	if classifier == nil {
		classifier = HeuristicClassifier{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{sink: sink, classifier: classifier, timeout: timeout, metrics: m}
}

// RecordClick never blocks on the sink and never fails the caller.
func (r *Recorder) RecordClick(rec *internal.URLRecord, meta internal.RequestMeta, at time.Time) {
	ev := r.Build(rec, meta, at)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		err := r.sink.Publish(ctx, ev)
		switch {
		case err == nil:
			r.metrics.ClickEvents.WithLabelValues("published").Inc()
		case errors.Is(err, ErrBufferFull):
			r.metrics.ClickEvents.WithLabelValues("dropped").Inc()
			logger.Default().Warn("Click buffer full, dropping event", "code", ev.Code)
		default:
			r.metrics.ClickEvents.WithLabelValues("failed").Inc()
			logger.Default().Error("Failed to publish click event", "code", ev.Code, "err", err)
		}
	}()
}

// Build derives the click event for one redirect of rec.
func (r *Recorder) Build(rec *internal.URLRecord, meta internal.RequestMeta, at time.Time) *internal.ClickEvent {
	ev := &internal.ClickEvent{
		ID:        uuid.New(),
		URLID:     rec.ID,
		Code:      rec.Code,
		ClickedAt: at.UTC(),
		IPAddress: truncate(ClientIP(meta), maxIPLength),
		UserAgent: truncate(meta.UserAgent, maxUserAgentLength),
		Referer:   optional(truncate(meta.Referer, maxRefererLength)),
		Country:   optional(truncate(meta.Country, maxCountryLength)),
		City:      optional(truncate(meta.City, maxCityLength)),
	}
	if meta.UserAgent != "" {
		c := r.classifier.Classify(meta.UserAgent)
		ev.DeviceType = optional(c.Device)
		ev.Browser = optional(c.Browser)
		ev.OS = optional(c.OS)
	}
	return ev
}

// Wait blocks until every publish started so far has finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// truncate cuts s to at most n bytes without splitting a rune, after
// replacing invalid UTF-8 that the database would reject.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
