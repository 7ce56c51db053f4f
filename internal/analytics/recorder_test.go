package analytics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagnunAVF/shortener-core/internal"
	"github.com/MagnunAVF/shortener-core/internal/metrics"
)

type fakeSink struct {
	mu     sync.Mutex
	events []*internal.ClickEvent
	err    error
	block  chan struct{}
}

func (f *fakeSink) Publish(ctx context.Context, ev *internal.ClickEvent) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSink) published() []*internal.ClickEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*internal.ClickEvent(nil), f.events...)
}

var clickedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testRecord() *internal.URLRecord {
	return &internal.URLRecord{ID: 7, Code: "abc1234", LongURL: "https://example.com"}
}

func TestBuildFillsEvent(t *testing.T) {
	r := NewRecorder(&fakeSink{}, nil, 0, metrics.NewNop())
	ev := r.Build(testRecord(), internal.RequestMeta{
		RemoteAddr: "192.0.2.1:1234",
		UserAgent:  "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) Safari/604.1",
		Referer:    "https://news.example",
		Country:    "BR",
	}, clickedAt)

	assert.NotEqual(t, [16]byte{}, [16]byte(ev.ID))
	assert.Equal(t, int64(7), ev.URLID)
	assert.Equal(t, "abc1234", ev.Code)
	assert.Equal(t, clickedAt, ev.ClickedAt)
	assert.Equal(t, "192.0.2.1", ev.IPAddress)
	require.NotNil(t, ev.Referer)
	assert.Equal(t, "https://news.example", *ev.Referer)
	require.NotNil(t, ev.Country)
	assert.Equal(t, "BR", *ev.Country)
	assert.Nil(t, ev.City)
	assert.Equal(t, "Mobile", *ev.DeviceType)
	assert.Equal(t, "Safari", *ev.Browser)
	assert.Equal(t, "iOS", *ev.OS)
}

func TestBuildWithoutUserAgent(t *testing.T) {
	r := NewRecorder(&fakeSink{}, nil, 0, metrics.NewNop())
	ev := r.Build(testRecord(), internal.RequestMeta{UserAgent: ""}, clickedAt)

	assert.Nil(t, ev.DeviceType)
	assert.Nil(t, ev.Browser)
	assert.Nil(t, ev.OS)
	assert.Nil(t, ev.Referer)
}

func TestBuildTruncatesLongUserAgent(t *testing.T) {
	r := NewRecorder(&fakeSink{}, nil, 0, metrics.NewNop())
	ev := r.Build(testRecord(), internal.RequestMeta{UserAgent: strings.Repeat("x", 900)}, clickedAt)
	assert.Len(t, ev.UserAgent, maxUserAgentLength)
}

func TestBuildKeepsUserAgentValidUTF8(t *testing.T) {
	r := NewRecorder(&fakeSink{}, nil, 0, metrics.NewNop())

	// the two byte é straddles the length limit
	ua := strings.Repeat("a", maxUserAgentLength-1) + "é" + "tail"
	ev := r.Build(testRecord(), internal.RequestMeta{UserAgent: ua}, clickedAt)
	assert.True(t, utf8.ValidString(ev.UserAgent))
	assert.Equal(t, strings.Repeat("a", maxUserAgentLength-1), ev.UserAgent)

	ev = r.Build(testRecord(), internal.RequestMeta{
		UserAgent: "Mozilla/5.0 \xff\xfe",
		Referer:   "https://ref.example/\xc3",
		City:      "S\xe3o Paulo",
	}, clickedAt)
	assert.Equal(t, "Mozilla/5.0 \uFFFD", ev.UserAgent)
	require.NotNil(t, ev.Referer)
	assert.True(t, utf8.ValidString(*ev.Referer))
	require.NotNil(t, ev.City)
	assert.Equal(t, "S\uFFFDo Paulo", *ev.City)
}

func TestRecordClickDoesNotBlock(t *testing.T) {
	sink := &fakeSink{block: make(chan struct{})}
	m := metrics.NewNop()
	r := NewRecorder(sink, nil, time.Second, m)

	done := make(chan struct{})
	go func() {
		r.RecordClick(testRecord(), internal.RequestMeta{}, clickedAt)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RecordClick blocked on the sink")
	}

	close(sink.block)
	r.Wait()
	assert.Len(t, sink.published(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClickEvents.WithLabelValues("published")))
}

func TestRecordClickCountsFailures(t *testing.T) {
	m := metrics.NewNop()
	r := NewRecorder(&fakeSink{err: errors.New("broker down")}, nil, time.Second, m)
	r.RecordClick(testRecord(), internal.RequestMeta{}, clickedAt)
	r.Wait()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClickEvents.WithLabelValues("failed")))

	full := NewBufferedSink(1)
	r = NewRecorder(full, nil, time.Second, m)
	r.RecordClick(testRecord(), internal.RequestMeta{}, clickedAt)
	r.Wait()
	r.RecordClick(testRecord(), internal.RequestMeta{}, clickedAt)
	r.Wait()
	assert.Equal(t, 1, full.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClickEvents.WithLabelValues("dropped")))
}
