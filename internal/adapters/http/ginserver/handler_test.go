package ginserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vshulcz/Gatecounter/internal/adapters/http/ginserver/middlewares"
	"github.com/vshulcz/Gatecounter/internal/domain"
	"github.com/vshulcz/Gatecounter/internal/services/audit"
	"github.com/vshulcz/Gatecounter/internal/services/poller"
	"go.uber.org/zap"
)

type fakeCollector struct {
	gotCtx context.Context
	err    error
	status poller.Status
	rep    domain.PassReport
	calls  int
}

func (f *fakeCollector) RunOnce(ctx context.Context) (domain.PassReport, error) {
	f.calls++
	f.gotCtx = ctx
	return f.rep, f.err
}

func (f *fakeCollector) Status() poller.Status { return f.status }

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newServer(t *testing.T, c Collector, store Pinger, adminKey string, opts ...HandlerOption) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(c, store, opts...)
	srv := httptest.NewServer(NewRouter(h, adminKey, middlewares.ZapLogger(zap.NewNop())))
	t.Cleanup(srv.Close)
	return srv
}

func doReq(t *testing.T, method, url string, hdr map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func okStore() Pinger { return pingerFunc(func(context.Context) error { return nil }) }

func TestHandler_Ping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"db down", errors.New("conn refused"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, &fakeCollector{}, pingerFunc(func(context.Context) error { return tc.err }), "")
			resp, body := doReq(t, http.MethodGet, srv.URL+"/ping", nil)
			if resp.StatusCode != tc.want {
				t.Fatalf("status=%d body=%s", resp.StatusCode, body)
			}
		})
	}
}

func TestHandler_Run(t *testing.T) {
	sample := domain.GateSample{GateName: "FM South gate", AlarmCount: 5, IncomingCount: 120, OutgoingCount: 80}
	okRep := domain.PassReport{
		ID: "p1",
		Outcomes: []domain.GateOutcome{
			{Gate: domain.Gate{Name: "FM South gate"}, Sample: &sample},
			{Gate: domain.Gate{Name: "Gate 2"}, Stage: domain.StageFetch, Err: &domain.FetchError{Kind: domain.ErrBadStatus, URL: "http://g2", Status: 500}},
		},
	}
	batchErr := &domain.BatchError{PassID: "p2", Cause: errors.New("panic: boom")}

	tests := []struct {
		name     string
		rep      domain.PassReport
		err      error
		want     int
		contains string
	}{
		{"ok with gate failure", okRep, nil, http.StatusOK, `"recorded":1`},
		{"lock unavailable", domain.PassReport{}, fmt.Errorf("acquire lock %q: %w", "gate_counter", domain.ErrLockUnavailable), http.StatusConflict, "lock unavailable"},
		{"batch failure", domain.PassReport{ID: "p2", Err: batchErr}, batchErr, http.StatusInternalServerError, `"id":"p2"`},
		{"other error", domain.PassReport{}, errors.New("weird"), http.StatusInternalServerError, "weird"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeCollector{rep: tc.rep, err: tc.err}
			srv := newServer(t, fc, okStore(), "")
			resp, body := doReq(t, http.MethodPost, srv.URL+"/run", nil)
			if resp.StatusCode != tc.want {
				t.Fatalf("status=%d want %d body=%s", resp.StatusCode, tc.want, body)
			}
			if !strings.Contains(string(body), tc.contains) {
				t.Fatalf("body %s lacks %s", body, tc.contains)
			}
			if fc.calls != 1 {
				t.Fatalf("RunOnce calls=%d", fc.calls)
			}
			if audit.TriggerFromContext(fc.gotCtx) != audit.TriggerManual || audit.ClientIPFromContext(fc.gotCtx) == "" {
				t.Fatal("manual trigger and client IP must reach the pass context")
			}
			if fc.gotCtx.Done() != nil {
				t.Fatal("pass context must be detached from the request")
			}
		})
	}
}

func TestHandler_RunRequiresKey(t *testing.T) {
	fc := &fakeCollector{rep: domain.PassReport{ID: "p1"}}
	srv := newServer(t, fc, okStore(), "s3cret")

	resp, _ := doReq(t, http.MethodPost, srv.URL+"/run", nil)
	if resp.StatusCode != http.StatusUnauthorized || fc.calls != 0 {
		t.Fatalf("status=%d calls=%d", resp.StatusCode, fc.calls)
	}
	resp, _ = doReq(t, http.MethodPost, srv.URL+"/run", map[string]string{"Authorization": "Bearer s3cret"})
	if resp.StatusCode != http.StatusOK || fc.calls != 1 {
		t.Fatalf("status=%d calls=%d", resp.StatusCode, fc.calls)
	}
	resp, _ = doReq(t, http.MethodGet, srv.URL+"/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint must stay open, got %d", resp.StatusCode)
	}
}

func TestHandler_Status(t *testing.T) {
	fc := &fakeCollector{status: poller.Status{
		State:   "waiting",
		Running: true,
		Gates:   []domain.Gate{{URL: "http://south", Name: "FM South gate"}},
		LastPass: &poller.PassSummary{
			ID: "p9", FinishedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), Recorded: 1,
		},
	}}

	t.Run("with lock info", func(t *testing.T) {
		srv := newServer(t, fc, okStore(), "", WithLockInfo(func() (any, error) {
			return map[string]any{"pid": 42, "alive": true}, nil
		}))
		resp, body := doReq(t, http.MethodGet, srv.URL+"/status", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status=%d", resp.StatusCode)
		}
		var got struct {
			Collector poller.Status  `json:"collector"`
			Lock      map[string]any `json:"lock"`
		}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("decode: %v (%s)", err, body)
		}
		if got.Collector.State != "waiting" || !got.Collector.Running || got.Collector.LastPass.ID != "p9" {
			t.Fatalf("collector=%+v", got.Collector)
		}
		if got.Lock["pid"] != float64(42) {
			t.Fatalf("lock=%v", got.Lock)
		}
	})

	t.Run("lock info error", func(t *testing.T) {
		srv := newServer(t, fc, okStore(), "", WithLockInfo(func() (any, error) {
			return nil, errors.New("no lock file")
		}))
		_, body := doReq(t, http.MethodGet, srv.URL+"/status", nil)
		if !strings.Contains(string(body), `"error":"no lock file"`) {
			t.Fatalf("body=%s", body)
		}
	})
}

func TestHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "gatecounter_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	srv := newServer(t, &fakeCollector{}, okStore(), "", WithGatherer(reg))
	resp, body := doReq(t, http.MethodGet, srv.URL+"/metrics", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "gatecounter_test_total 3") {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	srv := newServer(t, &fakeCollector{}, okStore(), "")
	resp, _ := doReq(t, http.MethodGet, srv.URL+"/run", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestNewServer(t *testing.T) {
	s := NewServer(":0", NewHandler(&fakeCollector{}, okStore()), "", zap.NewNop())
	if s.Addr != ":0" || s.Handler == nil || s.ReadHeaderTimeout == 0 {
		t.Fatalf("server=%+v", s)
	}
}
