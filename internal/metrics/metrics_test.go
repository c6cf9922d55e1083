package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRefreshOutcomeCounters(t *testing.T) {
	for _, outcome := range []string{OutcomeRefreshed, OutcomeReused, OutcomeRescued, OutcomeFailed} {
		before := testutil.ToFloat64(TokenRefreshes.WithLabelValues(outcome))
		TokenRefreshes.WithLabelValues(outcome).Inc()
		if v := testutil.ToFloat64(TokenRefreshes.WithLabelValues(outcome)); v != before+1 {
			t.Fatalf("%s: expected %v, got %v", outcome, before+1, v)
		}
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	CacheHits.Inc()
	Logins.WithLabelValues("success").Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"oauthkit_token_cache_hits_total", "oauthkit_logins_total"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}
