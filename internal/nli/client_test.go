package nli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noBackoff(int) time.Duration { return 0 }

type countingObserver struct {
	requests atomic.Int32
	retries  atomic.Int32
}

func (o *countingObserver) ObserveProviderRequest(string, time.Duration) { o.requests.Add(1) }
func (o *countingObserver) ObserveProviderRetry()                        { o.retries.Add(1) }

func TestClient_Score_SendsPairAndParsesLabels(t *testing.T) {
	var got ScoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"label":"contradiction","score":0.93},{"label":"neutral","score":0.05},{"label":"entailment","score":0.02}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", WithBackoff(noBackoff))
	scores, err := c.Score(context.Background(), "refunds within 30 days", "no refunds at all")
	require.NoError(t, err)

	assert.Equal(t, "refunds within 30 days", got.Inputs.Premise)
	assert.Equal(t, "no refunds at all", got.Inputs.Hypothesis)
	assert.InDelta(t, 0.93, scores.Contradiction, 1e-9)
	assert.InDelta(t, 0.05, scores.Neutral, 1e-9)
	assert.InDelta(t, 0.02, scores.Entailment, 1e-9)
}

func TestClient_Score_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"entailment":0.9,"neutral":0.05,"contradiction":0.05}`))
	}))
	defer srv.Close()

	obs := &countingObserver{}
	c := NewClient(srv.URL, "k", WithBackoff(noBackoff), WithObserver(obs))
	scores, err := c.Score(context.Background(), "a premise here", "a hypothesis here")
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(3), obs.requests.Load())
	assert.Equal(t, int32(2), obs.retries.Load())
	assert.InDelta(t, 0.9, scores.Entailment, 1e-9)
}

func TestClient_Score_ExhaustedRetriesReturnProviderError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", WithBackoff(noBackoff))
	_, err := c.Score(context.Background(), "premise text", "hypothesis text")
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 3, perr.Attempts)
	assert.Equal(t, http.StatusInternalServerError, perr.StatusCode)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Score_MalformedResponseIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`"not scores"`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", WithBackoff(noBackoff))
	_, err := c.Score(context.Background(), "premise text", "hypothesis text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Score_StopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(srv.URL, "k", WithBackoff(func(int) time.Duration {
		cancel()
		return time.Hour
	}))

	_, err := c.Score(ctx, "premise text", "hypothesis text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Score_RateLimitPastDeadlineIsNotAProviderError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"entailment":0.9,"neutral":0.05,"contradiction":0.05}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", WithBackoff(noBackoff), WithRateLimit(0.001))
	_, err := c.Score(context.Background(), "premise text", "hypothesis text")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, err = c.Score(ctx, "premise text", "hypothesis text")
	require.Error(t, err)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var perr *ProviderError
	assert.False(t, errors.As(err, &perr))
	assert.Equal(t, int32(1), calls.Load())
}

func TestLinearBackoff(t *testing.T) {
	assert.Equal(t, time.Second, LinearBackoff(1))
	assert.Equal(t, 2*time.Second, LinearBackoff(2))
}

func TestParseScores(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Scores
		wantErr bool
	}{
		{
			name: "label list",
			body: `[{"label":"ENTAILMENT","score":0.7},{"label":"NEUTRAL","score":0.2},{"label":"CONTRADICTION","score":0.1}]`,
			want: Scores{Entailment: 0.7, Neutral: 0.2, Contradiction: 0.1},
		},
		{
			name: "nested label list",
			body: `[[{"label":"contradiction","score":0.97},{"label":"neutral","score":0.003},{"label":"entailment","score":0.0003}]]`,
			want: Scores{Entailment: 0.0003, Neutral: 0.003, Contradiction: 0.97},
		},
		{
			name: "legacy object",
			body: `{"contradiction":0.4,"entailment":0.3,"neutral":0.3}`,
			want: Scores{Entailment: 0.3, Neutral: 0.3, Contradiction: 0.4},
		},
		{name: "empty", body: ``, wantErr: true},
		{name: "empty list", body: `[]`, wantErr: true},
		{name: "unknown labels", body: `[{"label":"LABEL_0","score":1}]`, wantErr: true},
		{name: "error object", body: `{"error":"model loading"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScores([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want.Entailment, got.Entailment, 1e-9)
			assert.InDelta(t, tt.want.Neutral, got.Neutral, 1e-9)
			assert.InDelta(t, tt.want.Contradiction, got.Contradiction, 1e-9)
		})
	}
}
