package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qecbench/internal/stabilizer"
	"qecbench/pkg/contract"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func experiment(q *int) contract.Experiment {
	return contract.Experiment{Code: stabilizer.ThreeQubit(), InitialState: contract.StateZero, InjectedErrorQubit: q}
}

func TestSubmitSuccess(t *testing.T) {
	var got jobReq
	var auth, extra string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/jobs", r.URL.Path)
		auth = r.Header.Get("Authorization")
		extra = r.Header.Get("X-Lab")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"counts":{"01 100":5}}`))
	})

	b, err := New(&Options{BaseURL: srv.URL + "/", APIKey: "k", Device: "qpu-a", ExtraHeaders: map[string]string{"X-Lab": "1"}})
	require.NoError(t, err)
	q := 0
	c, err := b.Submit(context.Background(), experiment(&q), 5)
	require.NoError(t, err)
	assert.Equal(t, contract.Counts{"01 100": 5}, c)

	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, "1", extra)
	assert.Equal(t, "qpu-a", got.Device)
	assert.Equal(t, "3-Qubit Code", got.Code.Name)
	assert.Equal(t, []string{"ZZI", "IZZ"}, got.Code.Stabilizers)
	assert.Equal(t, "0", got.InitialState)
	require.NotNil(t, got.InjectedErrorQubit)
	assert.Equal(t, 0, *got.InjectedErrorQubit)
	assert.Equal(t, 5, got.Shots)
}

func TestSubmitNoAuthWithoutKey(t *testing.T) {
	t.Setenv("QECBENCH_REMOTE_API_KEY", "")
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"counts":{"00 000":2}}`))
	})
	b, err := New(&Options{EndpointPath: srv.URL + "/run"})
	require.NoError(t, err)
	_, err = b.Submit(context.Background(), experiment(nil), 2)
	require.NoError(t, err)
}

func TestSubmitStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{http.StatusTooManyRequests, "", func(t *testing.T, err error) { assert.ErrorIs(t, err, contract.ErrRateLimited) }},
		{http.StatusBadGateway, "down", func(t *testing.T, err error) {
			var ne net.Error
			require.True(t, errors.As(err, &ne))
			assert.Contains(t, err.Error(), "down")
		}},
		{http.StatusBadRequest, "bad", func(t *testing.T, err error) { assert.ErrorIs(t, err, contract.ErrBackend) }},
		{http.StatusOK, "{", func(t *testing.T, err error) { assert.ErrorIs(t, err, contract.ErrBackend) }},
		{http.StatusOK, `{"error":"queue full"}`, func(t *testing.T, err error) { assert.ErrorIs(t, err, contract.ErrBackend) }},
		{http.StatusOK, `{"counts":{"0 000":1}}`, func(t *testing.T, err error) { assert.ErrorIs(t, err, contract.ErrBackend) }},
		{http.StatusOK, `{"counts":{"00 000":-1}}`, func(t *testing.T, err error) { assert.ErrorIs(t, err, contract.ErrBackend) }},
	}
	for _, tc := range cases {
		srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		})
		b, err := New(&Options{BaseURL: srv.URL})
		require.NoError(t, err)
		_, err = b.Submit(context.Background(), experiment(nil), 1)
		require.Error(t, err, "%d %s", tc.status, tc.body)
		tc.check(t, err)
	}
}

func TestSubmitCanceled(t *testing.T) {
	b, err := New(&Options{BaseURL: "http://example.invalid"})
	require.NoError(t, err)
	b.do = func(r *http.Request) (*http.Response, error) {
		<-r.Context().Done()
		return nil, r.Context().Err()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Submit(ctx, experiment(nil), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewAndInputErrors(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, contract.ErrConfiguration)

	b, err := New(&Options{BaseURL: "http://example.invalid"})
	require.NoError(t, err)
	_, err = b.Submit(context.Background(), experiment(nil), 0)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}
