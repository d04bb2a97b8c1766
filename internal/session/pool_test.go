package session_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsecast/internal/domain"
	"pulsecast/internal/remote/fake"
	"pulsecast/internal/session"
)

func TestThreshold(t *testing.T) {
	tests := map[int]int{0: 1, 1: 1, 2: 1, 3: 2, 4: 3, 5: 3, 8: 6, 10: 7, 100: 75}
	for n, exp := range tests {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			assert.Equal(t, exp, session.Threshold(n))
		})
	}
}

func TestPoolBootstrap(t *testing.T) {
	tests := map[string]struct {
		creds       []string
		client      *fake.Client
		expHealthy  []int
		expBreaches int
		expBreach   session.Breach
	}{
		"All credentials healthy should not breach": {
			creds:      []string{"a", "b", "c"},
			client:     &fake.Client{},
			expHealthy: []int{0, 1, 2},
		},
		"A login failure below threshold should be tolerated": {
			creds:      []string{"a", "b", "c", "d"},
			client:     &fake.Client{BadCredentials: map[string]bool{"b": true}},
			expHealthy: []int{0, 2, 3},
		},
		"Access failures count as unhealthy": {
			creds:       []string{"a", "b", "c", "d"},
			client:      &fake.Client{NoAccess: map[string]bool{"a": true, "c": true}, BadCredentials: map[string]bool{"d": true}},
			expHealthy:  []int{1},
			expBreaches: 1,
			expBreach:   session.Breach{Unhealthy: 3, Total: 4, Healthy: 1},
		},
		"Three of four failing should breach even with a healthy session": {
			creds:       []string{"ok", "x", "y", "z"},
			client:      &fake.Client{BadCredentials: map[string]bool{"x": true, "y": true, "z": true}},
			expHealthy:  []int{0},
			expBreaches: 1,
			expBreach:   session.Breach{Unhealthy: 3, Total: 4, Healthy: 1},
		},
		"A single failing credential should breach": {
			creds:       []string{"x"},
			client:      &fake.Client{BadCredentials: map[string]bool{"x": true}},
			expHealthy:  []int{},
			expBreaches: 1,
			expBreach:   session.Breach{Unhealthy: 1, Total: 1, Healthy: 0},
		},
		"Failures past the threshold should report once": {
			creds:       []string{"w", "x", "y", "z"},
			client:      &fake.Client{BadCredentials: map[string]bool{"w": true, "x": true, "y": true, "z": true}},
			expHealthy:  []int{},
			expBreaches: 1,
			expBreach:   session.Breach{Unhealthy: 3, Total: 4, Healthy: 0},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var breaches []session.Breach
			p := session.New(test.client, nil, func(b session.Breach) { breaches = append(breaches, b) })

			n := p.Bootstrap(context.Background(), test.creds, "42")
			assert.Equal(t, len(test.expHealthy), n)

			got := []int{}
			for _, e := range p.Healthy() {
				assert.True(t, e.Healthy)
				require.NotNil(t, e.Handle)
				got = append(got, e.Index)
			}
			assert.Equal(t, test.expHealthy, got)
			require.Len(t, breaches, test.expBreaches)
			if test.expBreaches > 0 {
				assert.Equal(t, test.expBreach, breaches[0])
				assert.True(t, p.Breached())
			}
		})
	}
}

func TestPoolBootstrapLogsInOrder(t *testing.T) {
	c := &fake.Client{BadCredentials: map[string]bool{"b": true}}
	var lines []string
	p := session.New(c, func(f string, args ...any) { lines = append(lines, fmt.Sprintf(f, args...)) }, nil)

	p.Bootstrap(context.Background(), []string{"a", "b", "c", "d", "e"}, "42")

	require.Len(t, lines, 5)
	assert.Equal(t, "Cookie #1 ready (a)", lines[0])
	assert.Contains(t, lines[1], "Cookie #2 login failed")
	assert.Equal(t, "Cookie #3 ready (c)", lines[2])
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, c.Logins())
}

func TestPoolBootstrapStopsOnCancel(t *testing.T) {
	c := &fake.Client{}
	ctx, cancel := context.WithCancel(context.Background())
	p := session.New(c, func(string, ...any) { cancel() }, nil)

	n := p.Bootstrap(ctx, []string{"a", "b", "c"}, "42")

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, c.Logins())
}

func TestPoolEmpty(t *testing.T) {
	p := session.New(&fake.Client{}, nil, nil)
	assert.Empty(t, p.Healthy())
	assert.Equal(t, 0, p.HealthyCount())
}

func TestBreachReason(t *testing.T) {
	b := session.Breach{Unhealthy: 3, Total: 4, Healthy: 1}
	assert.Equal(t, "Most cookies failed: 3 of 4 unusable", b.Reason())
	assert.ErrorIs(t, b.Err(), domain.ErrHealthThresholdBreached)
}
