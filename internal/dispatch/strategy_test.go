package dispatch_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsecast/internal/dispatch"
	"pulsecast/internal/remote/fake"
	"pulsecast/internal/session"
)

func bootstrapped(t *testing.T, c *fake.Client, creds ...string) *session.Pool {
	t.Helper()
	p := session.New(c, nil, nil)
	p.Bootstrap(context.Background(), creds, "42")
	return p
}

func TestStrategySend(t *testing.T) {
	tests := map[string]struct {
		creds     []string
		sendFails map[string]bool
		expResult dispatch.Result
		expLogs   int
	}{
		"First healthy session should win": {
			creds:     []string{"a", "b"},
			expResult: dispatch.Result{Delivered: true, Index: 0, Account: "a", Attempts: 1},
			expLogs:   1,
		},
		"Failed session should fall back to the next one": {
			creds:     []string{"a", "b", "c"},
			sendFails: map[string]bool{"a": true},
			expResult: dispatch.Result{Delivered: true, Index: 1, Account: "b", Attempts: 2},
			expLogs:   2,
		},
		"All sessions failing should not deliver": {
			creds:     []string{"a", "b"},
			sendFails: map[string]bool{"a": true, "b": true},
			expResult: dispatch.Result{Index: -1, Attempts: 2},
			expLogs:   2,
		},
		"No healthy sessions should fail without logging": {
			expResult: dispatch.Result{Index: -1},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			c := &fake.Client{SendFails: test.sendFails}
			p := bootstrapped(t, c, test.creds...)
			var logs []string
			s := dispatch.New(p, c, func(f string, args ...any) { logs = append(logs, fmt.Sprintf(f, args...)) })

			res := s.Send(context.Background(), "hello", "42")

			assert.Equal(t, test.expResult, res)
			assert.Len(t, logs, test.expLogs)
			if res.Delivered {
				sent := c.Sent()
				require.Len(t, sent, 1)
				assert.Equal(t, fake.Sent{Account: res.Account, Body: "hello", Destination: "42"}, sent[0])
			} else {
				assert.Empty(t, c.Sent())
			}
		})
	}
}

func TestStrategySkipsUnhealthy(t *testing.T) {
	c := &fake.Client{BadCredentials: map[string]bool{"a": true}}
	p := bootstrapped(t, c, "a", "b", "c", "d", "e")
	s := dispatch.New(p, c, nil)

	res := s.Send(context.Background(), "hello", "42")

	assert.True(t, res.Delivered)
	assert.Equal(t, 1, res.Index)
	assert.Equal(t, 1, res.Attempts)
}
