package control

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pulsecast/internal/domain"
)

const (
	typeStart   = "start"
	typeStop    = "stop_by_id"
	typeMonitor = "monitor"
)

// Inbound is any message a client may send.
type Inbound struct {
	Type           string  `json:"type"`
	CookieContent  string  `json:"cookieContent"`
	MessageContent string  `json:"messageContent"`
	ThreadID       string  `json:"threadID"`
	Delay          flexInt `json:"delay"`
	HatersName     string  `json:"hatersName"`
	LastHereName   string  `json:"lastHereName"`
	TaskID         string  `json:"taskId"`
}

// flexInt accepts 10, "10" and null.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("delay: %w", err)
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// StartRequest converts a start message into a domain request. Blank entries are dropped.
func (in Inbound) StartRequest() domain.StartRequest {
	return domain.StartRequest{
		Credentials: splitClean(in.CookieContent, "\n"),
		Messages:    splitClean(in.MessageContent, "\n"),
		ThreadID:    strings.TrimSpace(in.ThreadID),
		Delay:       time.Duration(in.Delay) * time.Second,
		Prefixes:    splitClean(in.HatersName, ","),
		Suffixes:    splitClean(in.LastHereName, ","),
	}
}

func splitClean(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
