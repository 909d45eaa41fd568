package alerts

import (
	"context"
	"time"
)

// Severity represents alert severity
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityAlert Severity = "ALERT"
)

// Kind identifies the class of data-quality event being reported
type Kind string

const (
	KindFreshness      Kind = "freshness"
	KindUnresolvedTeam Kind = "unresolved_team"
	KindScoreDropped   Kind = "score_dropped"
)

// Payload contains all information for a data-quality alert
type Payload struct {
	Severity    Severity
	Kind        Kind
	Summary     string
	Details     map[string]string
	Environment string
	Timestamp   time.Time
}

// Sender defines the interface for alert senders
type Sender interface {
	Send(ctx context.Context, payload *Payload) error
}
