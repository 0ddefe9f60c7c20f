package realtime

import (
	"strings"
	"time"
)

// EventType identifies what an Event carries.
type EventType string

const (
	EventTransaction   EventType = "transaction"
	EventAccountLinked EventType = "account_linked"
)

// Event is one message on the feed.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// TransactionEvent is the payload of an EventTransaction.
type TransactionEvent struct {
	TxnID                string    `json:"txn_id"`
	AccountID            string    `json:"account_id"`
	Amount               float64   `json:"amount"`
	Merchant             string    `json:"merchant"`
	RiskScore            float64   `json:"risk_score"`
	RiskLabel            string    `json:"risk_label"`
	Blocked              bool      `json:"blocked"`
	VerificationRequired bool      `json:"verification_required"`
	VerificationStatus   string    `json:"verification_status"`
	Reasons              []string  `json:"reasons"`
	Timestamp            time.Time `json:"timestamp"`
}

// AccountLinkedEvent is the payload of an EventAccountLinked.
type AccountLinkedEvent struct {
	AccountID string `json:"account_id"`
	BankName  string `json:"bank_name"`
}

// Subscription narrows what a client receives. The zero value passes
// everything; clients replace it by sending a JSON Subscription.
type Subscription struct {
	AllEvents    bool        `json:"allEvents"`
	EventTypes   []EventType `json:"eventTypes"`
	MinRiskScore float64     `json:"minRiskScore"`
	Labels       []string    `json:"labels"`
	BlockedOnly  bool        `json:"blockedOnly"`
}

// Matches reports whether the event passes the subscription's filters.
// Risk filters only constrain transaction payloads.
func (s Subscription) Matches(event *Event) bool {
	if s.AllEvents {
		return true
	}
	if len(s.EventTypes) > 0 && !hasType(s.EventTypes, event.Type) {
		return false
	}

	tx, ok := event.Data.(*TransactionEvent)
	if !ok || event.Type != EventTransaction {
		return true
	}
	switch {
	case s.BlockedOnly && !tx.Blocked:
		return false
	case s.MinRiskScore > 0 && tx.RiskScore < s.MinRiskScore:
		return false
	case len(s.Labels) > 0 && !hasLabel(s.Labels, tx.RiskLabel):
		return false
	}
	return true
}

func hasType(types []EventType, t EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}
