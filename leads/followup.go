/*
followup.go - Follow-up alerts for stale leads

PURPOSE:
  Leads that sit in the same status for too long need a nudge. This file
  holds the rules as pure functions; api/scheduler.go runs them on a cron
  schedule and stores the resulting notifications.

RULES:
  distributed      >= 24h in status  -> 24h_distributed  (charge the broker)
  call_back_later  >= 7d             -> 7d_call_back
  negotiating      >= 7d             -> 7d_negotiating
  proposal_sent    >= 7d             -> 7d_proposal

  Terminal statuses and leads without a status timestamp are skipped.

RECURRENCE:
  Once raised, the same (lead, alert type) is raised again only when
  FollowUpRecurrence has passed since the previous alert.
*/
package leads

import (
	"fmt"
	"time"
)

type AlertType string

const (
	Alert24hDistributed AlertType = "24h_distributed"
	Alert7dCallBack     AlertType = "7d_call_back"
	Alert7dNegotiating  AlertType = "7d_negotiating"
	Alert7dProposal     AlertType = "7d_proposal"
)

// FollowUpRecurrence is the minimum gap between two alerts of the same kind
// for the same lead.
const FollowUpRecurrence = 24 * time.Hour

const day = 24 * time.Hour

// Alert is a follow-up to raise.
type Alert struct {
	LeadID  string
	Type    AlertType
	Title   string
	Message string
}

// AlertKey identifies the last alert of a kind for a lead.
type AlertKey struct {
	LeadID string
	Type   AlertType
}

type followUpRule struct {
	status  Status
	after   time.Duration
	alert   AlertType
	title   string
	message func(l Lead, idle time.Duration) string
}

var followUpRules = []followUpRule{
	{
		status: StatusDistributed,
		after:  day,
		alert:  Alert24hDistributed,
		title:  "Charge broker",
		message: func(l Lead, idle time.Duration) string {
			return fmt.Sprintf("Lead idle for %d day(s). Talk to %s about %s.", int(idle/day), brokerLabel(l), l.Client)
		},
	},
	{
		status: StatusCallBackLater,
		after:  7 * day,
		alert:  Alert7dCallBack,
		title:  "Call back",
		message: func(l Lead, _ time.Duration) string {
			return fmt.Sprintf("Call-back deadline passed. Contact %s.", l.Client)
		},
	},
	{
		status: StatusNegotiating,
		after:  7 * day,
		alert:  Alert7dNegotiating,
		title:  "Follow up",
		message: func(l Lead, _ time.Duration) string {
			return fmt.Sprintf("Slow negotiation (7+ days). Check on %s.", l.Client)
		},
	},
	{
		status: StatusProposalSent,
		after:  7 * day,
		alert:  Alert7dProposal,
		title:  "Sales support",
		message: func(l Lead, _ time.Duration) string {
			return fmt.Sprintf("Proposal pending for a week. Check on %s.", l.Client)
		},
	},
}

func brokerLabel(l Lead) string {
	if l.BrokerName != "" {
		return l.BrokerName
	}
	return "the broker"
}

// EvaluateFollowUps returns the alerts due at now. lastAlerted holds the
// time of the previous alert per (lead, type); it may be nil.
func EvaluateFollowUps(leads []Lead, lastAlerted map[AlertKey]time.Time, now time.Time) []Alert {
	var alerts []Alert

	for _, l := range leads {
		status := l.EffectiveStatus()
		if l.StatusAt.IsZero() || status.IsTerminal() {
			continue
		}
		idle := now.Sub(l.StatusAt)

		for _, rule := range followUpRules {
			if rule.status != status || idle < rule.after {
				continue
			}
			if last, ok := lastAlerted[AlertKey{LeadID: l.ID, Type: rule.alert}]; ok && now.Sub(last) < FollowUpRecurrence {
				continue
			}
			alerts = append(alerts, Alert{
				LeadID:  l.ID,
				Type:    rule.alert,
				Title:   rule.title,
				Message: rule.message(l, idle),
			})
		}
	}

	return alerts
}
