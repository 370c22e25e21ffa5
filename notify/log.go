package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/fieldpass/festival-engine/core"
)

// LogNotifier writes events to the structured log instead of a broker. Used
// when no Kafka brokers are configured.
type LogNotifier struct {
	log *logrus.Entry
}

func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log.WithField("component", "notify")}
}

func (n *LogNotifier) TicketsMinted(_ context.Context, ev core.SaleEvent) error {
	n.log.WithFields(logrus.Fields{
		"kind":     eventTicketsMinted,
		"purchase": ev.PurchaseID,
		"festival": ev.FestivalID,
		"tickets":  len(ev.Tickets),
		"total":    ev.Total,
	}).Info("event")
	return nil
}

func (n *LogNotifier) TicketNominated(_ context.Context, ev core.NominationEvent) error {
	n.log.WithFields(logrus.Fields{
		"kind":     eventTicketNominated,
		"ticket":   ev.TicketID,
		"attendee": ev.AttendeeID,
	}).Info("event")
	return nil
}
