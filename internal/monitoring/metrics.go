package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boxoffice_orders_created_total",
		Help: "Orders successfully created",
	})

	ordersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boxoffice_orders_expired_total",
		Help: "Pending orders cancelled by the expiry sweep",
	})

	seatConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boxoffice_seat_conflicts_total",
		Help: "Hold attempts rejected because of seat conflicts",
	})

	payments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boxoffice_payments_total",
		Help: "Payment attempts by outcome",
	}, []string{"status"})

	ticketsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boxoffice_tickets_issued_total",
		Help: "Tickets issued after successful payment",
	})

	ticketValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boxoffice_ticket_validations_total",
		Help: "Ticket validation attempts by result",
	}, []string{"result"})
)

func OrderCreated() { ordersCreated.Inc() }
func OrderExpired() { ordersExpired.Inc() }
func SeatConflict() { seatConflicts.Inc() }
func TicketIssued() { ticketsIssued.Inc() }

func Payment(status string)          { payments.WithLabelValues(status).Inc() }
func TicketValidation(result string) { ticketValidations.WithLabelValues(result).Inc() }
