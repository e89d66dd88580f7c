package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RefundTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billetterie_refund_transitions_total",
		Help: "Transitions de statut des demandes de remboursement.",
	}, []string{"to"})

	RefundSignatures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billetterie_refund_signatures_total",
		Help: "Contre-signatures enregistrées.",
	})

	SettlementOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billetterie_settlement_outcomes_total",
		Help: "Résultats des règlements auprès de la passerelle de paiement.",
	}, []string{"outcome"})

	SurgeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billetterie_surge_toggles_total",
		Help: "Basculements effectifs normal/surge.",
	}, []string{"status", "trigger"})

	SurgeAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billetterie_surge_admitted_sessions_total",
		Help: "Sessions sorties de la salle d'attente.",
	})

	FunnelEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billetterie_funnel_events_total",
		Help: "Événements du tunnel de conversion.",
	}, []string{"kind"})

	GovernanceActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billetterie_governance_actions_total",
		Help: "Actions d'administration dispatchées.",
	}, []string{"action", "outcome"})
)

// Handler expose le registre par défaut.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
