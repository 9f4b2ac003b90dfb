package service

import (
	"log/slog"

	"github.com/kirinyoku/tix-checkout/internal/service/catalog"
	"github.com/kirinyoku/tix-checkout/internal/service/ledger"
	"github.com/kirinyoku/tix-checkout/internal/service/reservation"
)

type Services struct {
	Reservation *reservation.Service
	Catalog     *catalog.Service
	Ledger      *ledger.Service
}

type Config struct {
	Reservation reservation.Config
}

func NewServices(
	reservationDeps reservation.Deps,
	catalogSvc *catalog.Service,
	ledgerSvc *ledger.Service,
	cfg Config,
	logger *slog.Logger,
) *Services {
	if reservationDeps.Catalog == nil {
		reservationDeps.Catalog = catalogSvc
	}

	if reservationDeps.Ledger == nil {
		reservationDeps.Ledger = ledgerSvc
	}

	return &Services{
		Reservation: reservation.New(reservationDeps, cfg.Reservation, logger),
		Catalog:     catalogSvc,
		Ledger:      ledgerSvc,
	}
}
