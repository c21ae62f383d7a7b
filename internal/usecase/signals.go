package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domrepo "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/repository"
	domsvc "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/service"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

// SignalsUseCase serves sized signals from the live book. Sizing happens
// at request time against the caller's reported equity, so the same
// candidate can size differently across polls.
type SignalsUseCase struct {
	book     domrepo.SignalBook
	sizer    domsvc.Sizer
	governor domsvc.Governor
	metrics  domrepo.Metrics
	logger   *logger.Logger
	timeout  time.Duration
}

func NewSignalsUseCase(book domrepo.SignalBook, sizer domsvc.Sizer, governor domsvc.Governor, metrics domrepo.Metrics, l *logger.Logger) *SignalsUseCase {
	return &SignalsUseCase{
		book:     book,
		sizer:    sizer,
		governor: governor,
		metrics:  metrics,
		logger:   l,
		timeout:  5 * time.Second,
	}
}

type GetSignalsParams struct {
	Equity float64
	Symbol string
	Limit  int
}

// SignalsResult carries the served signals plus the governor stance so
// the execution layer can tell "no edge" from "risk-locked".
type SignalsResult struct {
	Signals       []models.SignalData  `json:"signals"`
	Count         int                  `json:"count"`
	GovernorState models.GovernorState `json:"governor_state"`
	GeneratedAt   time.Time            `json:"generated_at"`
}

func (uc *SignalsUseCase) GetSignals(ctx context.Context, p GetSignalsParams) (*SignalsResult, error) {
	if p.Equity <= 0 {
		return nil, fmt.Errorf("equity must be positive")
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	res := &SignalsResult{
		Signals:       []models.SignalData{},
		GovernorState: uc.governor.Snapshot().State,
		GeneratedAt:   time.Now().UTC(),
	}
	if !res.GovernorState.Tradable() {
		uc.logger.Info("signals withheld by governor",
			logger.String("state", string(res.GovernorState)),
			logger.Float64("equity", p.Equity),
		)
		return res, nil
	}

	cands, err := uc.book.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	live := cands[:0]
	for _, c := range cands {
		if !c.Tradable {
			continue
		}
		if p.Symbol != "" && c.Symbol != p.Symbol {
			continue
		}
		live = append(live, c)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].QStar > live[j].QStar })
	if len(live) > p.Limit {
		live = live[:p.Limit]
	}

	for i := range live {
		sig, err := uc.sizer.Size(ctx, &live[i], p.Equity)
		if err != nil {
			if errors.Is(err, models.ErrGovernorLocked) {
				// governor flipped mid-request; nothing below sizes either
				res.GovernorState = uc.governor.Snapshot().State
				break
			}
			uc.metrics.RecordError("size")
			uc.logger.Warn("sizing failed",
				logger.String("symbol", live[i].Symbol),
				logger.Error(err),
			)
			continue
		}
		if sig == nil {
			continue
		}
		res.Signals = append(res.Signals, *sig)
		uc.metrics.RecordSignalServed(sig.Symbol)
	}
	res.Count = len(res.Signals)
	return res, nil
}
