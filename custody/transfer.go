package custody

import (
	"context"
	"fmt"

	"github.com/AlexZinkM/escrow-custody/internal/tokensvc"

	"go.uber.org/zap"
)

// TransferTokens moves req.Amount of req.Token from req.Source to req.Destination.
// If the source is owned by a derived authority, req.Authorization must be
// DerivedAuthority with the seeds of req.Authority.
// Service errors are returned wrapped but unchanged.
func (e *Executor) TransferTokens(ctx context.Context, req TransferRequest) error {
	proof, err := e.proofFor(req.Authorization)
	if err != nil {
		return fmt.Errorf("transfer from %s: %w", req.Source, err)
	}

	log := e.log.With(
		zap.Stringer("source", req.Source),
		zap.Stringer("destination", req.Destination),
		zap.Stringer("authority", req.Authority),
		zap.Stringer("mint", req.Token.Mint),
		zap.Uint64("amount", req.Amount),
		zap.String("mode", modeName(req.Authorization)),
	)
	log.Debug("dispatching token transfer")

	err = e.svc.Move(ctx, tokensvc.MoveRequest{
		TokenProgram: req.Token.Program,
		Source:       req.Source,
		Destination:  req.Destination,
		Authority:    req.Authority,
		Mint:         req.Token.Mint,
		Amount:       req.Amount,
		Decimals:     req.Token.Decimals,
	}, proof)
	if err != nil {
		log.Warn("token transfer rejected", zap.Error(err))
		return fmt.Errorf("transfer from %s: %w", req.Source, err)
	}

	return nil
}
