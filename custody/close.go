package custody

import (
	"context"
	"fmt"

	"github.com/AlexZinkM/escrow-custody/internal/tokensvc"

	"go.uber.org/zap"
)

// CloseTokenAccount closes req.Account and sends its deposit to req.Destination.
// The account balance must already be zero.
func (e *Executor) CloseTokenAccount(ctx context.Context, req CloseRequest) error {
	proof, err := e.proofFor(req.Authorization)
	if err != nil {
		return fmt.Errorf("close %s: %w", req.Account, err)
	}

	log := e.log.With(
		zap.Stringer("account", req.Account),
		zap.Stringer("destination", req.Destination),
		zap.Stringer("authority", req.Authority),
		zap.String("mode", modeName(req.Authorization)),
	)
	log.Debug("dispatching token account close")

	err = e.svc.Close(ctx, tokensvc.CloseRequest{
		TokenProgram: req.TokenProgram,
		Account:      req.Account,
		Destination:  req.Destination,
		Authority:    req.Authority,
	}, proof)
	if err != nil {
		log.Warn("token account close rejected", zap.Error(err))
		return fmt.Errorf("close %s: %w", req.Account, err)
	}

	return nil
}
