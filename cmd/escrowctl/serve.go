package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlexZinkM/escrow-custody/internal/api"
	"github.com/AlexZinkM/escrow-custody/internal/client"
	"github.com/AlexZinkM/escrow-custody/internal/config"
	"github.com/AlexZinkM/escrow-custody/internal/crypto"
	"github.com/AlexZinkM/escrow-custody/internal/handler"

	"go.uber.org/zap"
)

type serveCmd struct {
	ShutdownTimeout time.Duration `help:"Grace period for in-flight requests." default:"10s"`
}

func (s *serveCmd) Run(log *zap.Logger) error {
	if err := config.Init(); err != nil {
		return err
	}
	addr, err := crypto.ReadKeystoreAddress(config.GetKeystorePath())
	if err != nil {
		return err
	}
	log.Info("unlocking signer keystore", zap.String("file", config.GetKeystorePath()), zap.Stringer("address", addr))

	if err := config.PromptForPassword(); err != nil {
		return err
	}
	password, err := config.GetKeystorePasswordBytes()
	if err != nil {
		return err
	}
	signer, err := crypto.LoadSigner(config.GetKeystorePath(), password)
	clear(password)
	if err != nil {
		return err
	}
	if !signer.PublicKey().Equals(addr) {
		return fmt.Errorf("keystore address %s does not match its key %s", addr, signer.PublicKey())
	}

	svc, err := client.NewRPCService(config.GetSolanaRPCURL(), signer, log.Named("rpc"))
	if err != nil {
		return err
	}
	escrowHandler := handler.NewEscrowHandler(svc, svc, svc.Signer(), config.GetEscrowProgramID(), log.Named("http"))

	srv := &http.Server{
		Addr:              ":" + config.GetPort(),
		Handler:           api.SetupRouter(escrowHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("rpc", config.GetSolanaRPCURL()),
			zap.Stringer("signer", svc.Signer()),
			zap.Stringer("program", config.GetEscrowProgramID()),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
