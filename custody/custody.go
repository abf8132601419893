// Package custody moves and closes escrowed token accounts on behalf of
// either a direct signer or a program-derived authority.
package custody

import (
	"errors"

	"github.com/AlexZinkM/escrow-custody/internal/tokensvc"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// ErrNoAuthorization is returned when a request carries no Authorization
var ErrNoAuthorization = errors.New("no authorization supplied")

// TokenType identifies a fungible token and its decimal precision
type TokenType struct {
	Mint     solana.PublicKey
	Decimals uint8
	Program  solana.PublicKey // token program; zero means SPL Token
}

// TransferRequest moves Amount base units from Source to Destination.
// Zero amounts are forwarded as is.
type TransferRequest struct {
	Source        solana.PublicKey
	Destination   solana.PublicKey
	Amount        uint64
	Token         TokenType
	Authority     solana.PublicKey
	Authorization Authorization
}

// CloseRequest closes Account and sends its storage deposit to Destination
type CloseRequest struct {
	Account       solana.PublicKey
	Destination   solana.PublicKey
	TokenProgram  solana.PublicKey
	Authority     solana.PublicKey
	Authorization Authorization
}

// Executor forwards custody operations to a token service.
// It keeps no state between calls.
type Executor struct {
	svc     tokensvc.Service
	program solana.PublicKey
	log     *zap.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// NewExecutor creates an Executor for derived authorities owned by program
func NewExecutor(svc tokensvc.Service, program solana.PublicKey, opts ...Option) *Executor {
	e := &Executor{
		svc:     svc,
		program: program,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Program returns the program id derived authorities are checked against
func (e *Executor) Program() solana.PublicKey {
	return e.program
}
