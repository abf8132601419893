package tokensvc

import (
	"context"

	"github.com/AlexZinkM/escrow-custody/internal/authority"

	"github.com/gagliardetto/solana-go"
)

// Service is the token-management service. Implementations own balances,
// decimals and deposit accounting; callers only describe what should happen.
type Service interface {
	Move(ctx context.Context, req MoveRequest, proof Proof) error
	Close(ctx context.Context, req CloseRequest, proof Proof) error
}

// MoveRequest describes a checked transfer between two token accounts
type MoveRequest struct {
	TokenProgram solana.PublicKey // zero value means the SPL Token program
	Source       solana.PublicKey
	Destination  solana.PublicKey
	Authority    solana.PublicKey
	Mint         solana.PublicKey
	Amount       uint64
	Decimals     uint8
}

// CloseRequest describes closing a token account and reclaiming its deposit
type CloseRequest struct {
	TokenProgram solana.PublicKey
	Account      solana.PublicKey
	Destination  solana.PublicKey
	Authority    solana.PublicKey
}

// Proof is the evidence that the request's authority approved it.
// It is either SignerProof or SeedProof.
type Proof interface {
	isProof()
}

// SignerProof relies on the authority being a signer of the enclosing transaction.
type SignerProof struct{}

// SeedProof carries the seed path the runtime re-derives under Program
// and compares with the request's authority.
type SeedProof struct {
	Program solana.PublicKey
	Seeds   authority.SeedPath
}

func (SignerProof) isProof() {}
func (SeedProof) isProof()   {}

// VerifySeeds checks that p re-derives to addr. Any failure, including
// malformed seeds, is reported as ErrAuthorizationMismatch.
func (p SeedProof) VerifySeeds(addr solana.PublicKey) error {
	if !authority.Matches(addr, p.Seeds, p.Program) {
		return ErrAuthorizationMismatch
	}
	return nil
}

// ProgramOrDefault returns id or the SPL Token program when id is zero
func ProgramOrDefault(id solana.PublicKey) solana.PublicKey {
	if id.IsZero() {
		return solana.TokenProgramID
	}
	return id
}
