package custody

import (
	"context"
	"errors"
	"testing"

	"github.com/AlexZinkM/escrow-custody/internal/authority"
	"github.com/AlexZinkM/escrow-custody/internal/tokensvc"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const deposit = 2039280

var escrowProgram = solana.MustPublicKeyFromBase58("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

// recorder is a token service that remembers what it was asked to do
type recorder struct {
	moves  []tokensvc.MoveRequest
	closes []tokensvc.CloseRequest
	proofs []tokensvc.Proof
	err    error
}

func (r *recorder) Move(_ context.Context, req tokensvc.MoveRequest, proof tokensvc.Proof) error {
	r.moves = append(r.moves, req)
	r.proofs = append(r.proofs, proof)
	return r.err
}

func (r *recorder) Close(_ context.Context, req tokensvc.CloseRequest, proof tokensvc.Proof) error {
	r.closes = append(r.closes, req)
	r.proofs = append(r.proofs, proof)
	return r.err
}

type vault struct {
	authority solana.PublicKey
	seeds     authority.SeedPath
	account   solana.PublicKey
}

type world struct {
	ledger *tokensvc.Ledger
	tokenA TokenType
	user   solana.PublicKey
	userTA solana.PublicKey
	destTA solana.PublicKey
	vault  vault
}

// newWorld sets up TokenA with 2 decimals, a user account holding userAmount,
// an empty destination and a vault account owned by the derived authority.
func newWorld(t *testing.T, userAmount, vaultAmount uint64) *world {
	t.Helper()
	w := &world{
		ledger: tokensvc.NewLedger(),
		tokenA: TokenType{Mint: solana.NewWallet().PublicKey(), Decimals: 2},
		user:   solana.NewWallet().PublicKey(),
		userTA: solana.NewWallet().PublicKey(),
		destTA: solana.NewWallet().PublicKey(),
	}
	w.ledger.CreateMint(w.tokenA.Mint, w.tokenA.Decimals)

	vaultID := []byte("vault-0001")
	addr, bump, err := authority.Find(authority.Seeds("escrow", vaultID), escrowProgram)
	require.NoError(t, err)
	w.vault = vault{
		authority: addr,
		seeds:     authority.Seeds("escrow", vaultID).WithBump(bump),
		account:   solana.NewWallet().PublicKey(),
	}

	for _, acct := range []tokensvc.TokenAccount{
		{Address: w.userTA, Owner: w.user, Mint: w.tokenA.Mint, Amount: userAmount, Lamports: deposit},
		{Address: w.destTA, Owner: solana.NewWallet().PublicKey(), Mint: w.tokenA.Mint, Lamports: deposit},
		{Address: w.vault.account, Owner: w.vault.authority, Mint: w.tokenA.Mint, Amount: vaultAmount, Lamports: deposit},
	} {
		require.NoError(t, w.ledger.CreateAccount(acct))
	}
	return w
}

// run executes fn as one ledger transaction signed by signers
func (w *world) run(signers []solana.PublicKey, fn func(*Executor) error) error {
	return w.ledger.Execute(signers, func(svc tokensvc.Service) error {
		return fn(NewExecutor(svc, escrowProgram))
	})
}

func TestTransferDirectSigner(t *testing.T) {
	w := newWorld(t, 1000, 0)
	req := TransferRequest{
		Source:        w.userTA,
		Destination:   w.destTA,
		Amount:        250,
		Token:         w.tokenA,
		Authority:     w.user,
		Authorization: DirectSigner{},
	}

	err := w.run([]solana.PublicKey{w.user}, func(e *Executor) error {
		return e.TransferTokens(context.Background(), req)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(750), w.ledger.Balance(w.userTA))
	assert.Equal(t, uint64(250), w.ledger.Balance(w.destTA))

	req.Amount = 1500
	err = w.run([]solana.PublicKey{w.user}, func(e *Executor) error {
		return e.TransferTokens(context.Background(), req)
	})
	require.ErrorIs(t, err, tokensvc.ErrInsufficientBalance)
	assert.Equal(t, uint64(750), w.ledger.Balance(w.userTA))
	assert.Equal(t, uint64(250), w.ledger.Balance(w.destTA))
}

func TestTransferInsufficientLeavesBalances(t *testing.T) {
	w := newWorld(t, 1000, 0)
	err := w.run([]solana.PublicKey{w.user}, func(e *Executor) error {
		return e.TransferTokens(context.Background(), TransferRequest{
			Source: w.userTA, Destination: w.destTA, Amount: 1500,
			Token: w.tokenA, Authority: w.user, Authorization: DirectSigner{},
		})
	})
	require.ErrorIs(t, err, tokensvc.ErrInsufficientBalance)
	assert.Equal(t, uint64(1000), w.ledger.Balance(w.userTA))
	assert.Zero(t, w.ledger.Balance(w.destTA))
}

func TestTransferDerivedAuthority(t *testing.T) {
	_, wrongBump, err := authority.Find(authority.Seeds("escrow", "vault-9999"), escrowProgram)
	require.NoError(t, err)

	tests := []struct {
		name    string
		seeds   authority.SeedPath
		wantErr error
	}{
		{name: "matching seeds"},
		{name: "wrong vault id", seeds: authority.Seeds("escrow", "vault-9999").WithBump(wrongBump), wantErr: tokensvc.ErrAuthorizationMismatch},
		{name: "missing bump", seeds: authority.Seeds("escrow", "vault-0001"), wantErr: tokensvc.ErrAuthorizationMismatch},
		{name: "empty derived seeds", seeds: authority.SeedPath{}, wantErr: tokensvc.ErrAuthorizationMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld(t, 0, 500)
			seeds := tt.seeds
			if seeds == nil {
				seeds = w.vault.seeds
			}

			// Nobody signs: the seeds are the only proof
			err := w.run(nil, func(e *Executor) error {
				return e.TransferTokens(context.Background(), TransferRequest{
					Source:        w.vault.account,
					Destination:   w.destTA,
					Amount:        200,
					Token:         w.tokenA,
					Authority:     w.vault.authority,
					Authorization: DerivedAuthority{Seeds: seeds},
				})
			})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, uint64(500), w.ledger.Balance(w.vault.account))
				assert.Zero(t, w.ledger.Balance(w.destTA))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint64(300), w.ledger.Balance(w.vault.account))
			assert.Equal(t, uint64(200), w.ledger.Balance(w.destTA))
		})
	}
}

func TestTransferTokenTypeMismatch(t *testing.T) {
	w := newWorld(t, 1000, 0)
	tokenB := solana.NewWallet().PublicKey()
	w.ledger.CreateMint(tokenB, 2)
	otherTA := solana.NewWallet().PublicKey()
	require.NoError(t, w.ledger.CreateAccount(tokensvc.TokenAccount{
		Address: otherTA, Owner: w.user, Mint: tokenB, Lamports: deposit,
	}))

	err := w.run([]solana.PublicKey{w.user}, func(e *Executor) error {
		return e.TransferTokens(context.Background(), TransferRequest{
			Source: w.userTA, Destination: otherTA, Amount: 10,
			Token: w.tokenA, Authority: w.user, Authorization: DirectSigner{},
		})
	})
	require.ErrorIs(t, err, tokensvc.ErrTokenTypeMismatch)
	assert.Equal(t, uint64(1000), w.ledger.Balance(w.userTA))
	assert.Zero(t, w.ledger.Balance(otherTA))
}

func TestTransferPrecisionMismatch(t *testing.T) {
	w := newWorld(t, 1000, 0)
	token := w.tokenA
	token.Decimals = 6

	err := w.run([]solana.PublicKey{w.user}, func(e *Executor) error {
		return e.TransferTokens(context.Background(), TransferRequest{
			Source: w.userTA, Destination: w.destTA, Amount: 10,
			Token: token, Authority: w.user, Authorization: DirectSigner{},
		})
	})
	require.ErrorIs(t, err, tokensvc.ErrPrecisionMismatch)
	assert.Equal(t, uint64(1000), w.ledger.Balance(w.userTA))
}

func TestCloseDirectSigner(t *testing.T) {
	w := newWorld(t, 0, 0)
	recipient := solana.NewWallet().PublicKey()
	req := CloseRequest{
		Account: w.userTA, Destination: recipient,
		Authority: w.user, Authorization: DirectSigner{},
	}

	err := w.run([]solana.PublicKey{w.user}, func(e *Executor) error {
		return e.CloseTokenAccount(context.Background(), req)
	})
	require.NoError(t, err)
	assert.False(t, w.ledger.Exists(w.userTA))
	assert.Equal(t, uint64(deposit), w.ledger.Lamports(recipient))

	err = w.run([]solana.PublicKey{w.user}, func(e *Executor) error {
		return e.CloseTokenAccount(context.Background(), req)
	})
	require.ErrorIs(t, err, tokensvc.ErrAccountAlreadyClosed)
	assert.Equal(t, uint64(deposit), w.ledger.Lamports(recipient), "deposit must not be credited twice")
}

func TestCloseNonZeroBalance(t *testing.T) {
	w := newWorld(t, 0, 42)
	recipient := solana.NewWallet().PublicKey()

	err := w.run(nil, func(e *Executor) error {
		return e.CloseTokenAccount(context.Background(), CloseRequest{
			Account: w.vault.account, Destination: recipient,
			Authority: w.vault.authority, Authorization: DerivedAuthority{Seeds: w.vault.seeds},
		})
	})
	require.ErrorIs(t, err, tokensvc.ErrNonZeroBalance)
	assert.True(t, w.ledger.Exists(w.vault.account))
	assert.Equal(t, uint64(42), w.ledger.Balance(w.vault.account))
	assert.Zero(t, w.ledger.Lamports(recipient))
}

func TestCloseDerivedAuthority(t *testing.T) {
	w := newWorld(t, 0, 0)
	recipient := solana.NewWallet().PublicKey()
	req := CloseRequest{
		Account: w.vault.account, Destination: recipient,
		Authority: w.vault.authority,
	}

	req.Authorization = DerivedAuthority{Seeds: authority.Seeds("escrow", "vault-0002")}
	err := w.run(nil, func(e *Executor) error {
		return e.CloseTokenAccount(context.Background(), req)
	})
	require.ErrorIs(t, err, tokensvc.ErrAuthorizationMismatch)
	assert.True(t, w.ledger.Exists(w.vault.account))
	assert.Zero(t, w.ledger.Lamports(recipient))

	req.Authorization = DerivedAuthority{Seeds: w.vault.seeds}
	err = w.run(nil, func(e *Executor) error {
		return e.CloseTokenAccount(context.Background(), req)
	})
	require.NoError(t, err)
	assert.False(t, w.ledger.Exists(w.vault.account))
	assert.Equal(t, uint64(deposit), w.ledger.Lamports(recipient))
}

func TestDrainAndCloseVault(t *testing.T) {
	w := newWorld(t, 0, 900)
	recipient := solana.NewWallet().PublicKey()
	auth := AuthorizationFromSeeds(w.vault.seeds)

	err := w.run(nil, func(e *Executor) error {
		if err := e.TransferTokens(context.Background(), TransferRequest{
			Source: w.vault.account, Destination: w.destTA, Amount: 900,
			Token: w.tokenA, Authority: w.vault.authority, Authorization: auth,
		}); err != nil {
			return err
		}
		return e.CloseTokenAccount(context.Background(), CloseRequest{
			Account: w.vault.account, Destination: recipient,
			Authority: w.vault.authority, Authorization: auth,
		})
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(900), w.ledger.Balance(w.destTA))
	assert.False(t, w.ledger.Exists(w.vault.account))
	assert.Equal(t, uint64(deposit), w.ledger.Lamports(recipient))
}

func TestProofRouting(t *testing.T) {
	seeds := authority.Seeds("escrow", "v1", []byte{254})
	rec := &recorder{}
	e := NewExecutor(rec, escrowProgram)
	ctx := context.Background()

	require.NoError(t, e.TransferTokens(ctx, TransferRequest{Amount: 0, Authorization: DirectSigner{}}))
	require.NoError(t, e.CloseTokenAccount(ctx, CloseRequest{Authorization: DerivedAuthority{Seeds: seeds}}))

	require.Len(t, rec.moves, 1)
	assert.Zero(t, rec.moves[0].Amount, "zero amounts are forwarded")
	require.Len(t, rec.proofs, 2)
	assert.IsType(t, tokensvc.SignerProof{}, rec.proofs[0])

	sp, ok := rec.proofs[1].(tokensvc.SeedProof)
	require.True(t, ok)
	assert.Equal(t, escrowProgram, sp.Program)
	assert.Equal(t, seeds, sp.Seeds)

	// The proof holds its own copy of the seeds
	seeds[0][0] = 'X'
	assert.Equal(t, "escrow", string(sp.Seeds[0]))
}

func TestMissingAuthorization(t *testing.T) {
	rec := &recorder{}
	e := NewExecutor(rec, escrowProgram)

	err := e.TransferTokens(context.Background(), TransferRequest{})
	require.ErrorIs(t, err, ErrNoAuthorization)
	err = e.CloseTokenAccount(context.Background(), CloseRequest{})
	require.ErrorIs(t, err, ErrNoAuthorization)
	assert.Empty(t, rec.proofs)
}

func TestServiceErrorsSurfaceUnchanged(t *testing.T) {
	svcErr := &tokensvc.ServiceError{Code: "Frozen", Message: "account frozen"}
	e := NewExecutor(&recorder{err: svcErr}, escrowProgram)

	err := e.TransferTokens(context.Background(), TransferRequest{Authorization: DirectSigner{}})
	var got *tokensvc.ServiceError
	require.True(t, errors.As(err, &got))
	assert.Same(t, svcErr, got)
}

func TestAuthorizationFromSeeds(t *testing.T) {
	assert.Equal(t, DirectSigner{}, AuthorizationFromSeeds(nil))
	assert.Equal(t, DirectSigner{}, AuthorizationFromSeeds([][]byte{}))

	auth := AuthorizationFromSeeds([][]byte{[]byte("escrow")})
	da, ok := auth.(DerivedAuthority)
	require.True(t, ok)
	assert.Len(t, da.Seeds, 1)
}

func TestLogsRejections(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := NewExecutor(&recorder{err: tokensvc.ErrNonZeroBalance}, escrowProgram, WithLogger(zap.New(core)))

	err := e.CloseTokenAccount(context.Background(), CloseRequest{Authorization: DirectSigner{}})
	require.ErrorIs(t, err, tokensvc.ErrNonZeroBalance)

	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Equal(t, "token account close rejected", warns[0].Message)
	assert.Equal(t, "signer", warns[0].ContextMap()["mode"])
}
