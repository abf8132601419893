package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AlexZinkM/escrow-custody/custody"
	"github.com/AlexZinkM/escrow-custody/internal/authority"
	"github.com/AlexZinkM/escrow-custody/internal/common"
	"github.com/AlexZinkM/escrow-custody/internal/tokensvc"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// rentExemptDeposit is the lamport deposit of a 165-byte token account
const rentExemptDeposit = 2039280

type simulateCmd struct {
	Program  string `help:"Program that owns the vault authority. Random when empty." env:"ESCROW_PROGRAM_ID"`
	Token    string `help:"Token program the vault accounts live under." enum:"spl,token2022" default:"spl"`
	Vault    string `help:"Vault id used as the second seed." default:"vault-0001"`
	Decimals uint8  `help:"Mint precision." default:"2"`
	Balance  string `help:"Starting user balance." default:"10"`
	Deposit  string `help:"Amount the user deposits into the vault." default:"2.50"`
	Release  string `help:"Amount the vault releases to the payee." default:"1.25"`
}

func (s *simulateCmd) Run(log *zap.Logger) error {
	program := solana.NewWallet().PublicKey()
	if s.Program != "" {
		p, err := solana.PublicKeyFromBase58(s.Program)
		if err != nil {
			return fmt.Errorf("invalid program: %w", err)
		}
		program = p
	}
	return simulate(context.Background(), os.Stdout, log, program, s)
}

type amounts struct {
	balance, deposit, release uint64
}

func (s *simulateCmd) amounts() (amounts, error) {
	var a amounts
	var err error
	if a.balance, err = common.ParseUnits(s.Balance, s.Decimals); err != nil {
		return a, fmt.Errorf("balance: %w", err)
	}
	if a.deposit, err = common.ParseUnits(s.Deposit, s.Decimals); err != nil {
		return a, fmt.Errorf("deposit: %w", err)
	}
	if a.release, err = common.ParseUnits(s.Release, s.Decimals); err != nil {
		return a, fmt.Errorf("release: %w", err)
	}
	return a, nil
}

// simulate walks a vault through its life: a signed deposit, a release and
// a refund under the derived authority, then the close that reclaims the deposit.
func simulate(ctx context.Context, out io.Writer, log *zap.Logger, program solana.PublicKey, s *simulateCmd) error {
	amt, err := s.amounts()
	if err != nil {
		return err
	}

	seeds := authority.Seeds("escrow", s.Vault)
	vaultAuthority, bump, err := authority.Find(seeds, program)
	if err != nil {
		return err
	}

	tokenProgram := solana.TokenProgramID
	if s.Token == "token2022" {
		tokenProgram = solana.Token2022ProgramID
	}

	var (
		ledger = tokensvc.NewLedger(tokensvc.WithTokenProgram(tokenProgram))
		owner  = solana.NewWallet().PublicKey()
		mint   = solana.NewWallet().PublicKey()
		user   = solana.NewWallet().PublicKey()
		vault  = solana.NewWallet().PublicKey()
		payee  = solana.NewWallet().PublicKey()
	)
	ledger.CreateMint(mint, s.Decimals)
	for _, acct := range []tokensvc.TokenAccount{
		{Address: user, Owner: owner, Mint: mint, Amount: amt.balance, Lamports: rentExemptDeposit},
		{Address: vault, Owner: vaultAuthority, Mint: mint, Lamports: rentExemptDeposit},
		{Address: payee, Owner: solana.NewWallet().PublicKey(), Mint: mint, Lamports: rentExemptDeposit},
	} {
		if err := ledger.CreateAccount(acct); err != nil {
			return err
		}
	}

	exec := custody.NewExecutor(ledger.Signed(owner), program, custody.WithLogger(log))
	token := custody.TokenType{Mint: mint, Decimals: s.Decimals, Program: tokenProgram}
	derived := custody.DerivedAuthority{Seeds: seeds.WithBump(bump)}

	fmt.Fprintf(out, "program  %s\nvault    %s (authority %s, bump %d)\n", program, vault, vaultAuthority, bump)
	report := func(step string) {
		fmt.Fprintf(out, "%-8s user=%s vault=%s payee=%s\n", step,
			common.FormatUnits(ledger.Balance(user), s.Decimals),
			common.FormatUnits(ledger.Balance(vault), s.Decimals),
			common.FormatUnits(ledger.Balance(payee), s.Decimals),
		)
	}
	report("start")

	if err := exec.TransferTokens(ctx, custody.TransferRequest{
		Source: user, Destination: vault, Amount: amt.deposit, Token: token,
		Authority: owner, Authorization: custody.DirectSigner{},
	}); err != nil {
		return err
	}
	report("deposit")

	if err := exec.TransferTokens(ctx, custody.TransferRequest{
		Source: vault, Destination: payee, Amount: amt.release, Token: token,
		Authority: vaultAuthority, Authorization: derived,
	}); err != nil {
		return err
	}
	report("release")

	if rest := ledger.Balance(vault); rest > 0 {
		if err := exec.TransferTokens(ctx, custody.TransferRequest{
			Source: vault, Destination: user, Amount: rest, Token: token,
			Authority: vaultAuthority, Authorization: derived,
		}); err != nil {
			return err
		}
	}
	report("refund")

	closeReq := custody.CloseRequest{
		Account: vault, Destination: user, TokenProgram: tokenProgram,
		Authority: vaultAuthority, Authorization: derived,
	}
	if err := exec.CloseTokenAccount(ctx, closeReq); err != nil {
		return err
	}
	fmt.Fprintf(out, "closed   vault, %d lamports returned to user\n", ledger.Lamports(user))

	err = exec.CloseTokenAccount(ctx, closeReq)
	if !errors.Is(err, tokensvc.ErrAccountAlreadyClosed) {
		return fmt.Errorf("second close: expected %s, got %v", tokensvc.Code(tokensvc.ErrAccountAlreadyClosed), err)
	}
	fmt.Fprintf(out, "reclose  rejected: %s\n", tokensvc.Code(err))
	return nil
}
