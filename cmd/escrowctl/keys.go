package main

import (
	"fmt"

	"github.com/AlexZinkM/escrow-custody/internal/authority"
	"github.com/AlexZinkM/escrow-custody/internal/config"
	"github.com/AlexZinkM/escrow-custody/internal/crypto"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

type keygenCmd struct {
	File string `help:"Keystore path, must end in .cwt." required:"" env:"SOLANA_FILE_PATH" type:"path"`
}

func (k *keygenCmd) Run(log *zap.Logger) error {
	if err := config.PromptForPassword(); err != nil {
		return err
	}
	password, err := config.GetKeystorePasswordBytes()
	if err != nil {
		return err
	}
	defer clear(password)

	addr, err := crypto.GenerateKeystore(k.File, password)
	if err != nil {
		return err
	}
	log.Info("keystore created", zap.String("file", k.File), zap.Stringer("address", addr))
	fmt.Println(addr)
	return nil
}

type deriveCmd struct {
	Program string   `help:"Program that owns the derived authority." required:"" env:"ESCROW_PROGRAM_ID"`
	QR      bool     `help:"Also print the address as a base64 PNG QR code." name:"qr"`
	Seeds   []string `arg:"" name:"seed" help:"Seeds in order. Prefix with hex: or pk: for raw bytes or a public key."`
}

func (d *deriveCmd) Run() error {
	program, err := solana.PublicKeyFromBase58(d.Program)
	if err != nil {
		return fmt.Errorf("invalid program: %w", err)
	}
	seeds, err := authority.ParseSeeds(d.Seeds)
	if err != nil {
		return err
	}
	addr, bump, err := authority.Find(seeds, program)
	if err != nil {
		return err
	}

	fmt.Printf("address %s\nbump    %d\n", addr, bump)
	if d.QR {
		qr, err := crypto.QRCode(addr.String())
		if err != nil {
			return err
		}
		fmt.Println(qr)
	}
	return nil
}
