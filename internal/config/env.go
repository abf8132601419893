package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

// Config contains all configuration parameters for the application.
// Note: the keystore password is prompted at runtime and kept in memory - use GetKeystorePasswordBytes()
// LOG_LEVEL and LOG_FORMAT are read by the escrowctl flags, before config is loaded.
type Config struct {
	Port            string `envconfig:"PORT" default:"8080"`
	SolanaRPCURL    string `envconfig:"SOLANA_RPC_URL" default:"https://api.devnet.solana.com"`
	KeystorePath    string `envconfig:"SOLANA_FILE_PATH"`
	EscrowProgramID string `envconfig:"ESCROW_PROGRAM_ID" required:"true"`

	programID solana.PublicKey
}

// cfg is the global configuration instance
var cfg *Config

// Init loads configuration from environment variables.
func Init() error {
	c, err := Load()
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

// Load reads and validates configuration without touching the global instance
func Load() (*Config, error) {
	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	programID, err := solana.PublicKeyFromBase58(c.EscrowProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid ESCROW_PROGRAM_ID: %w", err)
	}
	c.programID = programID
	return c, nil
}

// Get returns the global configuration instance.
// Panics if Init() was not called.
func Get() *Config {
	if cfg == nil {
		panic("config not initialized, call Init() first")
	}
	return cfg
}

// GetPort returns port from configuration
func GetPort() string {
	return Get().Port
}

// GetSolanaRPCURL returns Solana RPC URL from configuration
func GetSolanaRPCURL() string {
	return Get().SolanaRPCURL
}

// GetKeystorePath returns path to the signer .cwt file
func GetKeystorePath() string {
	return Get().KeystorePath
}

// GetEscrowProgramID returns the program that owns derived authorities
func GetEscrowProgramID() solana.PublicKey {
	return Get().programID
}

var passwordBytes []byte

// PromptForPassword prompts the user for the keystore password in the terminal.
// The password is read without echoing (hidden input) and stored in memory.
// Call this at startup before the server begins handling requests.
func PromptForPassword() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("stdin is not a terminal: run the app interactively to enter password")
	}
	fmt.Fprint(os.Stderr, "Enter keystore password: ")
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	defer clear(raw)
	return SetPassword(raw)
}

// SetPassword stores a copy of password in memory
func SetPassword(password []byte) error {
	if len(password) == 0 {
		return errors.New("password cannot be empty")
	}
	clear(passwordBytes)
	passwordBytes = make([]byte, len(password))
	copy(passwordBytes, password)
	return nil
}

// GetKeystorePasswordBytes returns the password stored in memory.
// Returns an error if the password was not set.
// Caller must zero the returned slice after use for security.
func GetKeystorePasswordBytes() ([]byte, error) {
	if len(passwordBytes) == 0 {
		return nil, errors.New("password not set: call PromptForPassword at startup")
	}
	out := make([]byte, len(passwordBytes))
	copy(out, passwordBytes)
	return out, nil
}
