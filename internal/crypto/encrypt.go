package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/AlexZinkM/escrow-custody/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/skip2/go-qrcode"
	"golang.org/x/crypto/scrypt"
)

const (
	networkSolana = "solana"
	saltLen       = 32
	nonceLen      = 12
)

// KDFParams are the scrypt cost parameters
type KDFParams struct {
	N, R, P, KeyLen int
}

// DefaultKDF is N=2^18 (~256MB RAM, 0.5-2s)
var DefaultKDF = KDFParams{N: 1 << 18, R: 8, P: 1, KeyLen: 32}

// kdf is the active parameter set; tests lower it
var kdf = DefaultKDF

// ErrKeystoreExists is returned when the target keystore file is not empty
var ErrKeystoreExists = errors.New("keystore file is not empty")

// GenerateKeystore creates a new signer key and writes it encrypted to filePath.
// Returns the signer's public address.
// password must be []byte for security (caller should zero it after use)
func GenerateKeystore(filePath string, password []byte) (solana.PublicKey, error) {
	wallet := solana.NewWallet()
	defer clear(wallet.PrivateKey)

	if err := EncryptKeystore(filePath, wallet.PrivateKey, password); err != nil {
		return solana.PublicKey{}, err
	}
	return wallet.PublicKey(), nil
}

// EncryptKeystore encrypts privateKey and writes it to a .cwt file
func EncryptKeystore(filePath string, privateKey solana.PrivateKey, password []byte) error {
	if filepath.Ext(filePath) != ".cwt" {
		return errors.New("file must have .cwt extension")
	}
	if len(privateKey) != 64 {
		return fmt.Errorf("invalid private key length: expected 64 bytes")
	}

	// An existing empty file may be reused
	if info, err := os.Stat(filePath); err == nil && info.Size() > 0 {
		return ErrKeystoreExists
	}

	address := privateKey.PublicKey().String()
	qr, err := QRCode(address)
	if err != nil {
		return err
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesGCM, err := newGCM(password, salt)
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(&model.SignerData{
		PrivateKey: privateKey,
		CreatedAt:  time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal signer data: %w", err)
	}
	defer clear(plaintext) // wipe plaintext bytes from memory

	file := model.KeystoreFile{
		Network:    networkSolana,
		Address:    address,
		QR:         qr,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CipherText: base64.StdEncoding.EncodeToString(aesGCM.Seal(nil, nonce, plaintext, nil)),
	}

	fileData, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keystore file: %w", err)
	}

	// Add UTF-8 BOM for proper display in Windows
	fileData = append([]byte{0xEF, 0xBB, 0xBF}, fileData...)

	if err := os.WriteFile(filePath, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// QRCode renders text as a base64 PNG QR code
func QRCode(text string) (string, error) {
	qr, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}
	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate PNG: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

func newGCM(password, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(password, salt, kdf.N, kdf.R, kdf.P, kdf.KeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
