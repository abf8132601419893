package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/AlexZinkM/escrow-custody/internal/model"

	"github.com/gagliardetto/solana-go"
)

// ErrInvalidPassword is returned when the keystore cannot be decrypted
var ErrInvalidPassword = errors.New("invalid password")

// LoadSigner decrypts the keystore and returns its private key.
// The key is checked against the stored address.
// Caller should zero the returned key after use.
func LoadSigner(filePath string, password []byte) (solana.PrivateKey, error) {
	file, data, err := DecryptKeystore(filePath, password)
	if err != nil {
		return nil, err
	}

	if len(data.PrivateKey) != 64 {
		clear(data.PrivateKey)
		return nil, fmt.Errorf("invalid private key length")
	}
	key := solana.PrivateKey(data.PrivateKey)
	if key.PublicKey().String() != file.Address {
		clear(key)
		return nil, fmt.Errorf("private key does not match address")
	}
	return key, nil
}

// DecryptKeystore reads and decrypts a .cwt file
// password must be []byte for security (caller should zero it after use)
func DecryptKeystore(filePath string, password []byte) (*model.KeystoreFile, *model.SignerData, error) {
	file, err := readKeystoreFile(filePath)
	if err != nil {
		return nil, nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(file.Nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(file.CipherText)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	aesGCM, err := newGCM(password, salt)
	if err != nil {
		return nil, nil, err
	}
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, nil, ErrInvalidPassword
	}
	defer clear(plaintext) // wipe decrypted bytes from memory

	var data model.SignerData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal signer data: %w", err)
	}
	return file, &data, nil
}

// ReadKeystoreAddress reads only the address from .cwt file (without decryption)
func ReadKeystoreAddress(filePath string) (solana.PublicKey, error) {
	file, err := readKeystoreFile(filePath)
	if err != nil {
		return solana.PublicKey{}, err
	}
	addr, err := solana.PublicKeyFromBase58(file.Address)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid keystore address: %w", err)
	}
	return addr, nil
}

func readKeystoreFile(filePath string) (*model.KeystoreFile, error) {
	fileData, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("file does not exist")
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(fileData) == 0 {
		return nil, errors.New("file is empty")
	}

	// Skip UTF-8 BOM if present
	if len(fileData) >= 3 && fileData[0] == 0xEF && fileData[1] == 0xBB && fileData[2] == 0xBF {
		fileData = fileData[3:]
	}

	var file model.KeystoreFile
	if err := json.Unmarshal(fileData, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keystore file: %w", err)
	}
	return &file, nil
}
