// Package wallet provides the signing handle transactions are submitted with.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/smartdevs17/stakebet/internal/config"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// Signer is a connected wallet: an address plus the authority to sign
// transactions from it. Two signers with the same address are the same
// identity.
type Signer interface {
	Address() common.Address
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// KeySigner signs with an in-memory secp256k1 key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// NewKeySigner creates a signer from a hex-encoded private key.
func NewKeySigner(privateKeyHex string, chainID *big.Int) (*KeySigner, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeConfiguration, "invalid wallet private key", err)
	}
	return newKeySigner(key, chainID), nil
}

// LoadKeystore decrypts a V3 keystore file.
func LoadKeystore(path, password string, chainID *big.Int) (*KeySigner, error) {
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeConfiguration, "failed to read keystore", err)
	}
	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeConfiguration, "failed to decrypt keystore", err)
	}
	return newKeySigner(key.PrivateKey, chainID), nil
}

func newKeySigner(key *ecdsa.PrivateKey, chainID *big.Int) *KeySigner {
	return &KeySigner{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}
}

// FromConfig builds the configured signer. It returns nil, nil when no
// key is configured, which leaves the session disconnected.
func FromConfig(cfg config.WalletConfig, chainID *big.Int) (Signer, error) {
	switch {
	case cfg.PrivateKey != "":
		return NewKeySigner(cfg.PrivateKey, chainID)
	case cfg.KeystorePath != "":
		return LoadKeystore(cfg.KeystorePath, cfg.KeystorePassword, chainID)
	default:
		return nil, nil
	}
}

// Address returns the signer's account.
func (s *KeySigner) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer signs for.
func (s *KeySigner) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// TransactOpts returns fresh options bound to ctx for a single transaction.
func (s *KeySigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("wallet: build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}
