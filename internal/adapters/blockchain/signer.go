package blockchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// KeySigner signs with a private_key sender from foundry.toml
type KeySigner struct {
	name    string
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	err     error
}

var _ usecase.Signer = (*KeySigner)(nil)

// NewKeySigner creates a signer for key on chainID
func NewKeySigner(key *ecdsa.PrivateKey, chainID uint64) *KeySigner {
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).SetUint64(chainID),
	}
}

// NewSigner loads the configured sender. A sender that is missing or cannot
// sign yields a signer with the zero address whose TransactOpts fails, so
// read-only commands still work without one.
func NewSigner(cfg *config.RuntimeConfig) (*KeySigner, error) {
	sender, ok := cfg.Sender()
	if !ok {
		return &KeySigner{
			name: cfg.SenderName,
			err:  fmt.Errorf("sender %q is not configured in [profile.%s.treb.senders]", cfg.SenderName, cfg.Namespace),
		}, nil
	}

	switch sender.Type {
	case config.SenderTypePrivateKey:
	case config.SenderTypeLedger, config.SenderTypeSafe:
		s := &KeySigner{
			name: cfg.SenderName,
			err:  fmt.Errorf("sender %q: %s senders cannot sign proxy transactions", cfg.SenderName, sender.Type),
		}
		if common.IsHexAddress(sender.Address) {
			s.address = common.HexToAddress(sender.Address)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("sender %q: unknown sender type %q", cfg.SenderName, sender.Type)
	}

	if sender.PrivateKey == "" {
		return nil, fmt.Errorf("sender %q: private_key is empty (is its env var set?)", cfg.SenderName)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(sender.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("sender %q: invalid private key: %w", cfg.SenderName, err)
	}

	s := NewKeySigner(key, cfg.ChainID())
	s.name = cfg.SenderName
	if sender.Address != "" && common.HexToAddress(sender.Address) != s.address {
		return nil, fmt.Errorf("sender %q: address %s does not match its private key (%s)",
			cfg.SenderName, sender.Address, s.address.Hex())
	}
	return s, nil
}

// Address returns the sender address
func (s *KeySigner) Address() common.Address {
	return s.address
}

// TransactOpts returns fresh transaction options bound to ctx
func (s *KeySigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.chainID.Sign() == 0 {
		return nil, fmt.Errorf("sender %q: no network chain id to sign for", s.name)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}
