package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/trebuchet-org/treb-proxy/internal/adapters/abi"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// EIP-1967 storage slots
var (
	ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
	AdminSlot          = common.HexToHash("0xb53127684a568b3173ae13b9f8a6016e243a63b6e8ee1178d6a717850b5d6103")
)

// Submitter sends proxy transactions with the configured signer and waits
// for them to be mined. The RPC connection is opened on first use.
type Submitter struct {
	signer usecase.Signer
	log    *slog.Logger
	dial   func(ctx context.Context) (Backend, error)

	mu      sync.Mutex
	backend Backend

	proxyAdmin gethabi.ABI
}

var _ usecase.TransactionSubmitter = (*Submitter)(nil)

// NewSubmitter creates a submitter for the configured network
func NewSubmitter(cfg *config.RuntimeConfig, signer usecase.Signer, log *slog.Logger) *Submitter {
	s := newSubmitter(signer, log)
	s.dial = func(ctx context.Context) (Backend, error) {
		if cfg.Network == nil {
			return nil, fmt.Errorf("no network specified, use --network or set TREB_NETWORK")
		}
		client, err := Dial(ctx, cfg.Network.RPCURL, cfg.Network.ChainID)
		if err != nil {
			return nil, fmt.Errorf("network %s: %w", cfg.Network.Name, err)
		}
		return client, nil
	}
	return s
}

// NewSubmitterWithBackend creates a submitter on an existing connection
func NewSubmitterWithBackend(backend Backend, signer usecase.Signer, log *slog.Logger) *Submitter {
	s := newSubmitter(signer, log)
	s.backend = backend
	return s
}

func newSubmitter(signer usecase.Signer, log *slog.Logger) *Submitter {
	return &Submitter{
		signer:     signer,
		log:        log.With("component", "Submitter"),
		proxyAdmin: abi.ParsedProxyAdmin(),
	}
}

func (s *Submitter) connect(ctx context.Context) (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend != nil {
		return s.backend, nil
	}
	backend, err := s.dial(ctx)
	if err != nil {
		return nil, &domain.NetworkError{Op: "connect", SafeToRetry: true, Err: err}
	}
	s.backend = backend
	return backend, nil
}

// Submit signs tx, broadcasts it and blocks until it is mined or ctx is
// done. Failures before broadcast are safe to retry. Failures after carry
// the transaction hash so the caller can look it up.
func (s *Submitter) Submit(ctx context.Context, tx models.Transaction) (*models.Receipt, error) {
	op := string(tx.Kind)
	if err := validate(tx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	backend, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	opts, err := s.signer.TransactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts.NoSend = true

	signed, err := s.build(opts, backend, tx)
	if err != nil {
		return nil, classifyBuildError(op, err)
	}

	log := s.log.With("kind", tx.Kind, "tx", signed.Hash().Hex())
	log.Debug("sending transaction", "nonce", signed.Nonce(), "gas", signed.Gas())
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return nil, &domain.NetworkError{Op: op, TxHash: signed.Hash(), Err: err}
	}

	mined, err := bind.WaitMined(ctx, backend, signed)
	if err != nil {
		return nil, &domain.NetworkError{Op: op, TxHash: signed.Hash(), Err: err}
	}
	log.Debug("transaction mined", "block", mined.BlockNumber, "status", mined.Status)

	receipt := &models.Receipt{
		Success:         mined.Status == types.ReceiptStatusSuccessful,
		TxHash:          signed.Hash(),
		ContractAddress: mined.ContractAddress,
	}
	if mined.BlockNumber != nil {
		receipt.BlockNumber = mined.BlockNumber.Uint64()
	}

	switch tx.Kind {
	case models.TxUpgrade:
		if impl, ok := abi.UpgradedIn(mined.Logs, tx.Proxy); ok {
			receipt.ConfirmedImplementation = &impl
		}
	case models.TxDeployProxyAdmin:
		receipt.AdminContract = mined.ContractAddress
	case models.TxDeployProxy:
		receipt.AdminContract = tx.AdminContract
	}
	return receipt, nil
}

// build returns the signed, unsent transaction for tx
func (s *Submitter) build(opts *bind.TransactOpts, backend Backend, tx models.Transaction) (*types.Transaction, error) {
	switch tx.Kind {
	case models.TxDeployImplementation:
		return s.deploy(opts, backend, tx.Artifact)

	case models.TxDeployProxyAdmin:
		parsed, err := abi.Parse(tx.Artifact)
		if err != nil {
			return nil, err
		}
		// OpenZeppelin v5 takes the initial owner, v4 uses msg.sender
		var args []interface{}
		if ctor := parsed.Constructor; len(ctor.Inputs) == 1 && ctor.Inputs[0].Type.T == gethabi.AddressTy {
			args = append(args, tx.Admin)
		}
		return s.deploy(opts, backend, tx.Artifact, args...)

	case models.TxDeployProxy:
		data := tx.InitData
		if data == nil {
			data = []byte{}
		}
		return s.deploy(opts, backend, tx.Artifact, tx.Implementation, tx.AdminContract, data)

	case models.TxUpgrade:
		admin := bind.NewBoundContract(tx.AdminContract, s.proxyAdmin, backend, backend, backend)
		if len(tx.InitData) > 0 || s.isV5Admin(opts, admin) {
			return admin.Transact(opts, "upgradeAndCall", tx.Proxy, tx.Implementation, nonNil(tx.InitData))
		}
		return admin.Transact(opts, "upgrade", tx.Proxy, tx.Implementation)

	case models.TxChangeAdmin:
		admin := bind.NewBoundContract(tx.AdminContract, s.proxyAdmin, backend, backend, backend)
		return admin.Transact(opts, "transferOwnership", tx.NewAdmin)
	}
	return nil, fmt.Errorf("unsupported transaction kind %q", tx.Kind)
}

// validate rejects transactions that cannot be built before anything is
// signed or sent
func validate(tx models.Transaction) error {
	switch tx.Kind {
	case models.TxDeployImplementation, models.TxDeployProxyAdmin, models.TxDeployProxy:
		if tx.Artifact == nil {
			return fmt.Errorf("no artifact to deploy")
		}
		if tx.Artifact.HasUnlinkedLibraries() {
			return fmt.Errorf("%s: bytecode has unlinked libraries", tx.ContractRef)
		}
		if len(tx.Artifact.Bytecode.Bytes()) == 0 {
			return fmt.Errorf("%s: artifact has no creation bytecode (abstract contract or interface?)", tx.ContractRef)
		}
		if _, err := abi.Parse(tx.Artifact); err != nil {
			return fmt.Errorf("%s: %w", tx.ContractRef, err)
		}
	case models.TxUpgrade:
		if tx.Proxy == (common.Address{}) || tx.Implementation == (common.Address{}) {
			return fmt.Errorf("upgrade needs a proxy and an implementation")
		}
		if tx.AdminContract == (common.Address{}) {
			return fmt.Errorf("proxy %s has no ProxyAdmin", tx.Proxy.Hex())
		}
	case models.TxChangeAdmin:
		if tx.AdminContract == (common.Address{}) || tx.NewAdmin == (common.Address{}) {
			return fmt.Errorf("admin change needs a ProxyAdmin and a new owner")
		}
	default:
		return fmt.Errorf("unsupported transaction kind %q", tx.Kind)
	}
	return nil
}

// isV5Admin reports whether the ProxyAdmin exposes UPGRADE_INTERFACE_VERSION,
// in which case upgradeAndCall is its only upgrade entry point
func (s *Submitter) isV5Admin(opts *bind.TransactOpts, admin *bind.BoundContract) bool {
	var out []interface{}
	err := admin.Call(&bind.CallOpts{Context: opts.Context, From: opts.From}, &out, "UPGRADE_INTERFACE_VERSION")
	return err == nil && len(out) == 1
}

func (s *Submitter) deploy(opts *bind.TransactOpts, backend Backend, artifact *models.Artifact, args ...interface{}) (*types.Transaction, error) {
	parsed, err := abi.Parse(artifact)
	if err != nil {
		return nil, err
	}
	_, tx, _, err := bind.DeployContract(opts, *parsed, artifact.Bytecode.Bytes(), backend, args...)
	return tx, err
}

// ImplementationOf reads the EIP-1967 implementation slot
func (s *Submitter) ImplementationOf(ctx context.Context, proxy common.Address) (common.Address, error) {
	return s.readSlot(ctx, proxy, ImplementationSlot)
}

// AdminOf reads the EIP-1967 admin slot
func (s *Submitter) AdminOf(ctx context.Context, proxy common.Address) (common.Address, error) {
	return s.readSlot(ctx, proxy, AdminSlot)
}

func (s *Submitter) readSlot(ctx context.Context, addr common.Address, slot common.Hash) (common.Address, error) {
	backend, err := s.connect(ctx)
	if err != nil {
		return common.Address{}, err
	}
	value, err := backend.StorageAt(ctx, addr, slot, nil)
	if err != nil {
		return common.Address{}, &domain.NetworkError{Op: "eth_getStorageAt", SafeToRetry: true, Err: err}
	}
	return common.BytesToAddress(value), nil
}

// OwnerOf calls owner() on a ProxyAdmin
func (s *Submitter) OwnerOf(ctx context.Context, adminContract common.Address) (common.Address, error) {
	backend, err := s.connect(ctx)
	if err != nil {
		return common.Address{}, err
	}
	admin := bind.NewBoundContract(adminContract, s.proxyAdmin, backend, backend, backend)

	var out []interface{}
	if err := admin.Call(&bind.CallOpts{Context: ctx}, &out, "owner"); err != nil {
		if errors.Is(err, bind.ErrNoCode) {
			return common.Address{}, fmt.Errorf("no contract at %s: %w", adminContract.Hex(), domain.ErrNotFound)
		}
		return common.Address{}, &domain.NetworkError{Op: "owner()", SafeToRetry: true, Err: err}
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("owner() returned %d values", len(out))
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("owner() returned %T", out[0])
	}
	return owner, nil
}

// CodeHashAt returns keccak256 of the runtime code at addr
func (s *Submitter) CodeHashAt(ctx context.Context, addr common.Address) (common.Hash, error) {
	backend, err := s.connect(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	code, err := backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return common.Hash{}, &domain.NetworkError{Op: "eth_getCode", SafeToRetry: true, Err: err}
	}
	if len(code) == 0 {
		return common.Hash{}, nil
	}
	return crypto.Keccak256Hash(code), nil
}

// classifyBuildError sorts failures that happened before anything was
// broadcast. Gas estimation surfaces reverts as "execution reverted".
func classifyBuildError(op string, err error) error {
	msg := err.Error()
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		reason := strings.TrimPrefix(msg[i+len("execution reverted"):], ":")
		return &domain.RevertedError{Op: op, Reason: strings.TrimSpace(reason)}
	}
	return &domain.NetworkError{Op: op, SafeToRetry: true, Err: err}
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
