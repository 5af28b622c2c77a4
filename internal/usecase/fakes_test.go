package usecase_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-proxy/internal/adapters/repository/proxies"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
	"github.com/trebuchet-org/treb-proxy/internal/domain/layout"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	deployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	stranger = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

// fakeChain is an in-memory chain: deployments get sequential addresses,
// proxies and ProxyAdmins keep their slots in maps.
type fakeChain struct {
	mu        sync.Mutex
	nonce     uint64
	impls     map[common.Address]common.Address // proxy -> implementation
	admins    map[common.Address]common.Address // proxy -> ProxyAdmin
	owners    map[common.Address]common.Address // ProxyAdmin -> owner
	code      map[common.Address]common.Hash
	submitted []models.Transaction

	// sender is the account transactions are sent from
	sender common.Address

	hang         models.TransactionKind
	failKind     models.TransactionKind
	failErr      error
	afterUpgrade func(tx models.Transaction)

	// upgradedEvent puts the Upgraded implementation into upgrade receipts
	upgradedEvent bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		impls:  make(map[common.Address]common.Address),
		admins: make(map[common.Address]common.Address),
		owners: make(map[common.Address]common.Address),
		code:   make(map[common.Address]common.Hash),
		sender: deployer,
	}
}

var _ usecase.TransactionSubmitter = (*fakeChain)(nil)

func (c *fakeChain) newAddress() common.Address {
	c.nonce++
	return crypto.CreateAddress(c.sender, c.nonce)
}

func (c *fakeChain) txHash() common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(c.nonce))
}

// deploy puts code on the chain outside of any use case
func (c *fakeChain) deploy(artifact *models.Artifact) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := c.newAddress()
	c.code[addr] = artifact.BytecodeHash()
	return addr
}

func (c *fakeChain) setImplementation(proxy, impl common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.impls[proxy] = impl
}

func (c *fakeChain) count(kind models.TransactionKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, tx := range c.submitted {
		if tx.Kind == kind {
			n++
		}
	}
	return n
}

func (c *fakeChain) Submit(ctx context.Context, tx models.Transaction) (*models.Receipt, error) {
	if tx.Kind == c.hang {
		<-ctx.Done()
		return nil, &domain.NetworkError{Op: string(tx.Kind), Err: ctx.Err()}
	}

	c.mu.Lock()
	c.submitted = append(c.submitted, tx)
	if tx.Kind == c.failKind {
		c.mu.Unlock()
		return nil, c.failErr
	}

	receipt := &models.Receipt{Success: true}
	switch tx.Kind {
	case models.TxDeployImplementation:
		receipt.ContractAddress = c.newAddress()
		c.code[receipt.ContractAddress] = tx.Artifact.BytecodeHash()
	case models.TxDeployProxyAdmin:
		receipt.ContractAddress = c.newAddress()
		c.owners[receipt.ContractAddress] = tx.Admin
	case models.TxDeployProxy:
		receipt.ContractAddress = c.newAddress()
		c.impls[receipt.ContractAddress] = tx.Implementation
		c.admins[receipt.ContractAddress] = tx.AdminContract
	case models.TxUpgrade:
		if c.owners[tx.AdminContract] != c.sender || c.admins[tx.Proxy] != tx.AdminContract {
			receipt.Success = false
			break
		}
		c.impls[tx.Proxy] = tx.Implementation
		if c.upgradedEvent {
			impl := tx.Implementation
			receipt.ConfirmedImplementation = &impl
		}
	case models.TxChangeAdmin:
		if c.owners[tx.AdminContract] != c.sender {
			receipt.Success = false
			break
		}
		c.owners[tx.AdminContract] = tx.NewAdmin
	default:
		c.mu.Unlock()
		return nil, fmt.Errorf("unexpected transaction kind %s", tx.Kind)
	}
	receipt.TxHash = c.txHash()
	c.mu.Unlock()

	if tx.Kind == models.TxUpgrade && receipt.Success && c.afterUpgrade != nil {
		c.afterUpgrade(tx)
	}
	return receipt, nil
}

func (c *fakeChain) ImplementationOf(_ context.Context, proxy common.Address) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.impls[proxy], nil
}

func (c *fakeChain) AdminOf(_ context.Context, proxy common.Address) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admins[proxy], nil
}

func (c *fakeChain) OwnerOf(_ context.Context, adminContract common.Address) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owners[adminContract], nil
}

func (c *fakeChain) CodeHashAt(_ context.Context, addr common.Address) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code[addr], nil
}

type fakeSigner struct {
	addr common.Address
}

func (s fakeSigner) Address() common.Address { return s.addr }

func (s fakeSigner) TransactOpts(context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: s.addr}, nil
}

// fakeEncoder returns the selector of the method, looked up in the
// artifact's method identifiers
type fakeEncoder struct{}

func (fakeEncoder) EncodeCall(artifact *models.Artifact, method string, args []string) ([]byte, error) {
	for sig, id := range artifact.MethodIdentifiers {
		if strings.HasPrefix(sig, method+"(") {
			data := common.FromHex(id)
			for _, arg := range args {
				data = append(data, common.LeftPadBytes([]byte(arg), 32)...)
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("method %s: %w", method, domain.ErrNotFound)
}

type fakeArtifacts struct {
	contracts []*models.Contract
}

func (a *fakeArtifacts) add(c *models.Contract) *models.Contract {
	a.contracts = append(a.contracts, c)
	return c
}

func (a *fakeArtifacts) GetContract(_ context.Context, ref string) (*models.Contract, error) {
	for _, c := range a.contracts {
		if c.Name == ref || c.Ref() == ref {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrContractNotFound, ref)
}

func (a *fakeArtifacts) ListContracts(context.Context) []*models.Contract {
	return a.contracts
}

func (a *fakeArtifacts) FindByBytecodeHash(_ context.Context, hash common.Hash) (*models.Contract, error) {
	for _, c := range a.contracts {
		if c.Artifact.BytecodeHash() == hash {
			return c, nil
		}
	}
	return nil, fmt.Errorf("bytecode %s: %w", hash.Hex(), domain.ErrNotFound)
}

type fakeConfirmer struct {
	answer bool
	asked  int
}

func (c *fakeConfirmer) Confirm(context.Context, string) (bool, error) {
	c.asked++
	return c.answer, nil
}

type variable struct {
	label  string
	slot   int
	offset int
	typ    string
}

var typeWidths = map[string]int{
	"t_uint256": 32,
	"t_uint128": 16,
	"t_address": 20,
	"t_bool":    1,
}

func storageLayout(vars ...variable) json.RawMessage {
	type entry struct {
		Label  string `json:"label"`
		Offset int    `json:"offset"`
		Slot   string `json:"slot"`
		Type   string `json:"type"`
	}
	type typ struct {
		Encoding      string `json:"encoding"`
		Label         string `json:"label"`
		NumberOfBytes string `json:"numberOfBytes"`
	}
	doc := struct {
		Storage []entry        `json:"storage"`
		Types   map[string]typ `json:"types"`
	}{Storage: []entry{}, Types: map[string]typ{}}

	for _, v := range vars {
		doc.Storage = append(doc.Storage, entry{Label: v.label, Offset: v.offset, Slot: fmt.Sprint(v.slot), Type: v.typ})
		doc.Types[v.typ] = typ{
			Encoding:      "inplace",
			Label:         strings.TrimPrefix(v.typ, "t_"),
			NumberOfBytes: fmt.Sprint(typeWidths[v.typ]),
		}
	}
	data, _ := json.Marshal(doc)
	return data
}

func contract(name string, vars ...variable) *models.Contract {
	return &models.Contract{
		Name: name,
		Path: "src/" + name + ".sol",
		Artifact: &models.Artifact{
			Bytecode:          models.BytecodeObject{Object: "0x6080" + hex.EncodeToString([]byte(name))},
			DeployedBytecode:  models.BytecodeObject{Object: "0x" + hex.EncodeToString([]byte(name))},
			MethodIdentifiers: map[string]string{"initialize(uint256)": "fe4b84df"},
			StorageLayout:     storageLayout(vars...),
		},
	}
}

// env wires the use cases against the fake chain and a real file registry
type env struct {
	cfg       *config.RuntimeConfig
	chain     *fakeChain
	registry  *proxies.Registry
	artifacts *fakeArtifacts
	layouts   *layout.Cache
	log       *slog.Logger

	saleV1, saleV2, saleV3, market *models.Contract
}

func newEnv(t *testing.T) *env {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, err := proxies.NewFileRegistry(t.TempDir(), 31337, log)
	require.NoError(t, err)

	artifacts := &fakeArtifacts{}
	e := &env{
		cfg: &config.RuntimeConfig{
			NonInteractive: true,
			ConfirmTimeout: 5 * time.Second,
			Network:        &config.Network{ChainID: 31337, Name: "anvil"},
		},
		chain:     newFakeChain(),
		registry:  registry,
		artifacts: artifacts,
		layouts:   layout.NewCache(),
		log:       log,
	}

	artifacts.add(contract("TransparentUpgradeableProxy"))
	artifacts.add(contract("ProxyAdmin", variable{"_owner", 0, 0, "t_address"}))

	e.saleV1 = artifacts.add(contract("Sale",
		variable{"total", 0, 0, "t_uint256"},
		variable{"owner", 1, 0, "t_address"},
	))
	// appends rate
	e.saleV2 = artifacts.add(contract("SaleV2",
		variable{"total", 0, 0, "t_uint256"},
		variable{"owner", 1, 0, "t_address"},
		variable{"rate", 2, 0, "t_uint256"},
	))
	// removes total and compacts the rest
	e.saleV3 = artifacts.add(contract("SaleV3",
		variable{"owner", 0, 0, "t_address"},
		variable{"rate", 1, 0, "t_uint256"},
	))
	e.market = artifacts.add(contract("Market",
		variable{"price", 0, 0, "t_uint256"},
	))
	return e
}

func (e *env) deployProxy(signer common.Address) *usecase.DeployProxy {
	return usecase.NewDeployProxy(e.cfg, e.registry, e.artifacts, e.chain, fakeSigner{signer}, fakeEncoder{},
		e.layouts, nil, noop.NewTracerProvider(), usecase.NopProgress{}, e.log)
}

func (e *env) upgradeProxy(signer common.Address) *usecase.UpgradeProxy {
	return usecase.NewUpgradeProxy(e.cfg, e.registry, e.artifacts, e.chain, fakeSigner{signer}, fakeEncoder{},
		e.layouts, nil, noop.NewTracerProvider(), usecase.NopProgress{}, e.log)
}

// deploySale runs scenario A: Sale behind a new proxy administered by the deployer
func (e *env) deploySale(t *testing.T, label string) *models.Proxy {
	t.Helper()
	result, err := e.deployProxy(deployer).Run(context.Background(), usecase.DeployProxyParams{
		ContractRef: "Sale",
		Label:       label,
		InitArgs:    []string{"1"},
	})
	require.NoError(t, err)
	require.Equal(t, models.StateConfirmed, result.Request.State)
	return result.Request.Proxy
}

func (e *env) historyLen(t *testing.T, proxy common.Address) int {
	t.Helper()
	history, err := e.registry.History(context.Background(), proxy)
	require.NoError(t, err)
	n := 0
	for range history {
		n++
	}
	return n
}
