package usecase_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
	"go.opentelemetry.io/otel/trace/noop"
)

func (e *env) transferAdmin(signer common.Address) *usecase.TransferAdmin {
	return usecase.NewTransferAdmin(e.cfg, e.registry, e.chain, fakeSigner{signer}, nil,
		noop.NewTracerProvider(), usecase.NopProgress{}, e.log)
}

func (e *env) reconcile() *usecase.ReconcileProxy {
	return usecase.NewReconcileProxy(e.registry, e.artifacts, e.chain, fakeSigner{deployer}, e.layouts,
		usecase.NopProgress{}, e.log)
}

func TestTransferAdmin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sale := e.deploySale(t, "sale")
	_, err := e.deployProxy(deployer).Run(ctx, usecase.DeployProxyParams{ContractRef: "Market", Label: "market"})
	require.NoError(t, err)

	t.Run("not the admin", func(t *testing.T) {
		_, err := e.transferAdmin(stranger).Run(ctx, usecase.TransferAdminParams{Proxy: "sale", NewAdmin: stranger})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		assert.Zero(t, e.chain.count(models.TxChangeAdmin))
	})

	t.Run("zero address", func(t *testing.T) {
		_, err := e.transferAdmin(deployer).Run(ctx, usecase.TransferAdminParams{Proxy: "sale"})
		assert.ErrorIs(t, err, domain.ErrInvalidAddress)
	})

	result, err := e.transferAdmin(deployer).Run(ctx, usecase.TransferAdminParams{Proxy: "sale", NewAdmin: stranger})
	require.NoError(t, err)
	assert.Equal(t, sale.AdminContract, result.AdminContract)
	assert.Len(t, result.Records, 2)

	for _, label := range []string{"sale", "market"} {
		p, err := e.registry.FindByLabel(ctx, label)
		require.NoError(t, err)
		assert.Equal(t, stranger, p.Admin)
		// admin changes are not versions
		assert.Equal(t, 1, e.historyLen(t, p.Address))
	}

	controlled, err := e.registry.ControlledBy(ctx, stranger)
	require.NoError(t, err)
	assert.Len(t, controlled.ControlledProxies, 2)

	// the old admin can no longer upgrade
	_, err = e.upgradeProxy(deployer).Run(ctx, usecase.UpgradeProxyParams{Proxy: "sale", ContractRef: "SaleV2"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("in sync", func(t *testing.T) {
		e := newEnv(t)
		e.deploySale(t, "sale")

		result, err := e.reconcile().Run(ctx, usecase.ReconcileProxyParams{Proxy: "sale"})
		require.NoError(t, err)
		assert.True(t, result.InSync)
		assert.Nil(t, result.Version)
	})

	t.Run("out-of-band compatible upgrade", func(t *testing.T) {
		e := newEnv(t)
		proxy := e.deploySale(t, "sale")
		v2 := e.chain.deploy(e.saleV2.Artifact)
		e.chain.setImplementation(proxy.Address, v2)

		result, err := e.reconcile().Run(ctx, usecase.ReconcileProxyParams{Proxy: "sale"})
		require.NoError(t, err)
		assert.False(t, result.InSync)
		require.NotNil(t, result.Version)
		assert.Equal(t, uint64(2), result.Version.Sequence)

		current, err := e.registry.Current(ctx, proxy.Address)
		require.NoError(t, err)
		assert.Equal(t, v2, current.Address)
		assert.Equal(t, "src/SaleV2.sol:SaleV2", current.ContractRef)

		// a second pass finds nothing to do
		result, err = e.reconcile().Run(ctx, usecase.ReconcileProxyParams{Proxy: "sale"})
		require.NoError(t, err)
		assert.True(t, result.InSync)
	})

	t.Run("out-of-band incompatible upgrade is not recorded", func(t *testing.T) {
		e := newEnv(t)
		proxy := e.deploySale(t, "sale")
		v3 := e.chain.deploy(e.saleV3.Artifact)
		e.chain.setImplementation(proxy.Address, v3)

		result, err := e.reconcile().Run(ctx, usecase.ReconcileProxyParams{Proxy: "sale"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrSlotRemoved)
		require.NotNil(t, result.Report)
		assert.False(t, result.Report.Compatible)
		assert.Equal(t, 1, e.historyLen(t, proxy.Address))
	})

	t.Run("explicit contract", func(t *testing.T) {
		e := newEnv(t)
		proxy := e.deploySale(t, "sale")
		v2 := e.chain.deploy(e.saleV2.Artifact)
		e.chain.setImplementation(proxy.Address, v2)

		result, err := e.reconcile().Run(ctx, usecase.ReconcileProxyParams{Proxy: "sale", ContractRef: "SaleV2"})
		require.NoError(t, err)
		require.NotNil(t, result.Version)
		assert.Equal(t, v2, result.Version.ImplementationAddress)
	})

	t.Run("wrong explicit contract", func(t *testing.T) {
		e := newEnv(t)
		proxy := e.deploySale(t, "sale")
		other := e.chain.deploy(e.market.Artifact)
		e.chain.setImplementation(proxy.Address, other)

		result, err := e.reconcile().Run(ctx, usecase.ReconcileProxyParams{Proxy: "sale", ContractRef: "SaleV2"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrCodeMismatch)
		assert.Nil(t, result.Version)
		assert.Equal(t, 1, e.historyLen(t, proxy.Address))

		current, err := e.registry.Current(ctx, proxy.Address)
		require.NoError(t, err)
		assert.Equal(t, proxy.Implementation, current.Address)
	})

	t.Run("unknown code", func(t *testing.T) {
		e := newEnv(t)
		proxy := e.deploySale(t, "sale")
		e.chain.setImplementation(proxy.Address, common.HexToAddress("0xdead"))

		_, err := e.reconcile().Run(ctx, usecase.ReconcileProxyParams{Proxy: "sale"})
		assert.ErrorIs(t, err, domain.ErrContractNotFound)
	})

	t.Run("out-of-band admin change", func(t *testing.T) {
		e := newEnv(t)
		proxy := e.deploySale(t, "sale")
		e.chain.mu.Lock()
		e.chain.owners[proxy.AdminContract] = stranger
		e.chain.mu.Unlock()

		result, err := e.reconcile().Run(ctx, usecase.ReconcileProxyParams{Proxy: "sale"})
		require.NoError(t, err)
		require.NotNil(t, result.AdminChange)
		assert.Equal(t, stranger, result.AdminChange.NewAdmin)
		assert.Equal(t, stranger, result.Proxy.Admin)
		assert.Equal(t, 1, e.historyLen(t, proxy.Address))
	})
}

type fakeManifestLoader struct {
	manifest *models.Manifest
}

func (l fakeManifestLoader) Load(context.Context, string) (*models.Manifest, error) {
	return l.manifest, nil
}

func TestApplyManifest(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	existing := e.deploySale(t, "sale")

	loader := fakeManifestLoader{manifest: &models.Manifest{
		Network: "anvil",
		Proxies: []models.ManifestProxy{
			{Contract: "Sale", Label: "sale", Args: []string{"1"}},
			{Contract: "Market", Label: "market"},
		},
	}}
	uc := usecase.NewApplyManifest(e.cfg, loader, e.registry, e.deployProxy(deployer), usecase.NopProgress{})

	result, err := uc.Run(ctx, usecase.ApplyManifestParams{Path: "proxies.yaml"})
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.True(t, result.Entries[0].Skipped)
	assert.Equal(t, existing.Address, result.Entries[0].Existing.Address)
	require.NotNil(t, result.Entries[1].Deploy)
	assert.Equal(t, models.StateConfirmed, result.Entries[1].Deploy.Request.State)

	// applying again deploys nothing
	submitted := len(e.chain.submitted)
	result, err = uc.Run(ctx, usecase.ApplyManifestParams{Path: "proxies.yaml"})
	require.NoError(t, err)
	assert.True(t, result.Entries[1].Skipped)
	assert.Equal(t, submitted, len(e.chain.submitted))

	t.Run("wrong network", func(t *testing.T) {
		loader.manifest.Network = "sepolia"
		uc := usecase.NewApplyManifest(e.cfg, loader, e.registry, e.deployProxy(deployer), usecase.NopProgress{})
		_, err := uc.Run(ctx, usecase.ApplyManifestParams{Path: "proxies.yaml"})
		assert.Error(t, err)
	})
}

func TestListAndShow(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.deploySale(t, "sale")
	_, err := e.deployProxy(deployer).Run(ctx, usecase.DeployProxyParams{ContractRef: "Market", Label: "market"})
	require.NoError(t, err)
	_, err = e.upgradeProxy(deployer).Run(ctx, usecase.UpgradeProxyParams{Proxy: "sale", ContractRef: "SaleV2"})
	require.NoError(t, err)

	list, err := usecase.NewListProxies(e.registry, usecase.NopProgress{}).Run(ctx, usecase.ListProxiesParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, list.Summary.Total)
	assert.Equal(t, 2, list.Summary.ByAdmin[deployer])

	filtered, err := usecase.NewListProxies(e.registry, usecase.NopProgress{}).Run(ctx, usecase.ListProxiesParams{Contract: "SaleV2"})
	require.NoError(t, err)
	require.Len(t, filtered.Proxies, 1)
	assert.Equal(t, 2, filtered.Summary.Versions[filtered.Proxies[0].Address])

	details, err := usecase.NewShowProxy(e.registry, e.chain, usecase.NopProgress{}).Run(ctx, usecase.ShowProxyParams{Proxy: "sale", Live: true})
	require.NoError(t, err)
	assert.Len(t, details.Versions, 2)
	assert.Len(t, details.Admins, 1)
	assert.True(t, details.InSync())
	assert.Equal(t, details.Current.Address, details.Versions[1].ImplementationAddress)

	history, err := usecase.NewProxyHistory(e.registry).Run(ctx, details.Proxy.Address.Hex())
	require.NoError(t, err)
	assert.Len(t, history.Versions, 2)

	check, err := usecase.NewCheckUpgrade(e.registry, e.artifacts, e.layouts, usecase.NopProgress{}).Run(ctx, usecase.CheckUpgradeParams{Proxy: "sale", ContractRef: "SaleV3"})
	require.NoError(t, err)
	assert.False(t, check.Report.Compatible)
	assert.False(t, check.NoOp)
}
