package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
)

type countingBuilder struct {
	calls int
	err   error
}

func (b *countingBuilder) Build(context.Context) error {
	b.calls++
	return b.err
}

func writeArtifact(t *testing.T, outDir, source, name, runtime string) {
	t.Helper()
	artifact := map[string]any{
		"abi":              []any{},
		"bytecode":         map[string]any{"object": "0x6080" + runtime},
		"deployedBytecode": map[string]any{"object": "0x" + runtime},
		"metadata": map[string]any{
			"settings": map[string]any{
				"compilationTarget": map[string]string{source: name},
			},
		},
	}
	data, err := json.Marshal(artifact)
	require.NoError(t, err)

	dir := filepath.Join(outDir, strings.TrimPrefix(source, "src/"))
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), data, 0644))
}

func newTestRepository(t *testing.T, builder *countingBuilder) (*Repository, string) {
	t.Helper()
	outDir := t.TempDir()
	writeArtifact(t, outDir, "src/Sale.sol", "Sale", "60016002")
	writeArtifact(t, outDir, "src/SaleV2.sol", "SaleV2", "60016003")
	writeArtifact(t, outDir, "src/v1/Token.sol", "Token", "60016004")
	writeArtifact(t, outDir, "src/v2/Token.sol", "Token", "60016005")

	// interface: no bytecode
	require.NoError(t, os.MkdirAll(filepath.Join(outDir, "ISale.sol"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "ISale.sol", "ISale.json"),
		[]byte(`{"abi":[],"bytecode":{"object":"0x"},"metadata":{"settings":{"compilationTarget":{"src/ISale.sol":"ISale"}}}}`), 0644))

	// build-info is skipped entirely
	require.NoError(t, os.MkdirAll(filepath.Join(outDir, "build-info"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "build-info", "abc.json"), []byte(`not json`), 0644))

	var b = builder
	if b == nil {
		b = &countingBuilder{}
	}
	return NewRepository(outDir, b, slog.New(slog.NewTextHandler(io.Discard, nil))), outDir
}

func TestGetContract(t *testing.T) {
	builder := &countingBuilder{}
	repo, _ := newTestRepository(t, builder)
	ctx := context.Background()

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr error
	}{
		{name: "by name", ref: "Sale", want: "src/Sale.sol:Sale"},
		{name: "by full ref", ref: "src/SaleV2.sol:SaleV2", want: "src/SaleV2.sol:SaleV2"},
		{name: "disambiguated", ref: "src/v2/Token.sol:Token", want: "src/v2/Token.sol:Token"},
		{name: "missing", ref: "Market", wantErr: domain.ErrContractNotFound},
		{name: "wrong path", ref: "src/Other.sol:Sale", wantErr: domain.ErrContractNotFound},
		{name: "interface", ref: "ISale", wantErr: domain.ErrContractNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := repo.GetContract(ctx, tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Ref())
			require.NotNil(t, c.Artifact)
		})
	}

	t.Run("ambiguous", func(t *testing.T) {
		_, err := repo.GetContract(ctx, "Token")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "src/v1/Token.sol:Token, src/v2/Token.sol:Token")
		assert.NotErrorIs(t, err, domain.ErrContractNotFound)
	})

	assert.Equal(t, 1, builder.calls, "builds once")
}

func TestListContracts(t *testing.T) {
	repo, _ := newTestRepository(t, nil)

	var refs []string
	for _, c := range repo.ListContracts(context.Background()) {
		refs = append(refs, c.Ref())
	}
	assert.Equal(t, []string{
		"src/Sale.sol:Sale",
		"src/SaleV2.sol:SaleV2",
		"src/v1/Token.sol:Token",
		"src/v2/Token.sol:Token",
	}, refs)
}

func TestFindByBytecodeHash(t *testing.T) {
	repo, _ := newTestRepository(t, nil)
	ctx := context.Background()

	c, err := repo.FindByBytecodeHash(ctx, crypto.Keccak256Hash([]byte{0x60, 0x01, 0x60, 0x03}))
	require.NoError(t, err)
	assert.Equal(t, "SaleV2", c.Name)

	_, err = repo.FindByBytecodeHash(ctx, crypto.Keccak256Hash([]byte{0xff}))
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
}

func TestBuildFailure(t *testing.T) {
	builder := &countingBuilder{err: errors.New("compiler error")}
	repo, _ := newTestRepository(t, builder)

	_, err := repo.GetContract(context.Background(), "Sale")
	assert.ErrorContains(t, err, "compiler error")
	assert.Empty(t, repo.ListContracts(context.Background()))
}

func TestOutDir(t *testing.T) {
	cfg := &config.RuntimeConfig{ProjectRoot: "/project", Namespace: "live"}
	assert.Equal(t, "/project/out", OutDir(cfg))

	cfg.FoundryConfig = &config.FoundryConfig{Profile: map[string]config.ProfileConfig{
		"default": {OutPath: "artifacts"},
	}}
	assert.Equal(t, "/project/artifacts", OutDir(cfg))

	cfg.FoundryConfig.Profile["live"] = config.ProfileConfig{OutPath: "/abs/out"}
	assert.Equal(t, "/abs/out", OutDir(cfg))
}
