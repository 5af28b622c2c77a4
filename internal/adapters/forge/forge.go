package forge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// Builder compiles the project with forge so that every artifact carries
// its storage layout
type Builder struct {
	log         *slog.Logger
	projectRoot string
	profile     string
	skip        bool
}

var _ usecase.ContractBuilder = (*Builder)(nil)

// NewBuilder creates a forge builder for the active profile
func NewBuilder(cfg *config.RuntimeConfig, log *slog.Logger) *Builder {
	return &Builder{
		log:         log.With("component", "ForgeBuilder"),
		projectRoot: cfg.ProjectRoot,
		profile:     cfg.Namespace,
		skip:        cfg.SkipBuild,
	}
}

// Build runs forge build
func (b *Builder) Build(ctx context.Context) error {
	if b.skip {
		b.log.Debug("skipping forge build")
		return nil
	}

	start := time.Now()
	b.log.Debug("running forge build", "dir", b.projectRoot, "profile", b.profile)

	cmd := exec.CommandContext(ctx, "forge", b.buildArgs()...)
	cmd.Dir = b.projectRoot
	cmd.Env = append(os.Environ(), b.buildEnv()...)

	output, err := cmd.CombinedOutput()
	duration := time.Since(start)
	if err != nil {
		b.log.Error("forge build failed", "error", err, "output", string(output), "duration", duration)
		return fmt.Errorf("forge build failed: %w\nOutput: %s", err, string(output))
	}

	b.log.Debug("forge build completed", "duration", duration)
	return nil
}

func (b *Builder) buildArgs() []string {
	return []string{"build", "--extra-output", "storageLayout"}
}

func (b *Builder) buildEnv() []string {
	if b.profile == "" {
		return nil
	}
	return []string{"FOUNDRY_PROFILE=" + b.profile}
}
