package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Contract represents a compiled contract discovered in the project's artifacts
type Contract struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	ArtifactPath string    `json:"artifactPath,omitempty"`
	Artifact     *Artifact `json:"artifact,omitempty"`
}

// Ref returns the "path:Name" artifact reference
func (c *Contract) Ref() string {
	if c.Path == "" {
		return c.Name
	}
	return fmt.Sprintf("%s:%s", c.Path, c.Name)
}

// BytecodeObject represents bytecode information in a Foundry artifact
type BytecodeObject struct {
	Object         string         `json:"object"`
	SourceMap      string         `json:"sourceMap"`
	LinkReferences map[string]any `json:"linkReferences"`
}

// Bytes decodes the hex bytecode object
func (b BytecodeObject) Bytes() []byte {
	return common.FromHex(b.Object)
}

// Artifact represents a Foundry compilation artifact. StorageLayout is only
// present when the project is built with --extra-output storageLayout.
type Artifact struct {
	ABI               json.RawMessage   `json:"abi"`
	Bytecode          BytecodeObject    `json:"bytecode"`
	DeployedBytecode  BytecodeObject    `json:"deployedBytecode"`
	MethodIdentifiers map[string]string `json:"methodIdentifiers"`
	StorageLayout     json.RawMessage   `json:"storageLayout,omitempty"`
	Metadata          ArtifactMetadata  `json:"metadata"`
}

// BytecodeHash returns the keccak256 of the deployed bytecode
func (a *Artifact) BytecodeHash() common.Hash {
	return crypto.Keccak256Hash(a.DeployedBytecode.Bytes())
}

// HasUnlinkedLibraries reports whether the bytecode still has placeholders
func (a *Artifact) HasUnlinkedLibraries() bool {
	return strings.Contains(a.Bytecode.Object, "__$")
}

// ArtifactMetadata represents the metadata section of a Foundry artifact
type ArtifactMetadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Language string `json:"language"`
	Settings struct {
		CompilationTarget map[string]string `json:"compilationTarget"`
	} `json:"settings"`
}
