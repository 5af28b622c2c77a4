package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// TransactionKind identifies what an on-chain transaction does
type TransactionKind string

const (
	TxDeployImplementation TransactionKind = "DEPLOY_IMPLEMENTATION"
	TxDeployProxyAdmin     TransactionKind = "DEPLOY_PROXY_ADMIN"
	TxDeployProxy          TransactionKind = "DEPLOY_PROXY"
	TxUpgrade              TransactionKind = "UPGRADE"
	TxChangeAdmin          TransactionKind = "CHANGE_ADMIN"
)

// Transaction is a request to the transaction submitter. Only the fields
// relevant to the kind are read.
type Transaction struct {
	Kind TransactionKind `json:"kind"`

	// Deployments
	ContractRef string    `json:"contractRef,omitempty"`
	Artifact    *Artifact `json:"-"`
	InitData    []byte    `json:"initData,omitempty"` // proxy constructor calldata

	// Proxy operations
	Proxy          common.Address `json:"proxy,omitempty"`
	Implementation common.Address `json:"implementation,omitempty"`
	AdminContract  common.Address `json:"adminContract,omitempty"`
	Admin          common.Address `json:"admin,omitempty"`    // authority for DeployProxy
	NewAdmin       common.Address `json:"newAdmin,omitempty"` // for ChangeAdmin
}

// Receipt is what the submitter reports once a transaction is confirmed
type Receipt struct {
	Success                 bool            `json:"success"`
	TxHash                  common.Hash     `json:"txHash"`
	BlockNumber             uint64          `json:"blockNumber"`
	ContractAddress         common.Address  `json:"contractAddress,omitempty"`
	AdminContract           common.Address  `json:"adminContract,omitempty"`
	ConfirmedImplementation *common.Address `json:"confirmedImplementation,omitempty"`
}
