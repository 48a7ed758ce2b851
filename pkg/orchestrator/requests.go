package orchestrator

// DeployRequest deploys a contract from its ABI and creation bytecode.
// ConstructorArgs are colon-delimited.
type DeployRequest struct {
	Network         string         `json:"network" validate:"required"`
	TeamID          string         `json:"team_id" validate:"required_without=From"`
	From            string         `json:"from,omitempty" validate:"omitempty,eth_addr"`
	Name            string         `json:"name" validate:"required,max=255"`
	ABI             string         `json:"abi" validate:"required,json"`
	Bytecode        string         `json:"bytecode" validate:"required,hexadecimal"`
	ConstructorArgs string         `json:"constructor_args,omitempty"`
	Execute         bool           `json:"execute"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// DeployResult is returned by Deploy
type DeployResult struct {
	Submission
	ContractID      int64  `json:"contract_id,omitempty"`
	ContractStatus  string `json:"contract_status,omitempty"`
	ContractAddress string `json:"contract_address,omitempty"`
	MetadataID      *int64 `json:"metadata_id,omitempty"`
}

// MintRequest mints a token through a method of a deployed contract. Args
// are colon-delimited; array inputs are given as JSON.
type MintRequest struct {
	Network    string         `json:"network,omitempty"`
	TeamID     string         `json:"team_id" validate:"required_without=From"`
	From       string         `json:"from,omitempty" validate:"omitempty,eth_addr"`
	ContractID int64          `json:"contract_id" validate:"required,gt=0"`
	Method     string         `json:"method" validate:"required"`
	Args       string         `json:"args,omitempty"`
	NFTNumber  int64          `json:"nft_number" validate:"gte=0"`
	Execute    bool           `json:"execute"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// MintResult is returned by Mint
type MintResult struct {
	Submission
	TokenID    int64  `json:"token_id,omitempty"`
	MetadataID *int64 `json:"metadata_id,omitempty"`
}

// WhitelistRequest adds or removes a comma-delimited list of addresses
type WhitelistRequest struct {
	Network    string `json:"network,omitempty"`
	TeamID     string `json:"team_id" validate:"required_without=From"`
	From       string `json:"from,omitempty" validate:"omitempty,eth_addr"`
	ContractID int64  `json:"contract_id" validate:"required,gt=0"`
	Addresses  string `json:"addresses" validate:"required"`
	Execute    bool   `json:"execute"`
}

// WhitelistResult carries the new root and, for additions, a proof per
// added address.
type WhitelistResult struct {
	Submission
	Root      string              `json:"root"`
	Addresses []string            `json:"addresses"`
	Proofs    map[string][]string `json:"proofs,omitempty"`
}

// CallRequest invokes any method of a deployed contract
type CallRequest struct {
	Network    string `json:"network,omitempty"`
	TeamID     string `json:"team_id,omitempty"`
	From       string `json:"from,omitempty" validate:"omitempty,eth_addr"`
	ContractID int64  `json:"contract_id" validate:"required,gt=0"`
	Method     string `json:"method" validate:"required"`
	Args       string `json:"args,omitempty"`
	Execute    bool   `json:"execute"`
}

// CallResult holds decoded outputs for reads and the submission for writes
type CallResult struct {
	*Submission
	Outputs []any `json:"outputs,omitempty"`
}
