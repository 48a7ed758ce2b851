package orchestrator_test

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
	"github.com/chainsafe/contract-jobs/pkg/chain"
	"github.com/chainsafe/contract-jobs/pkg/chain/chaintest"
	"github.com/chainsafe/contract-jobs/pkg/config"
	"github.com/chainsafe/contract-jobs/pkg/dispatcher"
	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/merkle"
	"github.com/chainsafe/contract-jobs/pkg/orchestrator"
	"github.com/chainsafe/contract-jobs/pkg/orchestrator/mocks"
	"github.com/chainsafe/contract-jobs/pkg/pipeline"
	"github.com/chainsafe/contract-jobs/pkg/store/memory"
)

const (
	network    = "sepolia"
	teamID     = "team-1"
	passphrase = "correct horse battery staple"
	bytecode   = "0x6080604052348015600f57600080fd5b50"
)

const collectionABI = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[
		{"name":"name","type":"string"},{"name":"maxSupply","type":"uint256"}]},
	{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},{"name":"proof","type":"bytes32[]"}],"outputs":[]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"pause","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"setMerkleRoot","stateMutability":"nonpayable","inputs":[
		{"name":"root","type":"bytes32"}],"outputs":[]}
]`

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	carol = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

type fakeUploader struct {
	refs []string
}

func (u *fakeUploader) Upload(_ context.Context, ref string) (string, error) {
	u.refs = append(u.refs, ref)
	return "ipfs://bafkreigh2akiscaildc", nil
}

type fixture struct {
	gw       *chaintest.Gateway
	store    *memory.Store
	svc      orchestrator.Service
	uploader *fakeUploader
	from     common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	encrypted, err := chain.EncryptKey(key, passphrase, keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)

	from := chain.AddressOf(key)
	st := memory.New()
	require.NoError(t, st.CreateWallet(ctx, &entity.Wallet{
		TeamID:            teamID,
		Address:           from.Hex(),
		EncryptedKeystore: encrypted,
	}))

	gw := chaintest.NewGateway(11155111)
	gw.SetBalance(from, big.NewInt(1e18))
	registry := chain.NewRegistry(map[string]chain.Gateway{network: gw})
	p := pipeline.New(registry, st, config.PipelineConfig{
		ReceiptTimeout:      time.Second,
		ReceiptPollInterval: 5 * time.Millisecond,
	}, zap.NewNop())

	uploader := &fakeUploader{}
	svc := orchestrator.New(st, p, registry, passphrase, zap.NewNop(), orchestrator.WithUploader(uploader))
	return &fixture{
		gw:       gw,
		store:    st,
		svc:      orchestrator.NewLog(svc, zap.NewNop()),
		uploader: uploader,
		from:     from,
	}
}

func (f *fixture) deploy(t *testing.T, metadata map[string]any) *orchestrator.DeployResult {
	t.Helper()
	res, err := f.svc.Deploy(context.Background(), &orchestrator.DeployRequest{
		Network:         network,
		TeamID:          teamID,
		Name:            "Collection",
		ABI:             collectionABI,
		Bytecode:        bytecode,
		ConstructorArgs: "Collection:10000",
		Execute:         true,
		Metadata:        metadata,
	})
	require.NoError(t, err)
	return res
}

func TestDeploy_ProcessesContractAndMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.deploy(t, map[string]any{"name": "Collection", "image": "./art/cover.png"})

	require.Equal(t, entity.StatusProcessed, res.Status)
	require.NotEmpty(t, res.TxHash)
	require.Equal(t, string(entity.StatusProcessed), res.ContractStatus)
	require.Equal(t, crypto.CreateAddress(f.from, 0).Hex(), res.ContractAddress)

	contract, err := f.store.GetContract(ctx, res.ContractID)
	require.NoError(t, err)
	require.Equal(t, res.TransactionID, *contract.TransactionID)
	require.Equal(t, "Collection", contract.DeployPayload.Name)
	require.NotNil(t, contract.MetadataID)

	metadata, err := f.store.GetMetadata(ctx, *contract.MetadataID)
	require.NoError(t, err)
	require.Equal(t, entity.MetadataCommon, metadata.Type())
	require.Equal(t, "ipfs://bafkreigh2akiscaildc", metadata.Fields["image"])
	require.Equal(t, []string{"./art/cover.png"}, f.uploader.refs)

	tx, err := f.store.GetTransaction(ctx, res.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, tx.WalletID)
	require.Equal(t, contract.WalletID, *tx.WalletID)

	// creation data is bytecode followed by the packed constructor
	sent := f.gw.Sent()
	require.Len(t, sent, 1)
	require.Nil(t, sent[0].To())
	require.True(t, strings.HasPrefix(common.Bytes2Hex(sent[0].Data()), strings.TrimPrefix(bytecode, "0x")))
}

func TestDeploy_DryRunWithoutWallet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Deploy(ctx, &orchestrator.DeployRequest{
		Network:         network,
		From:            f.from.Hex(),
		Name:            "Collection",
		ABI:             collectionABI,
		Bytecode:        bytecode,
		ConstructorArgs: "Collection:10000",
	})
	require.NoError(t, err)
	require.Zero(t, res.TransactionID)
	require.Zero(t, res.ContractID)
	require.Equal(t, "100000000000000", res.Estimate.Commission)

	txs, err := f.store.ListTransactions(ctx)
	require.NoError(t, err)
	require.Empty(t, txs)
	require.Empty(t, f.gw.Sent())
}

func TestDeploy_ExecuteWithoutWallet(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Deploy(context.Background(), &orchestrator.DeployRequest{
		Network:         network,
		TeamID:          "team-without-wallet",
		Name:            "Collection",
		ABI:             collectionABI,
		Bytecode:        bytecode,
		ConstructorArgs: "Collection:1",
		Execute:         true,
	})
	require.ErrorIs(t, err, orchestrator.ErrWalletNotFound)
	require.True(t, apperrors.Is(err, apperrors.CategoryResourceNotFound))
}

func TestDeploy_ValidationErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  orchestrator.DeployRequest
		is   error
	}{
		{
			name: "missing network",
			req:  orchestrator.DeployRequest{TeamID: teamID, Name: "C", ABI: collectionABI, Bytecode: bytecode},
		},
		{
			name: "bytecode is not hex",
			req:  orchestrator.DeployRequest{Network: network, TeamID: teamID, Name: "C", ABI: collectionABI, Bytecode: "not-hex"},
		},
		{
			name: "abi is not json",
			req:  orchestrator.DeployRequest{Network: network, TeamID: teamID, Name: "C", ABI: "[{", Bytecode: bytecode},
		},
		{
			name: "constructor arity",
			req: orchestrator.DeployRequest{
				Network: network, TeamID: teamID, Name: "C", ABI: collectionABI, Bytecode: bytecode,
				ConstructorArgs: "Collection",
			},
			is: orchestrator.ErrArgumentArityMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Deploy(context.Background(), &tt.req)
			require.Error(t, err)
			require.True(t, apperrors.Is(err, apperrors.CategoryDataError))
			if tt.is != nil {
				require.ErrorIs(t, err, tt.is)
			}
		})
	}
	require.Empty(t, f.gw.Sent())
}

func TestDeploy_SubmitFailureCreatesNothing(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	submitter := mocks.NewSubmitter(t)
	submitter.EXPECT().
		Submit(ctx, mock.AnythingOfType("pipeline.Options")).
		Return(nil, apperrors.InsufficientFundsError(pipeline.ErrInsufficientBalance, "insufficient balance")).
		Once()

	svc := orchestrator.New(st, submitter, chain.NewRegistry(nil), passphrase, zap.NewNop())
	_, err := svc.Deploy(ctx, &orchestrator.DeployRequest{
		Network:         network,
		From:            alice.Hex(),
		Name:            "Collection",
		ABI:             collectionABI,
		Bytecode:        bytecode,
		ConstructorArgs: "Collection:1",
	})
	require.ErrorIs(t, err, pipeline.ErrInsufficientBalance)
	require.True(t, apperrors.Is(err, apperrors.CategoryInsufficientFunds))

	_, err = st.GetContract(ctx, 1)
	require.Error(t, err)
}

func TestMint_ReferencesCommonMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	deployed := f.deploy(t, map[string]any{"name": "Collection", "image": "cover.png"})

	res, err := f.svc.Mint(ctx, &orchestrator.MintRequest{
		TeamID:     teamID,
		ContractID: deployed.ContractID,
		Method:     "mint",
		Args:       alice.Hex() + ":[]",
		NFTNumber:  7,
		Execute:    true,
	})
	require.NoError(t, err)
	require.Equal(t, entity.StatusProcessed, res.Status)
	require.Equal(t, deployed.MetadataID, res.MetadataID)

	token, err := f.store.GetToken(ctx, res.TokenID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusProcessed, token.Status)
	require.Equal(t, int64(0), *token.SequenceNumber)
	require.Equal(t, int64(7), token.NFTNumber)
	require.Equal(t, res.TxHash, token.TxHash)
	require.Equal(t, "mint", token.MintPayload.Method)

	sent := f.gw.Sent()
	require.Len(t, sent, 2)
	require.Equal(t, common.HexToAddress(deployed.ContractAddress), *sent[1].To())
}

func TestMint_OverridesCopyOnWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	deployed := f.deploy(t, map[string]any{"name": "Collection", "description": "shared"})

	res, err := f.svc.Mint(ctx, &orchestrator.MintRequest{
		TeamID:     teamID,
		ContractID: deployed.ContractID,
		Method:     "mint",
		Args:       alice.Hex() + ":[]",
		Execute:    true,
		Metadata:   map[string]any{"name": "Token #1", "rarity": "legendary"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.MetadataID)
	require.NotEqual(t, *deployed.MetadataID, *res.MetadataID)

	specified, err := f.store.GetTokenMetadata(ctx, res.TokenID)
	require.NoError(t, err)
	require.Equal(t, entity.MetadataSpecified, specified.Type())
	require.Equal(t, "Token #1", specified.Fields["name"])
	require.Equal(t, "shared", specified.Fields["description"])
	require.NotContains(t, specified.Fields, "rarity")

	// the shared record is untouched
	shared, err := f.store.GetMetadata(ctx, *deployed.MetadataID)
	require.NoError(t, err)
	require.Equal(t, "Collection", shared.Fields["name"])
}

func TestMint_ArityMismatchCreatesNoToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	deployed := f.deploy(t, nil)

	_, err := f.svc.Mint(ctx, &orchestrator.MintRequest{
		TeamID:     teamID,
		ContractID: deployed.ContractID,
		Method:     "mint",
		Args:       alice.Hex(),
		Execute:    true,
	})
	require.ErrorIs(t, err, orchestrator.ErrArgumentArityMismatch)
	require.True(t, apperrors.Is(err, apperrors.CategoryDataError))

	created, err := f.store.CountTokens(ctx, deployed.ContractID, entity.StatusCreated)
	require.NoError(t, err)
	require.Zero(t, created)
	txs, err := f.store.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestMint_ContractErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Mint(ctx, &orchestrator.MintRequest{TeamID: teamID, ContractID: 404, Method: "mint"})
	require.ErrorIs(t, err, orchestrator.ErrContractNotFound)
	require.True(t, apperrors.Is(err, apperrors.CategoryResourceNotFound))

	deployed := f.deploy(t, nil)
	_, err = f.svc.Mint(ctx, &orchestrator.MintRequest{
		Network:    "mainnet",
		TeamID:     teamID,
		ContractID: deployed.ContractID,
		Method:     "mint",
	})
	require.True(t, apperrors.Is(err, apperrors.CategoryDataError))

	_, err = f.svc.Mint(ctx, &orchestrator.MintRequest{TeamID: teamID, ContractID: deployed.ContractID, Method: "burn"})
	require.True(t, apperrors.Is(err, apperrors.CategoryDataError))
}

func TestMint_RevertLeavesTokenCreated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	deployed := f.deploy(t, nil)

	f.gw.Revert(true)
	_, err := f.svc.Mint(ctx, &orchestrator.MintRequest{
		TeamID:     teamID,
		ContractID: deployed.ContractID,
		Method:     "mint",
		Args:       alice.Hex() + ":[]",
		Execute:    true,
	})
	require.ErrorIs(t, err, pipeline.ErrTransactionReverted)

	created, err := f.store.CountTokens(ctx, deployed.ContractID, entity.StatusCreated)
	require.NoError(t, err)
	require.Equal(t, int64(1), created)
}

func TestWhitelistAdd_RootAndProofs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	deployed := f.deploy(t, nil)

	res, err := f.svc.WhitelistAdd(ctx, &orchestrator.WhitelistRequest{
		TeamID:     teamID,
		ContractID: deployed.ContractID,
		Addresses:  strings.ToLower(alice.Hex()) + ", " + bob.Hex(),
		Execute:    true,
	})
	require.NoError(t, err)
	require.Equal(t, entity.StatusProcessed, res.Status)

	root := merkle.Root([]common.Address{alice, bob})
	require.Equal(t, root.Hex(), res.Root)
	require.ElementsMatch(t, []string{alice.Hex(), bob.Hex()}, res.Addresses)
	for _, addr := range []common.Address{alice, bob} {
		var proof []common.Hash
		for _, p := range res.Proofs[addr.Hex()] {
			proof = append(proof, common.HexToHash(p))
		}
		require.True(t, merkle.Verify(proof, root, merkle.Leaf(addr)), addr.Hex())
	}

	for _, e := range f.store.WhitelistEntries(deployed.ContractID) {
		require.Equal(t, entity.StatusProcessed, e.Status)
	}

	// setMerkleRoot(root) went to the contract
	sent := f.gw.Sent()
	data := sent[len(sent)-1].Data()
	require.Equal(t, crypto.Keccak256([]byte("setMerkleRoot(bytes32)"))[:4], data[:4])
	require.Equal(t, root.Bytes(), data[4:])
}

func TestWhitelistAdd_OnlyNewAddresses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	deployed := f.deploy(t, nil)

	req := &orchestrator.WhitelistRequest{
		TeamID:     teamID,
		ContractID: deployed.ContractID,
		Addresses:  alice.Hex(),
		Execute:    true,
	}
	_, err := f.svc.WhitelistAdd(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.WhitelistAdd(ctx, req)
	require.ErrorIs(t, err, orchestrator.ErrAllAddressesExist)
	require.True(t, apperrors.Is(err, apperrors.CategoryDataConflict))

	req.Addresses = alice.Hex() + "," + carol.Hex()
	res, err := f.svc.WhitelistAdd(ctx, req)
	require.NoError(t, err)
	require.Equal(t, []string{carol.Hex()}, res.Addresses)
	require.Equal(t, merkle.Root([]common.Address{alice, carol}).Hex(), res.Root)
	require.Len(t, f.store.WhitelistEntries(deployed.ContractID), 2)
}

func TestWhitelistAdd_InvalidAddress(t *testing.T) {
	f := newFixture(t)
	deployed := f.deploy(t, nil)

	_, err := f.svc.WhitelistAdd(context.Background(), &orchestrator.WhitelistRequest{
		TeamID:     teamID,
		ContractID: deployed.ContractID,
		Addresses:  "0x1234",
	})
	require.ErrorIs(t, err, merkle.ErrInvalidAddress)
	require.True(t, apperrors.Is(err, apperrors.CategoryDataError))
}

func TestWhitelistAdd_DryRunPersistsNothing(t *testing.T) {
	f := newFixture(t)
	deployed := f.deploy(t, nil)

	res, err := f.svc.WhitelistAdd(context.Background(), &orchestrator.WhitelistRequest{
		TeamID:     teamID,
		ContractID: deployed.ContractID,
		Addresses:  alice.Hex(),
	})
	require.NoError(t, err)
	require.Zero(t, res.TransactionID)
	require.NotEmpty(t, res.Proofs)
	require.Empty(t, f.store.WhitelistEntries(deployed.ContractID))
}

func TestWhitelistRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	deployed := f.deploy(t, nil)

	_, err := f.svc.WhitelistAdd(ctx, &orchestrator.WhitelistRequest{
		TeamID:     teamID,
		ContractID: deployed.ContractID,
		Addresses:  alice.Hex() + "," + bob.Hex() + "," + carol.Hex(),
		Execute:    true,
	})
	require.NoError(t, err)

	res, err := f.svc.WhitelistRemove(ctx, &orchestrator.WhitelistRequest{
		TeamID:     teamID,
		ContractID: deployed.ContractID,
		Addresses:  bob.Hex(),
		Execute:    true,
	})
	require.NoError(t, err)
	require.Equal(t, []string{bob.Hex()}, res.Addresses)
	require.Equal(t, merkle.Root([]common.Address{alice, carol}).Hex(), res.Root)

	active, err := f.store.ListActiveAddresses(ctx, deployed.ContractID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{alice.Hex(), carol.Hex()}, active)

	_, err = f.svc.WhitelistRemove(ctx, &orchestrator.WhitelistRequest{
		TeamID:     teamID,
		ContractID: deployed.ContractID,
		Addresses:  bob.Hex(),
		Execute:    true,
	})
	require.ErrorIs(t, err, orchestrator.ErrNothingRemoved)
	require.True(t, apperrors.Is(err, apperrors.CategoryResourceNotFound))
}

func TestCall_ViewReturnsOutputs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	deployed := f.deploy(t, nil)

	parsed, err := abi.JSON(strings.NewReader(collectionABI))
	require.NoError(t, err)
	out, err := parsed.Methods["totalSupply"].Outputs.Pack(big.NewInt(42))
	require.NoError(t, err)
	f.gw.SetCallResult(out)

	res, err := f.svc.Call(ctx, &orchestrator.CallRequest{
		ContractID: deployed.ContractID,
		Method:     "totalSupply",
	})
	require.NoError(t, err)
	require.Nil(t, res.Submission)
	require.Equal(t, []any{"42"}, res.Outputs)

	calls := f.gw.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, common.HexToAddress(deployed.ContractAddress), *calls[0].To)
}

func TestCall_WriteGoesThroughPipeline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	deployed := f.deploy(t, nil)

	res, err := f.svc.Call(ctx, &orchestrator.CallRequest{
		TeamID:     teamID,
		ContractID: deployed.ContractID,
		Method:     "pause",
		Execute:    true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Submission)
	require.Equal(t, entity.StatusProcessed, res.Status)

	tx, err := f.store.GetTransaction(ctx, res.TransactionID)
	require.NoError(t, err)
	require.Equal(t, entity.KindCall, tx.Kind)
}

func TestMaterializeTokenMetadata_UpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	base := &entity.Metadata{
		Status: entity.StatusCreated,
		Owner:  entity.CommonOwner{ContractID: 1},
		Fields: map[string]any{"name": "Collection", "level": 1.0},
	}
	require.NoError(t, st.CreateMetadata(ctx, base))
	token := &entity.Token{Status: entity.StatusCreated, ContractID: 1}
	require.NoError(t, st.CreateToken(ctx, token))

	first, err := orchestrator.MaterializeTokenMetadata(ctx, st, token, base, map[string]any{"level": 2.0})
	require.NoError(t, err)

	second, err := orchestrator.MaterializeTokenMetadata(ctx, st, token, base, map[string]any{"name": "Renamed"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	stored, err := st.GetTokenMetadata(ctx, token.ID)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"name": "Renamed", "level": 2.0}, stored.Fields)

	got, err := st.GetToken(ctx, token.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, *got.MetadataID)

	// no base and no record yet
	other := &entity.Token{Status: entity.StatusCreated, ContractID: 1}
	require.NoError(t, st.CreateToken(ctx, other))
	m, err := orchestrator.MaterializeTokenMetadata(ctx, st, other, nil, map[string]any{"name": "x"})
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestRegister_DecodesPayloads(t *testing.T) {
	f := newFixture(t)
	d := newDispatcher(t, f.svc)

	payload, err := json.Marshal(map[string]any{
		"network":          network,
		"team_id":          teamID,
		"name":             "Collection",
		"abi":              collectionABI,
		"bytecode":         bytecode,
		"constructor_args": "Collection:5",
		"execute":          true,
	})
	require.NoError(t, err)

	sub, err := d.Enqueue(context.Background(), entity.KindDeploy, payload)
	require.NoError(t, err)

	var last string
	for e := range sub.Events() {
		last = string(e.State)
		if e.Terminal() {
			require.Empty(t, e.Error)
			require.Contains(t, string(e.Result), `"contract_status":"PROCESSED"`)
		}
	}
	require.Equal(t, string(entity.JobCompleted), last)
}

func newDispatcher(t *testing.T, svc orchestrator.Service) *dispatcher.Dispatcher {
	t.Helper()
	d := dispatcher.New(memory.New(), config.QueueConfig{
		Workers:      1,
		PollInterval: 5 * time.Millisecond,
		JobTimeout:   5 * time.Second,
	}, zap.NewNop())
	orchestrator.Register(d, svc)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})
	return d
}
