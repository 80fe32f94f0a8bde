package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	btypes "vaultsync/blockchain/types"
	"vaultsync/config"
)

// confirmationPollInterval is how often the confirmation watcher re-reads the
// chain head after a receipt is known.
const confirmationPollInterval = 2 * time.Second

// Client is the Ethereum implementation of the ledger client. One Client owns
// one node connection; components receive it through constructor injection.
type Client struct {
	cfg    *config.BlockchainConfig
	ethCfg *EthereumConfig
	logger *logrus.Logger

	eth     *ethclient.Client
	signer  *bind.TransactOpts
	account common.Address

	factoryAddr common.Address
	tokenAddr   common.Address
	factory     *bind.BoundContract
	token       *bind.BoundContract

	confirmations uint64
	timeout       time.Duration
}

// NewClient initializes the Ethereum client with the combined configuration
func NewClient(cfg *config.BlockchainConfig, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
	}

	ethCfg, ok := cfg.ChainSpecific.(*EthereumConfig)
	if !ok {
		return nil, fmt.Errorf("invalid Ethereum configuration type")
	}

	logger.WithField("rpc_url", ethCfg.RPCURL).Info("Connecting to Ethereum node...")
	eth, err := ethclient.Dial(ethCfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial Ethereum node '%s': %w", ethCfg.RPCURL, err)
	}

	keyHex, err := ethCfg.privateKeyHex()
	if err != nil {
		eth.Close()
		return nil, err
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	signer, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(ethCfg.ChainID))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to build transactor for chain %d: %w", ethCfg.ChainID, err)
	}
	if ethCfg.GasLimit > 0 {
		signer.GasLimit = ethCfg.GasLimit
	}

	factoryAddr := common.HexToAddress(ethCfg.VaultFactoryAddress)
	tokenAddr := common.HexToAddress(ethCfg.TokenAddress)

	c := &Client{
		cfg:           cfg,
		ethCfg:        ethCfg,
		logger:        logger,
		eth:           eth,
		signer:        signer,
		account:       crypto.PubkeyToAddress(key.PublicKey),
		factoryAddr:   factoryAddr,
		tokenAddr:     tokenAddr,
		factory:       bind.NewBoundContract(factoryAddr, vaultFactoryABI, eth, eth, eth),
		token:         bind.NewBoundContract(tokenAddr, tokenABI, eth, eth, eth),
		confirmations: cfg.RequiredConfirmations,
		timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	logger.WithFields(logrus.Fields{
		"account": c.account.Hex(),
		"factory": factoryAddr.Hex(),
		"token":   tokenAddr.Hex(),
	}).Info("Ethereum client initialized")

	return c, nil
}

// Account returns the signing account address.
func (c *Client) Account() common.Address {
	return c.account
}

// Close stops the node connection
func (c *Client) Close() error {
	c.logger.Info("Closing Ethereum client...")
	c.eth.Close()
	return nil
}

// CurrentHeight returns the latest block height known to the node.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	height, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read chain head: %w", err)
	}
	return height, nil
}

// VaultAddress returns the deployed vault for owner, or the zero address.
func (c *Client) VaultAddress(ctx context.Context, owner common.Address) (common.Address, error) {
	var out []interface{}
	if err := c.callContract(ctx, c.factory, &out, "vaultOf", owner); err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("vaultOf returned unexpected type %T", out[0])
	}
	return addr, nil
}

// IsOwnerRegistered reports whether owner is active in the registry.
func (c *Client) IsOwnerRegistered(ctx context.Context, owner common.Address) (bool, error) {
	var out []interface{}
	if err := c.callContract(ctx, c.token, &out, "isActiveOwner", owner); err != nil {
		return false, err
	}
	active, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("isActiveOwner returned unexpected type %T", out[0])
	}
	return active, nil
}

// AccessPrice returns the configured vault access price, or nil when the
// owner never opened paid access (on-chain zero).
func (c *Client) AccessPrice(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out []interface{}
	if err := c.callContract(ctx, c.token, &out, "accessPrice", owner); err != nil {
		return nil, err
	}
	price, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("accessPrice returned unexpected type %T", out[0])
	}
	if price.Sign() == 0 {
		return nil, nil
	}
	return price, nil
}

// HasAccess reports whether viewer holds a paid grant for owner's vault.
func (c *Client) HasAccess(ctx context.Context, viewer, owner common.Address) (bool, error) {
	var out []interface{}
	if err := c.callContract(ctx, c.token, &out, "hasAccess", viewer, owner); err != nil {
		return false, err
	}
	granted, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("hasAccess returned unexpected type %T", out[0])
	}
	return granted, nil
}

// TokenSymbol returns the display symbol of the payment token.
func (c *Client) TokenSymbol(ctx context.Context) (string, error) {
	var out []interface{}
	if err := c.callContract(ctx, c.token, &out, "symbol"); err != nil {
		return "", err
	}
	symbol, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("symbol returned unexpected type %T", out[0])
	}
	return symbol, nil
}

// VaultDeposit returns the deposit locked on vault creation.
func (c *Client) VaultDeposit(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := c.callContract(ctx, c.token, &out, "vaultDeposit"); err != nil {
		return nil, err
	}
	deposit, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("vaultDeposit returned unexpected type %T", out[0])
	}
	return deposit, nil
}

// PastVaultEvents replays document events of a vault over [from, to].
func (c *Client) PastVaultEvents(ctx context.Context, vault common.Address, from, to uint64) ([]btypes.Event, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{vault},
	}
	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query past vault events: %w", err)
	}

	events := make([]btypes.Event, 0, len(logs))
	for _, lg := range logs {
		ev, ok := c.decodeVaultLog(lg)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// SubscribeVaultEvents establishes a live subscription and captures the
// boundary height immediately after, before any replay query is issued.
// Events at or below the boundary belong to replay; the overlap between both
// channels is resolved by order-key deduplication downstream.
func (c *Client) SubscribeVaultEvents(ctx context.Context, vault common.Address) (<-chan btypes.Event, uint64, error) {
	query := ethereum.FilterQuery{Addresses: []common.Address{vault}}
	logs := make(chan types.Log, 64)
	sub, err := c.eth.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to subscribe to vault events: %w", err)
	}

	boundary, err := c.eth.BlockNumber(ctx)
	if err != nil {
		sub.Unsubscribe()
		return nil, 0, fmt.Errorf("failed to read boundary height: %w", err)
	}

	out := make(chan btypes.Event, 64)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					c.logger.WithError(err).Warn("Vault event subscription dropped")
				}
				return
			case lg := <-logs:
				ev, ok := c.decodeVaultLog(lg)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, boundary, nil
}

// SubscribeVaultCreated subscribes to creation events for a single owner.
func (c *Client) SubscribeVaultCreated(ctx context.Context, owner common.Address) (<-chan btypes.Event, error) {
	createdID := vaultFactoryABI.Events["VaultCreated"].ID
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.factoryAddr},
		Topics:    [][]common.Hash{{createdID}, {common.BytesToHash(owner.Bytes())}},
	}
	logs := make(chan types.Log, 8)
	sub, err := c.eth.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to vault creation events: %w", err)
	}

	out := make(chan btypes.Event, 8)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					c.logger.WithError(err).Warn("Vault creation subscription dropped")
				}
				return
			case lg := <-logs:
				ev, ok := c.decodeFactoryLog(lg)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// CreateVault submits the vault creation transaction.
func (c *Client) CreateVault(ctx context.Context) (<-chan btypes.TxUpdate, error) {
	return c.send(ctx, c.factory, "createVault")
}

// AddDocument registers a document under its on-chain ID.
func (c *Client) AddDocument(ctx context.Context, id btypes.DocumentID, description string, keywords []string) (<-chan btypes.TxUpdate, error) {
	vault, err := c.boundVault(ctx)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, vault, "addDocument", [32]byte(id), description, keywords)
}

// RemoveDocument tombstones a document.
func (c *Client) RemoveDocument(ctx context.Context, id btypes.DocumentID) (<-chan btypes.TxUpdate, error) {
	vault, err := c.boundVault(ctx)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, vault, "removeDocument", [32]byte(id))
}

// AddKeyword appends a keyword to an existing document.
func (c *Client) AddKeyword(ctx context.Context, id btypes.DocumentID, keyword string) (<-chan btypes.TxUpdate, error) {
	vault, err := c.boundVault(ctx)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, vault, "addKeyword", [32]byte(id), keyword)
}

// SetAccessPrice opens paid access at the given token price.
func (c *Client) SetAccessPrice(ctx context.Context, price *big.Int) (<-chan btypes.TxUpdate, error) {
	return c.send(ctx, c.token, "setAccessPrice", price)
}

// RequestAccess pays the configured price for access to owner's vault.
func (c *Client) RequestAccess(ctx context.Context, owner common.Address, price *big.Int) (<-chan btypes.TxUpdate, error) {
	return c.send(ctx, c.token, "requestAccess", owner, price)
}

// boundVault resolves the signing account's vault contract.
func (c *Client) boundVault(ctx context.Context) (*bind.BoundContract, error) {
	addr, err := c.VaultAddress(ctx, c.account)
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("account %s has no deployed vault", c.account.Hex())
	}
	return bind.NewBoundContract(addr, vaultABI, c.eth, c.eth, c.eth), nil
}

// callContract performs a read-only call with the configured timeout.
func (c *Client) callContract(ctx context.Context, contract *bind.BoundContract, out *[]interface{}, method string, params ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := contract.Call(&bind.CallOpts{Context: ctx}, out, method, params...); err != nil {
		return fmt.Errorf("contract call %s failed: %w", method, err)
	}
	if len(*out) == 0 {
		return fmt.Errorf("contract call %s returned no values", method)
	}
	return nil
}

// send submits a state-changing transaction and streams its progress. A
// submission rejected by the node is returned as an error; everything after
// the hash acknowledgement is reported in-stream.
func (c *Client) send(ctx context.Context, contract *bind.BoundContract, method string, params ...interface{}) (<-chan btypes.TxUpdate, error) {
	opts := *c.signer
	opts.Context = ctx

	tx, err := contract.Transact(&opts, method, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s: %w", method, err)
	}

	updates := make(chan btypes.TxUpdate, 4)
	updates <- btypes.TxUpdate{Stage: btypes.StageSubmitted, TxHash: tx.Hash()}
	c.logger.WithFields(logrus.Fields{"method": method, "tx": tx.Hash().Hex()}).Info("Transaction submitted")

	go c.watchTx(ctx, method, tx, updates)
	return updates, nil
}

// watchTx drives a submitted transaction through received and confirmed, or
// reports the failure in-stream.
func (c *Client) watchTx(ctx context.Context, method string, tx *types.Transaction, updates chan<- btypes.TxUpdate) {
	defer close(updates)

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		updates <- btypes.TxUpdate{Stage: btypes.StageFailed, TxHash: tx.Hash(), Err: fmt.Errorf("waiting for %s receipt: %w", method, err)}
		return
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		updates <- btypes.TxUpdate{Stage: btypes.StageFailed, TxHash: tx.Hash(), Height: receipt.BlockNumber.Uint64(), Err: fmt.Errorf("%s reverted in block %d", method, receipt.BlockNumber.Uint64())}
		return
	}

	minedAt := receipt.BlockNumber.Uint64()
	updates <- btypes.TxUpdate{Stage: btypes.StageReceived, TxHash: tx.Hash(), Height: minedAt}

	ticker := time.NewTicker(confirmationPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			updates <- btypes.TxUpdate{Stage: btypes.StageFailed, TxHash: tx.Hash(), Height: minedAt, Err: ctx.Err()}
			return
		case <-ticker.C:
			head, err := c.eth.BlockNumber(ctx)
			if err != nil {
				c.logger.WithError(err).Warn("Failed to read chain head while confirming")
				continue
			}
			if head < minedAt {
				continue
			}
			confs := head - minedAt + 1
			if confs >= c.confirmations {
				updates <- btypes.TxUpdate{Stage: btypes.StageConfirmed, TxHash: tx.Hash(), Height: minedAt, Confirmations: confs}
				c.logger.WithFields(logrus.Fields{"method": method, "tx": tx.Hash().Hex(), "confirmations": confs}).Info("Transaction confirmed")
				return
			}
		}
	}
}

// decodeVaultLog converts a raw vault contract log into a typed event.
func (c *Client) decodeVaultLog(lg types.Log) (btypes.Event, bool) {
	if lg.Removed || len(lg.Topics) == 0 {
		return btypes.Event{}, false
	}

	ev := btypes.Event{Height: lg.BlockNumber, LogIndex: lg.Index, Vault: lg.Address}

	switch lg.Topics[0] {
	case vaultABI.Events["DocumentAdded"].ID:
		if len(lg.Topics) < 2 {
			return btypes.Event{}, false
		}
		ev.Kind = btypes.DocumentAdded
		ev.DocID = btypes.DocumentID(lg.Topics[1])
		vals, err := vaultABI.Unpack("DocumentAdded", lg.Data)
		if err != nil || len(vals) < 1 {
			c.logger.WithError(err).Warn("Undecodable DocumentAdded event, skipping")
			return btypes.Event{}, false
		}
		ev.Description, _ = vals[0].(string)

	case vaultABI.Events["DocumentRemoved"].ID:
		if len(lg.Topics) < 2 {
			return btypes.Event{}, false
		}
		ev.Kind = btypes.DocumentRemoved
		ev.DocID = btypes.DocumentID(lg.Topics[1])

	case vaultABI.Events["KeywordAdded"].ID:
		if len(lg.Topics) < 2 {
			return btypes.Event{}, false
		}
		ev.Kind = btypes.KeywordAdded
		ev.DocID = btypes.DocumentID(lg.Topics[1])
		vals, err := vaultABI.Unpack("KeywordAdded", lg.Data)
		if err != nil || len(vals) < 2 {
			c.logger.WithError(err).Warn("Undecodable KeywordAdded event, skipping")
			return btypes.Event{}, false
		}
		ev.Keyword, _ = vals[0].(string)
		ev.KeywordIndex, _ = vals[1].(uint32)

	default:
		return btypes.Event{}, false
	}

	return ev, true
}

// decodeFactoryLog converts a raw factory log into a typed creation event.
func (c *Client) decodeFactoryLog(lg types.Log) (btypes.Event, bool) {
	if lg.Removed || len(lg.Topics) < 2 || lg.Topics[0] != vaultFactoryABI.Events["VaultCreated"].ID {
		return btypes.Event{}, false
	}
	vals, err := vaultFactoryABI.Unpack("VaultCreated", lg.Data)
	if err != nil || len(vals) < 1 {
		c.logger.WithError(err).Warn("Undecodable VaultCreated event, skipping")
		return btypes.Event{}, false
	}
	vault, _ := vals[0].(common.Address)
	return btypes.Event{
		Kind:     btypes.VaultCreated,
		Height:   lg.BlockNumber,
		LogIndex: lg.Index,
		Owner:    common.BytesToAddress(lg.Topics[1].Bytes()),
		Vault:    vault,
	}, true
}
