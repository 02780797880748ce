package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mcryptoex/tempo/internal/config"
	"github.com/mcryptoex/tempo/internal/notes"
	"github.com/mcryptoex/tempo/internal/registry"
)

// Event signature topics watched on pair and stabilizer contracts.
var (
	swapTopic       = crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)"))
	mintTopic       = crypto.Keccak256Hash([]byte("Mint(address,uint256,uint256)"))
	burnTopic       = crypto.Keccak256Hash([]byte("Burn(address,uint256,uint256,address)"))
	noteMintedTopic = crypto.Keccak256Hash([]byte("NoteMinted(address,address,uint256,uint256,uint256,address)"))
	noteBurnedTopic = crypto.Keccak256Hash([]byte("NoteBurned(address,address,uint256,uint256,uint256,address)"))
)

var notesPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tempo_indexer_notes_published_total",
		Help: "Raw notes published by the chain indexer.",
	},
	[]string{"action", "chain_id", "source"},
)

// ethBackend is the slice of ethclient.Client the indexer uses.
type ethBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// publisher is satisfied by stream.Producer.
type publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, correlationID string) error
}

// Indexer polls one chain's block ranges and publishes decoded raw notes.
type Indexer struct {
	settings Settings
	topics   config.TopicSettings
	loader   *registry.Loader
	producer publisher
	eth      ethBackend
	log      *slog.Logger

	// cursor is the next block to scan; -1 means "start at confirmed head".
	cursor int64

	pairMeta  map[common.Address]pairMeta
	tokenMeta map[common.Address]tokenMeta
	txCost    map[common.Hash]gasMetrics
	blockTime map[int64]time.Time

	lastSimulatedAt      time.Time
	lastRegistryRefresh  time.Time
	registryRefreshForce bool
}

// New creates an indexer. eth may be nil when no RPC URL is configured; the
// loop then runs in idle/simulation mode.
func New(
	settings Settings,
	topics config.TopicSettings,
	loader *registry.Loader,
	producer publisher,
	eth ethBackend,
	log *slog.Logger,
) *Indexer {
	return &Indexer{
		settings:  settings,
		topics:    topics,
		loader:    loader,
		producer:  producer,
		eth:       eth,
		log:       log,
		cursor:    settings.StartBlock,
		pairMeta:  make(map[common.Address]pairMeta),
		tokenMeta: make(map[common.Address]tokenMeta),
		txCost:    make(map[common.Hash]gasMetrics),
		blockTime: make(map[int64]time.Time),
	}
}

// Run polls until the context is cancelled. Poll failures are logged and
// retried on the next tick; the cursor only advances after a fully
// successful range scan.
func (ix *Indexer) Run(ctx context.Context) error {
	ix.log.Info("indexer starting",
		"chain_key", ix.settings.ChainKey,
		"chain_id", ix.settings.ChainID,
		"pair_count", len(ix.settings.PairAddresses),
		"stabilizer_count", len(ix.settings.StabilizerAddresses),
		"simulation", ix.settings.EnableSimulation,
	)
	if ix.eth == nil {
		ix.log.Info("no rpc backend configured; running in idle/simulation mode")
	}

	interval := time.Duration(ix.settings.PollIntervalSeconds) * time.Second
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ix.refreshRegistryWatchlists()

		if ix.eth != nil && (len(ix.settings.PairAddresses) > 0 || len(ix.settings.StabilizerAddresses) > 0) {
			if err := ix.pollOnce(ctx); err != nil {
				ix.log.Error("poll failed", "error", err)
			}
		}
		ix.maybeEmitSimulatedNote(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// refreshRegistryWatchlists re-reads the registry watchlists unless the
// operator pinned them through the environment.
func (ix *Indexer) refreshRegistryWatchlists() {
	if ix.settings.PairAddressesOverridden && ix.settings.StabilizerAddressesOverridden {
		return
	}
	if ix.settings.RegistryRefreshSeconds <= 0 && !ix.registryRefreshForce {
		return
	}
	refreshEvery := time.Duration(ix.settings.RegistryRefreshSeconds) * time.Second
	if !ix.registryRefreshForce && time.Since(ix.lastRegistryRefresh) < refreshEvery {
		return
	}
	ix.lastRegistryRefresh = time.Now()
	ix.registryRefreshForce = false

	snap := ix.loader.Snapshot()
	chain := snap.ChainByKey(ix.settings.ChainKey)
	if chain == nil {
		return
	}

	if !ix.settings.PairAddressesOverridden {
		pairs := normalizeAddresses(chain.Indexer.PairAddresses)
		if !sameAddressList(pairs, ix.settings.PairAddresses) {
			ix.log.Info("updating pair watchlist",
				"chain_key", ix.settings.ChainKey,
				"old", len(ix.settings.PairAddresses),
				"new", len(pairs),
			)
			ix.settings.PairAddresses = pairs
			ix.pairMeta = make(map[common.Address]pairMeta)
		}
	}

	if !ix.settings.StabilizerAddressesOverridden {
		stabilizers := normalizeAddresses(chain.Indexer.StabilizerAddresses)
		if !sameAddressList(stabilizers, ix.settings.StabilizerAddresses) {
			ix.log.Info("updating stabilizer watchlist",
				"chain_key", ix.settings.ChainKey,
				"old", len(ix.settings.StabilizerAddresses),
				"new", len(stabilizers),
			)
			ix.settings.StabilizerAddresses = stabilizers
		}
	}
}

func sameAddressList(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// pollOnce scans the next confirmed block range. The range is capped at 100
// blocks per pass so a cold start catches up incrementally.
func (ix *Indexer) pollOnce(ctx context.Context) error {
	head, err := ix.eth.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("block number: %w", err)
	}

	latest := int64(head) - ix.settings.ConfirmationDepth
	if latest < 0 {
		return nil
	}

	if ix.cursor < 0 {
		ix.cursor = latest
	}
	if ix.cursor > latest {
		return nil
	}

	fromBlock := ix.cursor
	toBlock := fromBlock + 100
	if toBlock > latest {
		toBlock = latest
	}

	if len(ix.settings.PairAddresses) > 0 {
		if err := ix.pollPairEvents(ctx, fromBlock, toBlock); err != nil {
			return err
		}
	}
	if len(ix.settings.StabilizerAddresses) > 0 {
		if err := ix.pollStabilizerEvents(ctx, fromBlock, toBlock); err != nil {
			return err
		}
	}

	ix.cursor = toBlock + 1
	return nil
}

func toAddresses(values []string) []common.Address {
	out := make([]common.Address, 0, len(values))
	for _, value := range values {
		out = append(out, common.HexToAddress(value))
	}
	return out
}

func (ix *Indexer) pollPairEvents(ctx context.Context, fromBlock, toBlock int64) error {
	logs, err := ix.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: toAddresses(ix.settings.PairAddresses),
		Topics:    [][]common.Hash{{swapTopic, mintTopic, burnTopic}},
	})
	if err != nil {
		return fmt.Errorf("filter pair logs [%d,%d]: %w", fromBlock, toBlock, err)
	}

	for i := range logs {
		entry := &logs[i]
		if len(entry.Topics) == 0 {
			continue
		}
		switch entry.Topics[0] {
		case swapTopic:
			err = ix.handleSwapLog(ctx, entry)
		case mintTopic:
			err = ix.handleLiquidityAddLog(ctx, entry)
		case burnTopic:
			err = ix.handleLiquidityRemoveLog(ctx, entry)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (ix *Indexer) pollStabilizerEvents(ctx context.Context, fromBlock, toBlock int64) error {
	logs, err := ix.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: toAddresses(ix.settings.StabilizerAddresses),
		Topics:    [][]common.Hash{{noteMintedTopic, noteBurnedTopic}},
	})
	if err != nil {
		return fmt.Errorf("filter stabilizer logs [%d,%d]: %w", fromBlock, toBlock, err)
	}

	for i := range logs {
		entry := &logs[i]
		if len(entry.Topics) == 0 {
			continue
		}
		switch entry.Topics[0] {
		case noteMintedTopic:
			err = ix.handleMUSDMintLog(ctx, entry)
		case noteBurnedTopic:
			err = ix.handleMUSDBurnLog(ctx, entry)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// maybeEmitSimulatedNote publishes one synthetic SWAP note per interval so
// downstream stages can be exercised without a live chain.
func (ix *Indexer) maybeEmitSimulatedNote(ctx context.Context) {
	if !ix.settings.EnableSimulation {
		return
	}
	if time.Since(ix.lastSimulatedAt) < time.Duration(ix.settings.SimulationInterval)*time.Second {
		return
	}
	ix.lastSimulatedAt = time.Now()

	txHash := fmt.Sprintf("0x%x%x", [16]byte(uuid.New()), [16]byte(uuid.New()))
	noteID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("sim:%d:%s", ix.settings.ChainID, txHash))).String()
	correlationID := uuid.NewString()

	note := notes.RawNote{
		NoteID:             noteID,
		CorrelationID:      correlationID,
		ChainID:            ix.settings.ChainID,
		TxHash:             txHash,
		Action:             notes.ActionSwap,
		UserAddress:        "0x00000000000000000000000000000000000000AA",
		PoolAddress:        "0x00000000000000000000000000000000000000BB",
		TokenIn:            "mUSD",
		TokenOut:           "WETH",
		AmountIn:           "100.0",
		AmountOut:          "0.03",
		FeeUSD:             "0.3",
		GasUsed:            "117104",
		GasCostUSD:         "0.22",
		ProtocolRevenueUSD: "0.12",
		BlockNumber:        0,
		OccurredAt:         time.Now().UTC(),
		Source:             notes.SourceSimulation,
	}

	if err := ix.publishNote(ctx, &note); err != nil {
		ix.log.Error("simulated note publish failed", "error", err)
		return
	}
	ix.log.Info("simulated raw note published", "note_id", noteID)
}

// publishNote serializes and publishes one raw note keyed by note_id.
func (ix *Indexer) publishNote(ctx context.Context, note *notes.RawNote) error {
	payload, err := note.Marshal()
	if err != nil {
		return fmt.Errorf("marshal raw note: %w", err)
	}
	if err := ix.producer.Publish(ctx, ix.topics.Raw, []byte(note.NoteID), payload, note.CorrelationID); err != nil {
		return err
	}
	notesPublishedTotal.WithLabelValues(note.Action, fmt.Sprintf("%d", note.ChainID), note.Source).Inc()
	ix.log.Info("raw note published",
		"action", note.Action,
		"note_id", note.NoteID,
		"tx_hash", note.TxHash,
		"block", note.BlockNumber,
	)
	return nil
}

// NoteID derives the deterministic raw-note id for an on-chain log.
func NoteID(chainID int64, txHash string, logIndex uint, action string) string {
	name := fmt.Sprintf("%d:%s:%d:%s", chainID, txHash, logIndex, action)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
