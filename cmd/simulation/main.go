package main

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/chain-engine/internal/chain"
	"github.com/ksred/chain-engine/internal/contracts"
	"github.com/ksred/chain-engine/internal/database"
	"github.com/ksred/chain-engine/internal/market"
	"github.com/ksred/chain-engine/internal/store"
	"github.com/ksred/chain-engine/internal/tokens"
	"github.com/ksred/chain-engine/internal/types"
)

const (
	numBlocks      = 50
	minTxPerBlock  = 5
	maxTxPerBlock  = 30
	numAccounts    = 10
	randomSeed     = 42
	tradedSymbol   = "SIM"
	issuerAccount  = "chain-owner"
	startingTokens = "10000"
	startingPeg    = "10000"
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// opStats tracks timing statistics for one pipeline operation
type opStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the operation
func (st *opStats) addDuration(d time.Duration) {
	st.durations = append(st.durations, d)
	st.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (st *opStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(st.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(st.durations, func(i, j int) bool {
		return st.durations[i] < st.durations[j]
	})

	min = st.durations[0]
	max = st.durations[len(st.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range st.durations {
		sum += d
	}
	mean = sum / time.Duration(len(st.durations))

	// Calculate median
	median = st.durations[len(st.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(st.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(st.durations))*0.99)) - 1
	p95 = st.durations[p95idx]
	p99 = st.durations[p99idx]

	return
}

// simulation drives the block pipeline directly, without the HTTP layer
type simulation struct {
	service *chain.Service
	store   *store.Store
	rng     *rand.Rand
	refNum  int64
	txSeq   int
	stats   map[string]*opStats
}

func newSimulation() (*simulation, error) {
	db, err := database.NewDatabase(fmt.Sprintf("file:simulation_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		return nil, err
	}

	cfg := chain.DefaultConfig()
	stateStore := store.New(db)
	gateway := contracts.NewGateway(stateStore, cfg.AuthorizedDeployers)

	ledger := tokens.NewLedger(stateStore)
	gateway.SetTokenLedger(ledger)
	gateway.Register(tokens.NewContract(ledger))
	gateway.Register(tokens.NewInflationContract(ledger))
	gateway.Register(market.NewContract())

	return &simulation{
		service: chain.NewService(cfg, stateStore, gateway, db),
		store:   stateStore,
		rng:     rand.New(rand.NewSource(randomSeed)),
		refNum:  1,
		stats: map[string]*opStats{
			"produce":  {name: "Produce Block"},
			"genesis":  {name: "Genesis"},
			"transfer": {name: "Token Transfers"},
			"orders":   {name: "Order Placement"},
		},
	}, nil
}

func (s *simulation) nextInput(txs []*types.Transaction) chain.BlockInput {
	input := chain.BlockInput{
		RefChainBlockNumber: s.refNum,
		RefChainBlockID:     fmt.Sprintf("sim-%d", s.refNum),
		PrevRefChainBlockID: fmt.Sprintf("sim-%d", s.refNum-1),
		Timestamp:           time.Unix(1700000000+s.refNum*3, 0).UTC().Format(types.BlockTimestampLayout),
		Transactions:        txs,
	}
	s.refNum++
	return input
}

func (s *simulation) tx(sender, contract, action, payload string) *types.Transaction {
	s.txSeq++
	return types.NewTransaction(s.refNum, fmt.Sprintf("sim-tx-%d", s.txSeq), sender, contract, action, payload)
}

func (s *simulation) produce(txs []*types.Transaction, stat string) (*types.Block, error) {
	start := time.Now()
	block, err := s.service.ProduceBlock(s.nextInput(txs))
	s.stats[stat].addDuration(time.Since(start))
	if err != nil {
		s.stats[stat].failures++
	}
	return block, err
}

func account(i int) string {
	return fmt.Sprintf("trader%d", i)
}

// bootstrap deploys the contracts, creates the traded token and funds every
// simulated account with both legs.
func (s *simulation) bootstrap() error {
	start := time.Now()
	if _, err := s.service.InitGenesis(s.nextInput(nil)); err != nil {
		return err
	}
	s.stats["genesis"].addDuration(time.Since(start))

	txs := []*types.Transaction{
		s.tx(issuerAccount, "tokens", "create",
			fmt.Sprintf(`{"symbol":%q,"precision":3,"isSignedWithActiveKey":true}`, tradedSymbol)),
	}
	for i := 0; i < numAccounts; i++ {
		txs = append(txs,
			s.tx(issuerAccount, "tokens", "issue",
				fmt.Sprintf(`{"symbol":%q,"to":%q,"quantity":%q,"isSignedWithActiveKey":true}`,
					tradedSymbol, account(i), startingTokens)),
			s.tx(issuerAccount, "tokens", "issue",
				fmt.Sprintf(`{"symbol":"SWAP.PEG","to":%q,"quantity":%q,"isSignedWithActiveKey":true}`,
					account(i), startingPeg)))
	}

	_, err := s.produce(txs, "transfer")
	return err
}

// randomOrders builds a block's worth of random order flow
func (s *simulation) randomOrders() []*types.Transaction {
	count := s.rng.Intn(maxTxPerBlock-minTxPerBlock) + minTxPerBlock
	txs := make([]*types.Transaction, 0, count)

	for i := 0; i < count; i++ {
		trader := account(s.rng.Intn(numAccounts))
		price := fmt.Sprintf("%d.%03d", 1+s.rng.Intn(5), s.rng.Intn(1000))
		quantity := fmt.Sprintf("%d.%03d", 1+s.rng.Intn(50), s.rng.Intn(1000))

		action := "buy"
		if s.rng.Intn(2) == 0 {
			action = "sell"
		}
		txs = append(txs, s.tx(trader, "market", action,
			fmt.Sprintf(`{"symbol":%q,"quantity":%q,"price":%q,"isSignedWithActiveKey":true}`,
				tradedSymbol, quantity, price)))
	}
	return txs
}

// printPerformanceStats outputs formatted timing statistics for the pipeline
func (s *simulation) printPerformanceStats() {
	fmt.Println("\nPipeline Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Operation", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range s.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Microsecond),
			max.Round(time.Microsecond),
			mean.Round(time.Microsecond),
			median.Round(time.Microsecond),
			p95.Round(time.Microsecond),
			p99.Round(time.Microsecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the chain simulation: it bootstraps a fresh chain in memory,
// feeds it random order flow and reports throughput and market state
func main() {
	sim, err := newSimulation()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation")
	}

	if err := sim.bootstrap(); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap chain")
	}
	log.Info().Int("accounts", numAccounts).Str("symbol", tradedSymbol).Msg("Chain bootstrapped")

	totalTxs := 0
	totalEvents := 0
	start := time.Now()

	for i := 0; i < numBlocks; i++ {
		txs := sim.randomOrders()
		block, err := sim.produce(txs, "orders")
		if err != nil {
			log.Fatal().Err(err).Msg("Block production failed")
		}
		totalTxs += len(block.Transactions)
		for _, tx := range block.Transactions {
			totalEvents += strings.Count(tx.Logs, `"event"`)
		}
		log.Info().
			Int64("block", block.BlockNumber).
			Int("transactions", len(block.Transactions)).
			Str("database_hash", block.DatabaseHash[:16]).
			Msg("Block produced")
	}

	elapsed := time.Since(start)

	// Report final market state
	marketDB := market.NewDatabase(sim.store)
	metric, err := marketDB.Metric(tradedSymbol)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read market metrics")
	}

	fmt.Println("\nSimulation Summary")
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("%-30s %d\n", "Blocks produced", numBlocks)
	fmt.Printf("%-30s %d\n", "Transactions executed", totalTxs)
	fmt.Printf("%-30s %d\n", "Events emitted", totalEvents)
	fmt.Printf("%-30s %s\n", "Elapsed", elapsed.Round(time.Millisecond))
	if metric != nil {
		fmt.Printf("%-30s %s\n", "Last price", metric.LastPrice)
		fmt.Printf("%-30s %s\n", "24h volume", metric.Volume)
		fmt.Printf("%-30s %s\n", "Highest bid", metric.HighestBid)
		fmt.Printf("%-30s %s\n", "Lowest ask", metric.LowestAsk)
	}
	fmt.Println(strings.Repeat("-", 60))

	sim.printPerformanceStats()
}
