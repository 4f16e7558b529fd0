package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/viper"

	"github.com/oasisprotocol/block-orderer/common/logging"
	"github.com/oasisprotocol/block-orderer/common/workerpool"
	"github.com/oasisprotocol/block-orderer/orderer"
	"github.com/oasisprotocol/block-orderer/orderer-bench/workload"
	"github.com/oasisprotocol/block-orderer/orderer/api"
	"github.com/oasisprotocol/block-orderer/orderer/compress"
	"github.com/oasisprotocol/block-orderer/orderer/parallel"
	"github.com/oasisprotocol/block-orderer/orderer/quality"
)

type benchTx = *compress.Compressed[*workload.SignedTransfer]

// blockResult holds the measurements of one ordering pass over the block.
type blockResult struct {
	compress time.Duration
	order    time.Duration
	latency  time.Duration
	batches  int
	tps      float64
	costs    []float64
}

func costDecays() ([]float64, error) {
	raw := viper.GetStringSlice(cfgCostDecay)
	decays := make([]float64, 0, len(raw))
	for _, s := range raw {
		decay, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("bench: malformed cost decay constant %q: %w", s, err)
		}
		if decay < 0 {
			return nil, fmt.Errorf("bench: cost decay constant must not be negative, got %g", decay)
		}
		decays = append(decays, decay)
	}
	return decays, nil
}

// benchBlock loads the configured fixture or generates a fresh workload
// block.
func benchBlock(logger *logging.Logger, pool *workerpool.Pool) (*workload.Block, error) {
	if path := workload.FixtureFile(); path != "" {
		logger.Info("loading workload fixture",
			"path", path,
		)
		block, err := workload.LoadFixture(path)
		if err != nil {
			return nil, fmt.Errorf("bench: failed to load fixture: %w", err)
		}
		if err = block.Validate(pool); err != nil {
			return nil, fmt.Errorf("bench: fixture validation failed: %w", err)
		}
		return block, nil
	}

	numAccounts := viper.GetInt(cfgNumAccounts)
	blockSize := viper.GetInt(cfgBlockSize)
	seed := viper.GetUint64(cfgSeed)

	start := time.Now()
	gen, err := workload.NewGenerator(numAccounts, seed, pool)
	if err != nil {
		return nil, fmt.Errorf("bench: failed to create workload generator: %w", err)
	}
	block, err := gen.MakeBlock(blockSize, pool)
	if err != nil {
		return nil, fmt.Errorf("bench: failed to generate workload block: %w", err)
	}
	logger.Info("generated workload block",
		"accounts", numAccounts,
		"txns", len(block.Transfers),
		"elapsed", time.Since(start),
	)
	return block, nil
}

// orderBlock compresses the block's state keys and runs one ordering pass,
// measuring compression time, ordering time, time until the first
// latencyTarget transactions were emitted, and the order quality cost for
// each decay constant.
func orderBlock(
	ord api.BlockOrderer[benchTx],
	pool *workerpool.Pool,
	transfers []*workload.SignedTransfer,
	parallelCompress bool,
	latencyTarget int,
	decays []float64,
) (blockResult, error) {
	var res blockResult

	var (
		txns []benchTx
		err  error
	)
	compressStart := time.Now()
	if parallelCompress {
		txns, _, err = compress.TransactionsParallel(pool, transfers)
	} else {
		txns, _, err = compress.Transactions(transfers)
	}
	if err != nil {
		return res, fmt.Errorf("bench: key compression failed: %w", err)
	}
	res.compress = time.Since(compressStart)

	order := make([]benchTx, 0, len(txns))
	orderStart := time.Now()
	err = ord.OrderTransactions(txns, func(batch []benchTx) error {
		order = append(order, batch...)
		res.batches++
		if res.latency == 0 && len(order) >= latencyTarget {
			res.latency = time.Since(orderStart)
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("bench: ordering failed: %w", err)
	}
	res.order = time.Since(orderStart)
	if secs := res.order.Seconds(); secs > 0 {
		res.tps = float64(len(order)) / secs
	}

	res.costs = make([]float64, 0, len(decays))
	for _, decay := range decays {
		res.costs = append(res.costs, quality.OrderTotalCost(order, quality.AmortizedInverseDependencyCost(decay)))
	}

	return res, nil
}

// newResultLogger builds the logger for per-block result records.  When a
// results file is configured the records additionally go to it as raw JSON,
// stripped of the log attribution keys.
func newResultLogger(logger *logging.Logger, path string) (*logging.Logger, io.Closer, error) {
	if path == "" {
		return logger, nil, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("bench: failed to create results file: %w", err)
	}

	// The fan-out inserts two stack frames in front of the console
	// logger's caller annotation.
	fanout := logging.NewMultiLogger(
		logging.GetLoggerEx("cmd/bench", 2),
		logging.NewFilterLogger(logging.NewJSONLogger(f), "module"),
	)
	return fanout, f, nil
}

func runBenchmark(logger *logging.Logger) error {
	decays, err := costDecays()
	if err != nil {
		return err
	}

	numBlocks := viper.GetInt(cfgNumBlocks)
	if numBlocks < 1 {
		return fmt.Errorf("bench: block count must be positive, got %d", numBlocks)
	}

	resultLog, resultsFile, err := newResultLogger(logger, viper.GetString(cfgResultsFile))
	if err != nil {
		return err
	}
	if resultsFile != nil {
		defer resultsFile.Close()
	}

	pool, err := newBenchPool()
	if err != nil {
		return err
	}
	defer pool.Stop()

	block, err := benchBlock(logger, pool)
	if err != nil {
		return err
	}

	ordCfg := orderer.NewConfig()
	ord, err := orderer.New[benchTx, compress.Key](ordCfg, pool)
	if err != nil {
		return fmt.Errorf("bench: failed to construct orderer: %w", err)
	}

	if viper.GetBool(cfgProfileCPU) {
		prof, perr := os.Create("orderer-bench-profile.prof")
		if perr != nil {
			return fmt.Errorf("bench: failed to create file for CPU profiler output: %w", perr)
		}
		defer prof.Close()
		if perr = pprof.StartCPUProfile(prof); perr != nil {
			return fmt.Errorf("bench: failed to start CPU profiler: %w", perr)
		}
		defer pprof.StopCPUProfile()
	}

	latencyTarget := min(100, len(block.Transfers))
	parallelCompress := ordCfg.Strategy == parallel.Name

	results := make([]blockResult, 0, numBlocks)
	for i := 0; i < numBlocks; i++ {
		res, err := orderBlock(ord, pool, block.Transfers, parallelCompress, latencyTarget, decays)
		if err != nil {
			return err
		}
		kvs := append([]interface{}{
			"block", i,
			"strategy", ord.Name(),
		}, resultKeyvals(res, decays)...)
		resultLog.Info("ordered block", kvs...)
		results = append(results, res)
	}

	if viper.GetBool(cfgProfileMEM) {
		mprof, merr := os.Create("orderer-bench-mem-profile.prof")
		if merr != nil {
			return fmt.Errorf("bench: failed to create file for memory profiler output: %w", merr)
		}
		defer mprof.Close()
		runtime.GC()
		if merr = pprof.WriteHeapProfile(mprof); merr != nil {
			return fmt.Errorf("bench: failed to write heap profile: %w", merr)
		}
	}

	kvs := append([]interface{}{
		"blocks", numBlocks,
		"strategy", ord.Name(),
	}, resultKeyvals(meanResult(results), decays)...)
	resultLog.Info("benchmark summary", kvs...)

	renderResults(os.Stdout, ord.Name(), decays, results)

	return nil
}

// resultKeyvals renders one measurement as structured log key/value pairs.
func resultKeyvals(r blockResult, decays []float64) []interface{} {
	kvs := []interface{}{
		"compress", r.compress,
		"order", r.order,
		"latency", r.latency,
		"batches", r.batches,
		"tps", uint64(r.tps),
	}
	for i, decay := range decays {
		kvs = append(kvs, fmt.Sprintf("cost_%g", decay), r.costs[i])
	}
	return kvs
}

func resultRow(label string, r blockResult) []string {
	row := []string{
		label,
		r.compress.Round(time.Microsecond).String(),
		r.order.Round(time.Microsecond).String(),
		strconv.FormatFloat(r.tps, 'f', 0, 64),
		r.latency.Round(time.Microsecond).String(),
		strconv.Itoa(r.batches),
	}
	for _, c := range r.costs {
		row = append(row, strconv.FormatFloat(c, 'f', 2, 64))
	}
	return row
}

func meanResult(results []blockResult) blockResult {
	mean := blockResult{costs: make([]float64, len(results[0].costs))}
	for _, r := range results {
		mean.compress += r.compress
		mean.order += r.order
		mean.latency += r.latency
		mean.batches += r.batches
		mean.tps += r.tps
		for i, c := range r.costs {
			mean.costs[i] += c
		}
	}

	n := len(results)
	mean.compress /= time.Duration(n)
	mean.order /= time.Duration(n)
	mean.latency /= time.Duration(n)
	mean.batches /= n
	mean.tps /= float64(n)
	for i := range mean.costs {
		mean.costs[i] /= float64(n)
	}
	return mean
}

func renderResults(w io.Writer, strategy string, decays []float64, results []blockResult) {
	header := []string{"block", "compress", "order", "tps", "latency", "batches"}
	for _, decay := range decays {
		header = append(header, fmt.Sprintf("cost c=%g", decay))
	}

	fmt.Fprintf(w, "strategy: %s\n", strategy)
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	for i, r := range results {
		table.Append(resultRow(strconv.Itoa(i), r))
	}
	table.Append(resultRow("mean", meanResult(results)))
	table.Render()
}
