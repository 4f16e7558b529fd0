package orderer

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/oasisprotocol/block-orderer/orderer/api"
	"github.com/oasisprotocol/block-orderer/orderer/batching"
	"github.com/oasisprotocol/block-orderer/orderer/parallel"
	"github.com/oasisprotocol/block-orderer/orderer/sequential"
)

const (
	// CfgStrategy configures the block ordering strategy.
	CfgStrategy = "orderer.strategy"

	// CfgMinBatchSize configures the number of ready transactions the
	// orderer accumulates before emitting a batch.
	CfgMinBatchSize = "orderer.min_batch_size"

	// CfgLookahead configures the bound on uncommitted transactions held
	// while ordering.  Zero disables the bound.
	CfgLookahead = "orderer.lookahead"

	// CfgWindowSize configures the conflict window, in transactions, of
	// the windowed strategy.
	CfgWindowSize = "orderer.window_size"
)

// Flags has the configuration flags.
var Flags = flag.NewFlagSet("", flag.ContinueOnError)

// Config is the block orderer configuration.
type Config struct {
	// Strategy is the name of the ordering strategy.
	Strategy string

	// MinBatchSize is the number of ready transactions accumulated before
	// a batch is emitted.
	MinBatchSize int

	// Lookahead bounds the number of uncommitted transactions held while
	// ordering.  Zero disables the bound.
	Lookahead int

	// WindowSize is the conflict window, in transactions, used by the
	// windowed strategy.
	WindowSize int
}

// NewConfig creates the block orderer configuration from viper.
func NewConfig() Config {
	return Config{
		Strategy:     viper.GetString(CfgStrategy),
		MinBatchSize: viper.GetInt(CfgMinBatchSize),
		Lookahead:    viper.GetInt(CfgLookahead),
		WindowSize:   viper.GetInt(CfgWindowSize),
	}
}

// Validate validates the configuration.
func (cfg *Config) Validate() error {
	var errs *multierror.Error

	switch cfg.Strategy {
	case batching.IdentityName, sequential.Name, sequential.WindowedName, parallel.Name:
	default:
		errs = multierror.Append(errs, fmt.Errorf("%w: %s", api.ErrStrategyNotSupported, cfg.Strategy))
	}

	if cfg.Strategy != batching.IdentityName {
		if cfg.MinBatchSize < 1 {
			errs = multierror.Append(errs, fmt.Errorf("orderer: minimum batch size must be positive, got %d", cfg.MinBatchSize))
		}
		if cfg.Lookahead < 0 {
			errs = multierror.Append(errs, fmt.Errorf("orderer: lookahead must not be negative, got %d", cfg.Lookahead))
		}
	}
	if cfg.Strategy == sequential.WindowedName && cfg.WindowSize < 1 {
		errs = multierror.Append(errs, fmt.Errorf("orderer: window size must be positive, got %d", cfg.WindowSize))
	}

	return errs.ErrorOrNil()
}

func init() {
	Flags.String(CfgStrategy, sequential.Name, "block ordering strategy")
	Flags.Int(CfgMinBatchSize, 500, "minimum emitted batch size (transactions)")
	Flags.Int(CfgLookahead, 1000, "bound on uncommitted transactions held while ordering (0 to disable)")
	Flags.Int(CfgWindowSize, 1000, "conflict window of the windowed strategy (transactions)")

	_ = viper.BindPFlags(Flags)
}
