package workload

import (
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/oasisprotocol/block-orderer/common/cbor"
	"github.com/oasisprotocol/block-orderer/common/version"
	"github.com/oasisprotocol/block-orderer/common/workerpool"
)

// CfgFixtureFile is the path to a workload block fixture.
const CfgFixtureFile = "fixture.file"

// fixtureChunkSize is the number of transfers per fixture frame.
const fixtureChunkSize = 4096

// FixtureVersion is the supported fixture format version.  Fixtures with a
// different patch segment stay compatible.
var FixtureVersion = version.Version{Major: 1}

// FixtureFlags are the workload fixture flags.
var FixtureFlags = flag.NewFlagSet("", flag.ContinueOnError)

// Block is a generated workload block.
//
// Blocks round-trip through CBOR so that different strategies and runs can
// be benchmarked on identical inputs.
type Block struct {
	// Version is the fixture format version.
	Version version.Version `json:"version"`

	// NumAccounts is the size of the account set the transfers draw from.
	NumAccounts int `json:"num_accounts"`

	// Transfers are the block's transactions, in block order.
	Transfers []*SignedTransfer `json:"transfers"`
}

// Validate checks the fixture format version and every transfer signature.
// Verification is fanned out over the given worker pool.
func (b *Block) Validate(pool *workerpool.Pool) error {
	if b.Version.MajorMinor() != FixtureVersion.MajorMinor() {
		return fmt.Errorf("workload: unsupported fixture version %s (expected %s)", b.Version, FixtureVersion)
	}
	if b.NumAccounts < 2 {
		return fmt.Errorf("workload: fixture account set too small: %d", b.NumAccounts)
	}

	return forEachChunk(pool, len(b.Transfers), func(i int) error {
		return b.Transfers[i].Verify()
	})
}

// FixtureFile returns the configured fixture file path, empty if none.
func FixtureFile() string {
	return viper.GetString(CfgFixtureFile)
}

// fixtureHeader is the first frame of a fixture stream.
type fixtureHeader struct {
	Version     version.Version `json:"version"`
	NumAccounts int             `json:"num_accounts"`
}

// SaveFixture writes a block fixture as a stream of length-prefixed CBOR
// frames: a header frame followed by transfer batch frames.
func SaveFixture(path string, b *Block) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("workload: failed to create fixture: %w", err)
	}
	defer f.Close()

	w := cbor.NewMessageWriter(f)
	hdr := fixtureHeader{
		Version:     b.Version,
		NumAccounts: b.NumAccounts,
	}
	if err = w.Write(hdr); err != nil {
		return fmt.Errorf("workload: failed to write fixture header: %w", err)
	}
	for off := 0; off < len(b.Transfers); off += fixtureChunkSize {
		end := min(off+fixtureChunkSize, len(b.Transfers))
		if err = w.Write(b.Transfers[off:end]); err != nil {
			return fmt.Errorf("workload: failed to write fixture frame: %w", err)
		}
	}
	return nil
}

// LoadFixture reads a block fixture.  Transfer signatures are not checked
// here; callers wanting verified input use Block.Validate.
func LoadFixture(path string) (*Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("workload: failed to open fixture: %w", err)
	}
	defer f.Close()

	r := cbor.NewMessageReader(f)
	var hdr fixtureHeader
	if err = r.Read(&hdr); err != nil {
		return nil, fmt.Errorf("workload: failed to read fixture header: %w", err)
	}

	b := &Block{
		Version:     hdr.Version,
		NumAccounts: hdr.NumAccounts,
	}
	for {
		var chunk []*SignedTransfer
		switch err = r.Read(&chunk); err {
		case nil:
		case io.EOF:
			return b, nil
		default:
			return nil, fmt.Errorf("workload: failed to read fixture frame: %w", err)
		}
		b.Transfers = append(b.Transfers, chunk...)
	}
}

func init() {
	FixtureFlags.String(CfgFixtureFile, "", "path to a CBOR-encoded workload block fixture")

	_ = viper.BindPFlags(FixtureFlags)
}
