package main

import "bytes"
import "context"
import "crypto/rc4"
import "encoding/binary"
import "math"
import "os"
import "path/filepath"
import "runtime/pprof"
import "time"

import "github.com/alitto/pond/v2"
import "github.com/dustin/go-humanize"
import "github.com/rs/zerolog"
import "github.com/spf13/cobra"
import "golang.org/x/xerrors"

import "github.com/deroproject/spacebee"
import "github.com/deroproject/spacebee/core"

const keysize uint64 = 64    // in bytes
const valuesize uint64 = 512 // in bytes

var (
	stepsize     uint64
	totalsize    uint64
	db_directory string
	backend      string
	readers      int
	cpuprofile   string
)

var step uint64
var keys_written uint64

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

func main() {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "spacebee stress tester, writes pseudorandom data in batches and verifies every step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	cmd.Flags().Uint64Var(&stepsize, "stepsize", 10, "Every batch will include this much data in MB")
	cmd.Flags().Uint64Var(&totalsize, "totalsize", 500, "Total this much data will be written in MB ( use 0 for infinite )")
	cmd.Flags().StringVar(&db_directory, "db_directory", "/tmp", "DB will be created in this path, will be cleared on exit")
	cmd.Flags().StringVar(&backend, "backend", "memory", "storage backend, memory, disk or leveldb")
	cmd.Flags().IntVar(&readers, "readers", 4, "concurrent readers verifying every step")
	cmd.Flags().StringVar(&cpuprofile, "cpuprofile", "", "write cpu profile to `file`")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log.Info().Msg("Spacebee stress tester")
	log.Info().Msg("NOTE: Do not use rotational media")

	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			return xerrors.Errorf("could not create CPU profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return xerrors.Errorf("could not start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	if stepsize < 1 {
		stepsize = 1
	}
	if totalsize == 0 {
		totalsize = math.MaxUint64
	}
	if stepsize > 512 {
		stepsize = 512
	}
	if stepsize > totalsize {
		stepsize = totalsize
	}
	if readers < 1 {
		readers = 1
	}

	b, ok := core.ParseBackend(backend)
	if !ok {
		return xerrors.Errorf("unknown backend %q", backend)
	}
	opts := &core.Options{Backend: b}
	if b != core.Memory {
		opts.Directory = filepath.Join(db_directory, "spacebee_stress_db")
		defer os.RemoveAll(opts.Directory)
	}

	log.Info().Uint64("total_mb", totalsize).Uint64("step_mb", stepsize).Str("backend", b.String()).Str("directory", opts.Directory).Msg("starting")

	corelog := log.Level(zerolog.InfoLevel)
	opts.Logger = &corelog
	store, err := core.Open(opts)
	if err != nil {
		return xerrors.Errorf("stress log creation err %w", err)
	}
	defer store.Close()

	db, err := spacebee.New(store, &spacebee.Options{Logger: &corelog, Metadata: map[string]interface{}{"tool": "stress"}})
	if err != nil {
		return err
	}
	defer db.Close()

	pool := pond.NewPool(readers)
	defer pool.StopAndWait()

	steps := totalsize / stepsize
	started := time.Now()
	for step = 0; step < steps; step++ {
		log.Info().Msgf("Running step %d    %.2f%% completed total keys %s", step, float64(step*100)/float64(steps), humanize.Comma(int64(keys_written)))
		if err := RunStep(ctx, store, db, pool); err != nil {
			return err
		}
	}

	estimate, err := db.KeyCountEstimate(ctx)
	if err != nil {
		return err
	}
	sample, err := db.Random(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Str("keys", humanize.Comma(int64(keys_written))).
		Str("estimate", humanize.Comma(estimate)).
		Str("records", humanize.Comma(int64(store.Length()))).
		Str("written", humanize.Bytes(keys_written*(keysize+valuesize))).
		Str("elapsed", time.Since(started).Round(time.Millisecond).String()).
		Uint64("random_sample_seq", sample.Seq).
		Msg("completed")
	return nil
}

// each step consists of generating pseudorandom data, which is first written in a single batch
// and then verified by concurrent readers through a fresh view without cache
func RunStep(ctx context.Context, store *core.Core, db *spacebee.DB, pool pond.Pool) error {
	values_count := (stepsize * 1024 * 1024 / valuesize) + 1

	key_buf := make([]byte, values_count*keysize)
	value_buf := make([]byte, values_count*valuesize)

	var cryptokey, cryptovalue [9]byte

	cryptokey[0] = 1
	binary.LittleEndian.PutUint64(cryptokey[1:], step)
	binary.LittleEndian.PutUint64(cryptovalue[1:], step)

	keycipher, _ := rc4.NewCipher(cryptokey[:])
	valuecipher, _ := rc4.NewCipher(cryptovalue[:])

	keycipher.XORKeyStream(key_buf[:], key_buf[:])
	valuecipher.XORKeyStream(value_buf[:], value_buf[:])

	batch := db.Batch()
	for i := uint64(0); i < values_count; i++ {
		if err := batch.Put(ctx, key_buf[i*keysize:(i+1)*keysize], value_buf[i*valuesize:(i+1)*valuesize]); err != nil {
			batch.Destroy()
			return err
		}
		keys_written++
	}
	if err := batch.Flush(); err != nil {
		return err
	}

	// now we will open another view from storage without cache and read everything back and verify
	read_db, err := spacebee.New(store, nil)
	if err != nil {
		return err
	}
	defer read_db.Close()

	group := pool.NewGroup()
	chunk := (values_count + uint64(readers) - 1) / uint64(readers)
	for start := uint64(0); start < values_count; start += chunk {
		start, end := start, start+chunk
		if end > values_count {
			end = values_count
		}
		group.SubmitErr(func() error {
			for i := start; i < end; i++ {
				e, err := read_db.Get(ctx, key_buf[i*keysize:(i+1)*keysize])
				if err != nil { // key not existent or other err, stop testing
					return xerrors.Errorf("err occured while verifying tree err %w", err)
				}
				if e == nil || !bytes.Equal(e.Value.([]byte), value_buf[i*valuesize:(i+1)*valuesize]) {
					return xerrors.Errorf("value mismatched for key %d of step %d", i, step)
				}
			}
			return nil
		})
	}
	return group.Wait()
}
