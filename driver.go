package zonecount

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/ease-lab/zonecount/internal/pkg/corfs"
	"github.com/ease-lab/zonecount/report"
)

var errNoInputs = errors.New("no inputs given")

// ResultHandler receives the parsed output rows of a finished run.
type ResultHandler func(ctx context.Context, rows []report.Row) error

// Driver controls the execution of a MapReduce Job
type Driver struct {
	jobs     []*Job
	config   *config
	executor executor

	handlers    []ResultHandler
	lastOutputs []string
}

// NewDriver creates a new Driver with the provided job and optional configuration
func NewDriver(job *Job, options ...Option) *Driver {
	d := &Driver{
		jobs: []*Job{job},
	}

	c := newConfig()
	for _, f := range options {
		f(c)
	}
	d.config = c
	job.config = c

	return d
}

// OnResult registers h to run with the output rows after a successful run.
func (d *Driver) OnResult(h ResultHandler) {
	d.handlers = append(d.handlers, h)
}

// Outputs returns the output files of the last run.
func (d *Driver) Outputs() []string {
	return d.lastOutputs
}

func (d *Driver) newExecutor() executor {
	switch d.config.Backend {
	case lambdaBackend:
		return newLambdaExecutor(d.config.LambdaFunctionName)
	case knativeBackend:
		return newKnativeExecutor(d.config.KnativeServiceURL)
	}
	return localExecutor{}
}

func newProgressBar(total int, prefix string) *pb.ProgressBar {
	bar := pb.New(total).Prefix(prefix)
	bar.Output = os.Stderr
	bar.NotPrint = log.IsLevelEnabled(log.DebugLevel)
	return bar.Start()
}

func (d *Driver) runMapPhase(ctx context.Context, job *Job, jobNumber int, inputs []string) error {
	inputSplits := job.inputSplits(inputs, d.config.SplitSize)
	if len(inputSplits) == 0 {
		log.Warnf("No input splits")
		return nil
	}
	log.Debugf("Number of job input splits: %d", len(inputSplits))

	inputBins := packInputSplits(inputSplits, d.config.MapBinSize)
	log.Debugf("Number of job input bins: %d", len(inputBins))
	bar := newProgressBar(len(inputBins), "Map")
	defer bar.Finish()

	return d.runTasks(ctx, len(inputBins), bar, func(ctx context.Context, binID uint) error {
		if err := d.executor.RunMapper(ctx, job, jobNumber, binID, inputBins[binID]); err != nil {
			return fmt.Errorf("map task %d: %w", binID, err)
		}
		return nil
	})
}

func (d *Driver) runReducePhase(ctx context.Context, job *Job, jobNumber int) error {
	bar := newProgressBar(int(job.intermediateBins), "Reduce")
	defer bar.Finish()

	return d.runTasks(ctx, int(job.intermediateBins), bar, func(ctx context.Context, binID uint) error {
		if err := d.executor.RunReducer(ctx, job, jobNumber, binID); err != nil {
			return fmt.Errorf("reduce task %d: %w", binID, err)
		}
		return nil
	})
}

// runTasks runs n tasks, at most MaxConcurrency at a time. The first failed
// task cancels the others.
func (d *Driver) runTasks(ctx context.Context, n int, bar *pb.ProgressBar, run func(context.Context, uint) error) error {
	limit := int64(d.config.MaxConcurrency)
	if limit <= 0 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)
	group, gctx := errgroup.WithContext(ctx)

	var acquireErr error
	for i := 0; i < n; i++ {
		if err := sem.Acquire(gctx, 1); err != nil {
			acquireErr = err
			break
		}
		binID := uint(i)
		group.Go(func() error {
			defer sem.Release(1)
			defer bar.Increment()
			return run(gctx, binID)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	return acquireErr
}

func (d *Driver) runJob(ctx context.Context, jobNumber int, job *Job, inputs []string) error {
	fs := corfs.InferFilesystem(inputs[0])
	job.fileSystemType = corfs.InferFilesystemType(inputs[0])
	job.fileSystem = fs
	job.outputPath = d.config.WorkingLocation
	if outType := corfs.InferFilesystemType(job.outputPath); outType != job.fileSystemType {
		return fmt.Errorf("inputs are on %s but working location %s is on %s", job.fileSystemType, job.outputPath, outType)
	}
	if d.config.Backend != localBackend && job.fileSystemType != corfs.S3 {
		log.Warnf("Running on %s with a %s filesystem, remote tasks will not see the driver's files", d.config.Backend, job.fileSystemType)
	}

	log.Infof("Starting job %d (%s executor)", jobNumber, d.config.Backend)
	if err := d.runMapPhase(ctx, job, jobNumber, inputs); err != nil {
		return err
	}
	if err := d.runReducePhase(ctx, job, jobNumber); err != nil {
		return err
	}

	files, err := fs.ListFiles(fs.Join(job.outputPath, "output-part-*"))
	if err != nil {
		return err
	}
	d.lastOutputs = make([]string, 0, len(files))
	for _, f := range files {
		d.lastOutputs = append(d.lastOutputs, f.Name)
	}

	log.Infof("Job %d: read %s, wrote %s", jobNumber,
		humanize.Bytes(uint64(job.bytesRead)), humanize.Bytes(uint64(job.bytesWritten)))
	for _, name := range job.Counters.Names() {
		log.WithField("counter", name).Info(humanize.Comma(job.Counters.Get(name)))
	}
	return nil
}

// Run executes the driver's jobs over the configured inputs.
func (d *Driver) Run(ctx context.Context) error {
	if len(d.config.Inputs) == 0 {
		return errNoInputs
	}
	if d.executor == nil {
		d.executor = d.newExecutor()
	}

	inputs := d.config.Inputs
	for idx, job := range d.jobs {
		if err := d.runJob(ctx, idx, job, inputs); err != nil {
			return fmt.Errorf("job %d: %w", idx, err)
		}
		inputs = d.lastOutputs
	}

	return d.handleResults(ctx)
}

func (d *Driver) handleResults(ctx context.Context) error {
	if d.config.TopN <= 0 && len(d.handlers) == 0 {
		return nil
	}

	fs := d.jobs[len(d.jobs)-1].fileSystem
	rows, skipped, err := report.ReadFiles(fs, d.lastOutputs)
	if err != nil {
		return err
	}
	if skipped > 0 {
		log.Warnf("Skipped %d malformed output lines", skipped)
	}

	if d.config.TopN > 0 {
		if err := report.Print(os.Stdout, report.TopN(rows, d.config.TopN)); err != nil {
			return err
		}
	}
	for _, h := range d.handlers {
		if err := h(ctx, rows); err != nil {
			return err
		}
	}
	return nil
}

var (
	verbose        = flag.BoolP("verbose", "v", false, "Output verbose logs")
	outputDir      = flag.StringP("out", "o", "", "Output `directory` (can be local or in S3)")
	lambdaFunction = flag.String("lambda", "", "Run tasks on the named AWS Lambda `function`")
	knativeURL     = flag.String("knative", "", "Run tasks on the Knative service at `address`")
	maxConcurrency = flag.Int("max-concurrency", 0, "Maximum number of tasks running at once")
	splitSize      = flag.Int64("split-size", 0, "Input split size in bytes")
	mapBinSize     = flag.Int64("map-bin-size", 0, "Input bytes processed by one map task")
	reduceBinSize  = flag.Int64("reduce-bin-size", 0, "Intermediate bytes processed by one reduce task")
	noCleanup      = flag.Bool("no-cleanup", false, "Keep intermediate map data")
	sideInputs     = flag.StringToString("side-input", nil, "Side input files as `name=path`")
	topN           = flag.Int("top", 0, "Print the `n` largest output rows")
)

func (d *Driver) applyFlags() {
	if *verbose || d.config.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	if *outputDir != "" {
		d.config.WorkingLocation = *outputDir
	}
	if *lambdaFunction != "" {
		WithLambda(*lambdaFunction)(d.config)
	}
	if *knativeURL != "" {
		WithKnative(*knativeURL)(d.config)
	}
	if *maxConcurrency > 0 {
		d.config.MaxConcurrency = *maxConcurrency
	}
	if *splitSize > 0 {
		d.config.SplitSize = *splitSize
	}
	if *mapBinSize > 0 {
		d.config.MapBinSize = *mapBinSize
	}
	if *reduceBinSize > 0 {
		d.config.ReduceBinSize = *reduceBinSize
	}
	if *noCleanup {
		d.config.Cleanup = false
	}
	for name, path := range *sideInputs {
		WithSideInput(name, path)(d.config)
	}
	if *topN > 0 {
		d.config.TopN = *topN
	}
	d.config.Inputs = append(d.config.Inputs, flag.Args()...)
}

// Main starts the Driver.
// Running as a Lambda function or a Knative service it serves tasks,
// otherwise it runs the job and exits the process on failure.
func (d *Driver) Main(ctx context.Context) {
	if runningInLambda() {
		lambdaDriver = d
		lambda.Start(handleRequest)
		return
	}
	if runningInKnative() {
		knativeDriver = d
		newKnativeServer().Start()
		return
	}

	flag.Parse()
	d.applyFlags()

	if err := d.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
