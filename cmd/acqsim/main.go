// Command acqsim drives the full materializer stack with a synthetic
// acquisition: it builds a sequence plan from flags, streams generated
// frames through the engine the way a hardware acquisition loop would, and
// reports write/display/offload statistics at the end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/imagingkit/acqstream/config"
	"github.com/imagingkit/acqstream/core"
	"github.com/imagingkit/acqstream/engine"
	"github.com/imagingkit/acqstream/sequence"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		timepoints = flag.Int("t", 4, "number of timepoints")
		zSlices    = flag.Int("z", 1, "number of z slices")
		channels   = flag.String("channels", "DAPI,FITC", "comma-separated channel configs (empty for none)")
		positions  = flag.String("positions", "", "comma-separated position names (empty for none)")
		width      = flag.Int("width", 512, "camera frame width")
		height     = flag.Int("height", 512, "camera frame height")
		bitDepth   = flag.Int("bit-depth", 16, "camera bit depth")
		interval   = flag.Duration("interval", 0, "delay between frames (0 = as fast as possible)")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "acqsim:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	logger := cfg.Logging.BuildLogger()

	plan := buildPlan(cfg, *timepoints, *zSlices, *channels, *positions)
	if err := plan.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "acqsim: invalid plan:", err)
		os.Exit(1)
	}

	opts := engine.Options{
		Camera: &simCamera{width: *width, height: *height, bits: *bitDepth},
		Logger: logger,
	}
	if cfg.Display.Enabled {
		opts.Viewer = &logViewer{logger: logger}
	}
	if cfg.Offload.Enabled {
		opts.OffloadConsumer = &meanIntensity{logger: logger}
		opts.OffloadCapacity = cfg.Offload.Capacity
		if !cfg.Offload.FirstTimepoint {
			opts.OffloadPredicate = func(*core.Frame, *sequence.AcquisitionEvent) bool { return true }
		}
	}
	opts.SnapshotCacheSize = cfg.Snapshot.ChunkCacheSize

	eng, err := engine.NewStreamEngine(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "acqsim:", err)
		os.Exit(1)
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The real acquisition engine is paused around allocation; here the
	// producer simply does not start until allocation returns.
	if err := eng.OnSequenceStarted(plan); err != nil {
		fmt.Fprintln(os.Stderr, "acqsim: sequence start failed:", err)
		os.Exit(1)
	}

	events := sequence.Iterate(plan)
	logger.Info("acquisition starting", "events", len(events), "groups", len(eng.Groups()))

	gen := newFrameGenerator(*width, *height, core.PixelTypeForBitDepth(*bitDepth))
	var written, rejected int

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i, ev := range events {
			if err := ctx.Err(); err != nil {
				logger.Warn("acquisition interrupted", "delivered", i)
				return err
			}
			outcome := eng.OnFrame(gen.frame(&ev), &ev)
			if outcome.Status == core.StatusWritten {
				written++
			} else {
				rejected++
				logger.Warn("frame rejected", "event", &ev, "reason", outcome.Reason)
			}
			if *interval > 0 {
				time.Sleep(*interval)
			}
		}
		return nil
	})

	runErr := g.Wait()
	if runErr != nil {
		eng.Abort()
	} else if err := eng.OnSequenceFinished(plan.ID); err != nil {
		fmt.Fprintln(os.Stderr, "acqsim: sequence finish failed:", err)
		os.Exit(1)
	}

	ds := eng.DisplayStats()
	qs := eng.OffloadStats()
	logger.Info("acquisition done",
		"written", written,
		"rejected", rejected,
		"display_delivered", ds.Delivered,
		"display_coalesced", ds.Coalesced,
		"offload_enqueued", qs.Enqueued,
		"offload_dropped", qs.Dropped)
}

// buildPlan assembles the sequence plan described by the flags and config.
func buildPlan(cfg *config.Config, t, z int, channelList, positionList string) *sequence.SequencePlan {
	plan := &sequence.SequencePlan{
		ID: sequence.NewPlanID(),
		Split: sequence.SplitPolicy{
			Channel:  cfg.Split.Channel,
			Position: cfg.Split.Position,
		},
		Meta: &sequence.RunMeta{
			Persist: cfg.Save.Enabled,
			Dir:     cfg.Save.Directory,
			Name:    cfg.Save.Name,
		},
	}

	plan.Axes = append(plan.Axes, sequence.Axis{Name: sequence.AxisTime, Size: t})
	if positionList != "" {
		names := strings.Split(positionList, ",")
		plan.Axes = append(plan.Axes, sequence.Axis{Name: sequence.AxisPosition, Size: len(names)})
		for _, n := range names {
			plan.Positions = append(plan.Positions, sequence.Position{Name: strings.TrimSpace(n)})
		}
	}
	if channelList != "" {
		configs := strings.Split(channelList, ",")
		plan.Axes = append(plan.Axes, sequence.Axis{Name: sequence.AxisChannel, Size: len(configs)})
		for _, c := range configs {
			plan.Channels = append(plan.Channels, sequence.Channel{Config: strings.TrimSpace(c)})
		}
	}
	plan.Axes = append(plan.Axes, sequence.Axis{Name: sequence.AxisZ, Size: z})
	return plan
}

// simCamera stands in for the hardware camera.
type simCamera struct {
	width  int
	height int
	bits   int
}

func (c *simCamera) ImageWidth() int    { return c.width }
func (c *simCamera) ImageHeight() int   { return c.height }
func (c *simCamera) ImageBitDepth() int { return c.bits }

// logViewer stands in for the visualization surface.
type logViewer struct {
	logger *slog.Logger
}

func (v *logViewer) SetVisible(groupID string) {
	v.logger.Info("display: group visible", "group", groupID)
}

func (v *logViewer) SetStep(groupID string, coord []int) {
	v.logger.Debug("display: step", "group", groupID, "coord", fmt.Sprint(coord))
}

// meanIntensity is the offload consumer: a stand-in for segmentation that
// just averages the frame.
type meanIntensity struct {
	logger *slog.Logger
}

func (m *meanIntensity) Process(_ context.Context, frame *core.Frame, event *sequence.AcquisitionEvent) error {
	var sum uint64
	switch frame.PixelType {
	case core.PixelUint16:
		for i := 0; i+1 < len(frame.Pix); i += 2 {
			sum += uint64(frame.Pix[i]) | uint64(frame.Pix[i+1])<<8
		}
	default:
		for _, p := range frame.Pix {
			sum += uint64(p)
		}
	}
	n := uint64(frame.Width * frame.Height)
	if n == 0 {
		return fmt.Errorf("empty frame")
	}
	m.logger.Info("offload: analyzed frame", "event", event, "mean", sum/n)
	return nil
}

// frameGenerator produces deterministic synthetic frames: a gradient offset
// by a per-event counter so every frame is distinct.
type frameGenerator struct {
	width  int
	height int
	pt     core.PixelType
	serial uint64
}

func newFrameGenerator(w, h int, pt core.PixelType) *frameGenerator {
	return &frameGenerator{width: w, height: h, pt: pt}
}

func (g *frameGenerator) frame(_ *sequence.AcquisitionEvent) *core.Frame {
	g.serial++
	pix := make([]byte, g.width*g.height*g.pt.BytesPerSample())
	for i := range pix {
		pix[i] = byte(uint64(i) + g.serial)
	}
	return &core.Frame{Pix: pix, Width: g.width, Height: g.height, PixelType: g.pt}
}
