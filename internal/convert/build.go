package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/HarborC/kalibrlib/internal/imaging"
	"github.com/HarborC/kalibrlib/internal/logging"
	"github.com/HarborC/kalibrlib/internal/models"
)

// Default channel names written by Build.
const (
	DefaultImuChannel   = "/imu"
	DefaultLeftChannel  = "/camera/left"
	DefaultRightChannel = "/camera/right"
)

// Logger is the subset of the shared logger Build uses.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Sources names the raw inputs. Missing or empty inputs are skipped.
type Sources struct {
	ImuTable string
	LeftDir  string
	RightDir string
}

// RootSources lays out a recording directory the way the capture tools
// write it: root/imu_data.txt and root/images/{left,right}.
func RootSources(root string) Sources {
	return Sources{
		ImuTable: filepath.Join(root, "imu_data.txt"),
		LeftDir:  filepath.Join(root, "images", "left"),
		RightDir: filepath.Join(root, "images", "right"),
	}
}

// Options configures Build.
type Options struct {
	Output      string
	Compression container.Compression
	ChunkSize   int
	// Compressed stores image files as-is instead of raw mono8 pixels.
	Compressed bool
	// SkipLeading drops that many of the earliest left frames.
	SkipLeading int

	ImuChannel   string
	LeftChannel  string
	RightChannel string

	Logger Logger
	// Progress, when set, is called after each written record of a stage.
	Progress func(stage Stage, done, total int)
}

// Stage names the part of a Build reported to Options.Progress.
type Stage string

const (
	StageImu    Stage = "imu"
	StageFrames Stage = "frames"
)

func (o *Options) progress(stage Stage, done, total int) {
	if o.Progress != nil {
		o.Progress(stage, done, total)
	}
}

func (o *Options) withDefaults() {
	if o.ImuChannel == "" {
		o.ImuChannel = DefaultImuChannel
	}
	if o.LeftChannel == "" {
		o.LeftChannel = DefaultLeftChannel
	}
	if o.RightChannel == "" {
		o.RightChannel = DefaultRightChannel
	}
	if o.Logger == nil {
		o.Logger = logging.New("convert")
	}
}

// BuildReport summarizes a Build run.
type BuildReport struct {
	ContainerID string               `json:"containerId"`
	Output      string               `json:"output"`
	ImuCount    int                  `json:"imuCount"`
	FrameCount  int                  `json:"frameCount"`
	Skipped     []*models.ParseError `json:"skipped,omitempty"`
}

// Build writes the sources into a new container at opts.Output, replacing
// any existing file. On error or cancellation the partial output is removed.
func Build(ctx context.Context, src Sources, opts Options) (*BuildReport, error) {
	opts.withDefaults()
	if opts.Output == "" {
		return nil, fmt.Errorf("output path required")
	}

	w, err := container.Create(opts.Output, container.WriterOptions{
		Compression: opts.Compression,
		ChunkSize:   opts.ChunkSize,
	})
	if err != nil {
		return nil, err
	}

	report := &BuildReport{ContainerID: w.ID().String(), Output: opts.Output}
	b := &builder{w: w, opts: opts, report: report}

	err = b.run(ctx, src)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(opts.Output)
		return nil, err
	}

	opts.Logger.Infof("wrote %s: %d IMU samples, %d frame pairs, %d skipped",
		opts.Output, report.ImuCount, report.FrameCount, len(report.Skipped))
	return report, nil
}

type builder struct {
	w      *container.Writer
	opts   Options
	report *BuildReport
}

func (b *builder) run(ctx context.Context, src Sources) error {
	if exists(src.ImuTable) {
		if err := b.writeImu(ctx, src.ImuTable); err != nil {
			return err
		}
	} else {
		b.opts.Logger.Infof("no IMU table at %q, skipping IMU", src.ImuTable)
	}

	if exists(src.LeftDir) && exists(src.RightDir) {
		if err := b.writeFrames(ctx, src.LeftDir, src.RightDir); err != nil {
			return err
		}
	} else {
		b.opts.Logger.Infof("image folders %q / %q not found, skipping images", src.LeftDir, src.RightDir)
	}
	return nil
}

func (b *builder) writeImu(ctx context.Context, path string) error {
	rows, skipped, err := ReadImuTable(path)
	if err != nil {
		return fmt.Errorf("reading IMU table: %w", err)
	}
	for _, pe := range skipped {
		b.opts.Logger.Warnf("skipping IMU line %d: %s", pe.Line, pe.Reason)
	}
	b.report.Skipped = append(b.report.Skipped, skipped...)

	conn, err := b.w.AddConnection(b.opts.ImuChannel, models.MessageTypeImu)
	if err != nil {
		return err
	}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.w.Write(conn, row.Stamp, row.Msg(uint32(i))); err != nil {
			return fmt.Errorf("writing IMU sample %d: %w", i, err)
		}
		b.report.ImuCount++
		b.opts.progress(StageImu, i+1, len(rows))
	}
	return nil
}

func (b *builder) writeFrames(ctx context.Context, leftDir, rightDir string) error {
	pairs, skipped, err := PairFrames(leftDir, rightDir, b.opts.SkipLeading)
	if err != nil {
		return err
	}
	for _, pe := range skipped {
		b.opts.Logger.Warnf("skipping image %s: %s", pe.Content, pe.Reason)
	}
	b.report.Skipped = append(b.report.Skipped, skipped...)

	typ := models.MessageTypeImage
	if b.opts.Compressed {
		typ = models.MessageTypeCompressedImage
	}
	left, err := b.w.AddConnection(b.opts.LeftChannel, typ)
	if err != nil {
		return err
	}
	right, err := b.w.AddConnection(b.opts.RightChannel, typ)
	if err != nil {
		return err
	}

	for i, p := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		lmsg, lerr := b.frameMsg(p.Left, p.Stamp, uint32(i), "camera")
		rmsg, rerr := b.frameMsg(p.Right, p.Stamp, uint32(i), "camera")
		if lerr == nil {
			lerr = rerr
		}
		if lerr != nil {
			b.opts.Logger.Warnf("skipping image %s: %s", p.Name, lerr)
			b.report.Skipped = append(b.report.Skipped, &models.ParseError{Content: p.Name, Reason: lerr.Error()})
			b.opts.progress(StageFrames, i+1, len(pairs))
			continue
		}
		if err := b.w.Write(left, p.Stamp, lmsg); err != nil {
			return fmt.Errorf("writing frame %s: %w", p.Name, err)
		}
		if err := b.w.Write(right, p.Stamp, rmsg); err != nil {
			return fmt.Errorf("writing frame %s: %w", p.Name, err)
		}
		b.report.FrameCount++
		b.opts.progress(StageFrames, i+1, len(pairs))
	}
	return nil
}

// frameMsg loads one image file as the configured message type.
func (b *builder) frameMsg(path string, ts int64, seq uint32, frameID string) (any, error) {
	header := models.Header{Seq: seq, Stamp: models.StampFromNanos(ts), FrameID: frameID}
	if b.opts.Compressed {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		format := strings.TrimPrefix(filepath.Ext(path), ".")
		return &models.CompressedImageMsg{Header: header, Format: format, Data: data}, nil
	}

	g, err := imaging.Load(path)
	if err != nil {
		return nil, err
	}
	return MonoMsg(header, g), nil
}

// MonoMsg packs a gray image into a mono8 raw image message.
func MonoMsg(header models.Header, g *image.Gray) *models.ImageMsg {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		copy(data[y*w:(y+1)*w], g.Pix[g.PixOffset(g.Bounds().Min.X, g.Bounds().Min.Y+y):])
	}
	return &models.ImageMsg{
		Header:   header,
		Height:   uint32(h),
		Width:    uint32(w),
		Encoding: "mono8",
		Step:     uint32(w),
		Data:     data,
	}
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
