// Package render turns per-frame semantic segmentation and surface
// normal images into a shaded control video for the transfer function.
// Shading is a simple Lambert term against a fixed light direction;
// frames are piped sequentially into ffmpeg for encoding.
package render

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"
)

const (
	// DefaultFramerate is the output video framerate.
	DefaultFramerate = 24.0
)

// DefaultLightDirection points straight down at the surface.
var DefaultLightDirection = [3]float64{0.0, 0.0, 1.0}

// Options configures video encoding.
type Options struct {
	Framerate      float64
	LightDirection [3]float64
}

func (o Options) withDefaults() Options {
	if o.Framerate <= 0 {
		o.Framerate = DefaultFramerate
	}
	if o.LightDirection == ([3]float64{}) {
		o.LightDirection = DefaultLightDirection
	}
	return o
}

func normalsPath(rootDir, cameraName string, frameIdx int) string {
	return filepath.Join(rootDir, fmt.Sprintf("%s_normals_0_%d.png", cameraName, frameIdx))
}

func segmentationPath(rootDir, cameraName string, frameIdx int) string {
	return filepath.Join(rootDir, fmt.Sprintf("%s_semantic_segmentation_0_%d.png", cameraName, frameIdx))
}

// CheckFFmpegAvailable checks if ffmpeg is available in the system PATH.
func CheckFFmpegAvailable() error {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: video encoding is unavailable")
	}
	log.Debug().Str("path", path).Msg("ffmpeg found")
	return nil
}

// ValidateFrames checks the frame range and verifies that every
// expected normals/segmentation file exists before encoding starts.
func ValidateFrames(rootDir string, startFrame, numFrames int, cameraName string) error {
	if startFrame < 0 {
		return fmt.Errorf("start frame must be non-negative, got %d", startFrame)
	}
	if numFrames <= 0 {
		return fmt.Errorf("number of frames must be positive, got %d", numFrames)
	}
	for idx := startFrame; idx < startFrame+numFrames; idx++ {
		for _, p := range []string{normalsPath(rootDir, cameraName, idx), segmentationPath(rootDir, cameraName, idx)} {
			if _, err := os.Stat(p); err != nil {
				return fmt.Errorf("missing frame at frame index %d: %s", idx, p)
			}
		}
	}
	return nil
}

// EncodeShadedSegmentation shades each segmentation frame by its normal
// map and encodes the sequence into an MP4 at outputPath. All frames
// are validated before any encoding work begins.
func EncodeShadedSegmentation(ctx context.Context, rootDir string, startFrame, numFrames int, cameraName, outputPath string, opts Options) error {
	opts = opts.withDefaults()

	if err := ValidateFrames(rootDir, startFrame, numFrames, cameraName); err != nil {
		return err
	}
	if err := CheckFFmpegAvailable(); err != nil {
		return err
	}

	first, err := loadNRGBA(segmentationPath(rootDir, cameraName, startFrame))
	if err != nil {
		return fmt.Errorf("load first frame: %w", err)
	}
	width := first.Bounds().Dx()
	height := first.Bounds().Dy()

	log.Info().
		Str("rootDir", rootDir).
		Str("camera", cameraName).
		Int("startFrame", startFrame).
		Int("numFrames", numFrames).
		Int("width", width).
		Int("height", height).
		Float64("framerate", opts.Framerate).
		Str("output", outputPath).
		Msg("Encoding shaded segmentation video")

	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", fmt.Sprintf("%g", opts.Framerate),
		"-i", "pipe:0",
		"-frames:v", fmt.Sprintf("%d", numFrames),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		outputPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffmpeg stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	encodeErr := func() error {
		defer stdin.Close()
		for idx := startFrame; idx < startFrame+numFrames; idx++ {
			seg, err := loadNRGBA(segmentationPath(rootDir, cameraName, idx))
			if err != nil {
				return fmt.Errorf("frame %d: %w", idx, err)
			}
			normals, err := loadNRGBA(normalsPath(rootDir, cameraName, idx))
			if err != nil {
				return fmt.Errorf("frame %d: %w", idx, err)
			}
			if seg.Bounds() != normals.Bounds() {
				return fmt.Errorf("frame %d: segmentation %v and normals %v differ in size", idx, seg.Bounds(), normals.Bounds())
			}

			shaded := shadeFrame(seg, normals, opts.LightDirection)
			if err := writeFrame(stdin, shaded); err != nil {
				return fmt.Errorf("frame %d: write to encoder: %w", idx, err)
			}
		}
		return nil
	}()

	waitErr := cmd.Wait()
	if encodeErr != nil {
		return encodeErr
	}
	if waitErr != nil {
		return fmt.Errorf("ffmpeg failed: %w (stderr: %s)", waitErr, strings.TrimSpace(stderr.String()))
	}

	log.Info().Str("output", outputPath).Int("frames", numFrames).Msg("Video encoded")
	return nil
}

// loadNRGBA decodes a PNG and normalizes it to NRGBA regardless of the
// source color model.
func loadNRGBA(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba, nil
	}
	dst := image.NewNRGBA(img.Bounds())
	xdraw.Copy(dst, img.Bounds().Min, img, img.Bounds(), xdraw.Src, nil)
	return dst, nil
}

// shadeFrame applies per-pixel Lambert shading to the segmentation
// using the normal map: shade = 0.5 + dot(normal, light)/2, with the
// normal read as channel/255 and the light direction normalized.
func shadeFrame(seg, normals *image.NRGBA, light [3]float64) *image.NRGBA {
	norm := math.Sqrt(light[0]*light[0] + light[1]*light[1] + light[2]*light[2])
	if norm == 0 {
		norm = 1
	}
	lx, ly, lz := light[0]/norm, light[1]/norm, light[2]/norm

	bounds := seg.Bounds()
	out := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			si := seg.PixOffset(x, y)
			ni := normals.PixOffset(x, y)

			nx := float64(normals.Pix[ni]) / 255.0
			ny := float64(normals.Pix[ni+1]) / 255.0
			nz := float64(normals.Pix[ni+2]) / 255.0
			shade := 0.5 + (nx*lx+ny*ly+nz*lz)*0.5

			oi := out.PixOffset(x, y)
			out.Pix[oi] = clampByte(float64(seg.Pix[si]) * shade)
			out.Pix[oi+1] = clampByte(float64(seg.Pix[si+1]) * shade)
			out.Pix[oi+2] = clampByte(float64(seg.Pix[si+2]) * shade)
			out.Pix[oi+3] = 255
		}
	}
	return out
}

func clampByte(v float64) uint8 {
	if v >= 255 {
		return 255
	}
	if v <= 0 {
		return 0
	}
	return uint8(v)
}

// writeFrame streams the frame's raw RGBA bytes to the encoder.
func writeFrame(w io.Writer, img *image.NRGBA) error {
	_, err := w.Write(img.Pix)
	return err
}
