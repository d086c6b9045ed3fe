// Command nvcf-cli invokes an NVIDIA Cloud Function with local media
// inputs and writes the decoded outputs to disk, or encodes a shaded
// segmentation control video from rendered frames.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/nvcf-media-cli/internal/auth"
	"github.com/fpang/nvcf-media-cli/internal/logging"
	"github.com/fpang/nvcf-media-cli/internal/media"
	"github.com/fpang/nvcf-media-cli/internal/nvcf"
	"github.com/fpang/nvcf-media-cli/internal/outputs"
	"github.com/fpang/nvcf-media-cli/internal/render"
)

// invoke flags
var (
	paramFlags    []string
	fileFlags     []string
	outputDirFlag string
	operationFlag string
	baseURLFlag   string
	funcURLFlag   string
	maxAttempts   int
	initialDelay  time.Duration
	maxBackoff    time.Duration
	bundleFlag    bool
)

// encode flags
var (
	framesDirFlag string
	startFrame    int
	numFrames     int
	cameraFlag    string
	encodeOutFlag string
	framerateFlag float64
)

var rootCmd = &cobra.Command{
	Use:   "nvcf-cli",
	Short: "Invoke NVIDIA Cloud Functions with local media inputs",
	Long: `nvcf-cli runs one NVCF invocation end to end: it uploads local files
as assets, submits the function request, polls until the job leaves the
pending state, and decodes the JSON or zip-bundle response into files.

The NGC API token is read from NGC_API_KEY or from the GPG-encrypted
credentials file at ~/.nvcf-media-cli/credentials.gpg.

Examples:
  nvcf-cli invoke --file control.mp4 --param prompt=city_street --param sigma_max=80
  nvcf-cli invoke -f seg.mp4 -p prompt=rainy_night -o ./results --bundle
  nvcf-cli encode --dir ./_isaaclab_out --camera front_cam --start-frame 0 --num-frames 120 -o control.mp4`,
}

var invokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "Upload assets, submit the function, poll, and decode outputs",
	Run:   runInvoke,
}

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a shaded segmentation video from rendered frames",
	Run:   runEncode,
}

func init() {
	invokeCmd.Flags().StringArrayVarP(&paramFlags, "param", "p", nil, "Function parameter as key=value (repeatable, order preserved)")
	invokeCmd.Flags().StringArrayVarP(&fileFlags, "file", "f", nil, "Local file to upload as an input asset (repeatable)")
	invokeCmd.Flags().StringVarP(&outputDirFlag, "output", "o", "_cosmos_out", "Directory to write decoded outputs to")
	invokeCmd.Flags().StringVar(&operationFlag, "operation", "vis_control", "Operation name for the command string")
	invokeCmd.Flags().StringVar(&baseURLFlag, "base-url", "", "Override the NVCF API base URL")
	invokeCmd.Flags().StringVar(&funcURLFlag, "function-url", "", "Override the function endpoint URL")
	invokeCmd.Flags().IntVar(&maxAttempts, "max-attempts", 10, "Maximum pending status polls before giving up")
	invokeCmd.Flags().DurationVar(&initialDelay, "initial-delay", time.Millisecond, "Initial delay between status polls")
	invokeCmd.Flags().DurationVar(&maxBackoff, "max-backoff", 32*time.Second, "Cap on the exponential poll backoff")
	invokeCmd.Flags().BoolVar(&bundleFlag, "bundle", false, "Write outputs as a single zip bundle instead of files")

	encodeCmd.Flags().StringVarP(&framesDirFlag, "dir", "d", "_isaaclab_out", "Directory containing the rendered input frames")
	encodeCmd.Flags().IntVar(&startFrame, "start-frame", 0, "Starting frame index")
	encodeCmd.Flags().IntVar(&numFrames, "num-frames", 0, "Number of frames to encode")
	encodeCmd.Flags().StringVar(&cameraFlag, "camera", "", "Camera name used in the frame filename pattern")
	encodeCmd.Flags().StringVarP(&encodeOutFlag, "output", "o", "control.mp4", "Output path for the encoded video")
	encodeCmd.Flags().Float64Var(&framerateFlag, "framerate", render.DefaultFramerate, "Output video framerate")

	rootCmd.AddCommand(invokeCmd, encodeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// parseParams turns repeated key=value flags into ordered params.
func parseParams(raw []string) ([]nvcf.Param, error) {
	params := make([]nvcf.Param, 0, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", kv)
		}
		params = append(params, nvcf.Param{Key: key, Value: value})
	}
	return params, nil
}

func runInvoke(cmd *cobra.Command, args []string) {
	logging.Init()

	params, err := parseParams(paramFlags)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid --param flag")
	}

	for _, f := range fileFlags {
		media.LogInputFile(f)
	}

	token, err := auth.GetToken()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to retrieve NGC token")
	}

	var opts []nvcf.Option
	if baseURLFlag != "" {
		opts = append(opts, nvcf.WithBaseURL(baseURLFlag))
	}
	if funcURLFlag != "" {
		opts = append(opts, nvcf.WithFunctionURL(funcURLFlag))
	}
	opts = append(opts, nvcf.WithPollSettings(initialDelay, maxAttempts, maxBackoff))
	client := nvcf.NewClient(token, opts...)

	result, err := client.Call(context.Background(), operationFlag, params, fileFlags)
	if err != nil {
		log.Fatal().Err(err).Msg("Invocation failed")
	}

	if result.Output == nil {
		log.Error().
			Int("status", result.StatusCode).
			Str("response", result.ResponseText).
			Msg("Function reported a failure")
		os.Exit(1)
	}

	if bundleFlag {
		bundlePath := outputDirFlag + ".zip"
		if err := outputs.WriteZip(bundlePath, result.Output); err != nil {
			log.Fatal().Err(err).Msg("Failed to write output bundle")
		}
		fmt.Println(bundlePath)
		return
	}

	paths, err := outputs.WriteFiles(outputDirFlag, result.Output)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to write outputs")
	}
	for _, p := range paths {
		fmt.Println(p)
	}
}

func runEncode(cmd *cobra.Command, args []string) {
	logging.Init()

	if cameraFlag == "" {
		log.Fatal().Msg("--camera is required")
	}

	err := render.EncodeShadedSegmentation(
		context.Background(),
		framesDirFlag,
		startFrame,
		numFrames,
		cameraFlag,
		encodeOutFlag,
		render.Options{Framerate: framerateFlag},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Encoding failed")
	}
	fmt.Println(encodeOutFlag)
}
