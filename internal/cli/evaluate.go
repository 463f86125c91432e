package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/policy"
)

var (
	evalLat      float64
	evalLon      float64
	evalAccuracy float64
	evalSpeed    float64
	evalAltitude float64
	evalProvider string
	evalMocked   bool
	evalTime     int64
	evalMode     string
	evalPolicy   string
	evalJSON     string
	evalFormat   string
)

// errInvalidVerdict makes evaluate exit 1 for a suspicious sample.
var errInvalidVerdict = fmt.Errorf("location is suspicious")

func init() {
	rootCmd.AddCommand(evaluateCmd)
	f := evaluateCmd.Flags()
	f.Float64Var(&evalLat, "lat", 0, "Latitude in degrees")
	f.Float64Var(&evalLon, "lon", 0, "Longitude in degrees")
	f.Float64Var(&evalAccuracy, "accuracy", 0, "Horizontal accuracy in meters")
	f.Float64Var(&evalSpeed, "speed", 0, "Reported speed in m/s")
	f.Float64Var(&evalAltitude, "altitude", 0, "Altitude in meters")
	f.StringVar(&evalProvider, "provider", "", "Provider name (gps, network, fused)")
	f.BoolVar(&evalMocked, "mocked", false, "Sample is flagged as mock")
	f.Int64Var(&evalTime, "time", 0, "Sample time in epoch milliseconds")
	f.StringVar(&evalMode, "mode", string(policy.ModeContinuous), "Evaluation mode (startup|first_pass|continuous)")
	f.StringVar(&evalPolicy, "policy", "", "Path to policy YAML")
	f.StringVar(&evalJSON, "json", "", `Request JSON {"sample":{...},"previous":{...}}, "-" reads stdin`)
	f.StringVarP(&evalFormat, "format", "f", "text", "Output format (text|json)")
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one location sample",
	Long: "Runs the heuristic rules on a single sample given by flags or as JSON.\n" +
		"Only flags that are set count as present; an unset --accuracy skips the\n" +
		"accuracy rule. A previous sample (JSON only) enables the movement rule.\n\n" +
		"Exit code 0 if the sample is valid, 1 if suspicious.",
	RunE: runEvaluate,
}

type evaluateRequest struct {
	Sample   model.RawReading  `json:"sample"`
	Previous *model.RawReading `json:"previous,omitempty"`
	Mode     string            `json:"mode,omitempty"`
}

type evaluateResult struct {
	Valid  bool     `json:"valid"`
	Mode   string   `json:"mode"`
	Issues []string `json:"issues"`
	Lines  []string `json:"lines"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	req, err := evaluateInput(cmd)
	if err != nil {
		return err
	}

	cfg, err := policy.LoadConfig(evalPolicy)
	if err != nil {
		return err
	}

	res := evaluateRaw(cfg, req)
	out := cmd.OutOrStdout()
	switch evalFormat {
	case "json":
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	default:
		if res.Valid {
			fmt.Fprintf(out, "VALID (%s)\n", res.Mode)
		} else {
			fmt.Fprintf(out, "INVALID (%s): %s\n", res.Mode, strings.Join(res.Issues, ", "))
			for _, l := range res.Lines {
				fmt.Fprintf(out, "  - %s\n", l)
			}
		}
	}

	if !res.Valid {
		return errInvalidVerdict
	}
	return nil
}

func evaluateInput(cmd *cobra.Command) (evaluateRequest, error) {
	req := evaluateRequest{Mode: evalMode}

	if evalJSON != "" {
		var data []byte
		if evalJSON == "-" {
			var err error
			if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
				return req, fmt.Errorf("read stdin: %w", err)
			}
		} else {
			data = []byte(evalJSON)
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("parse request JSON: %w", err)
		}
		if cmd.Flags().Changed("mode") || req.Mode == "" {
			req.Mode = evalMode
		}
		return req, nil
	}

	flags := cmd.Flags()
	if !flags.Changed("lat") || !flags.Changed("lon") {
		return req, fmt.Errorf("--lat and --lon are required without --json")
	}
	req.Sample = model.RawReading{
		Latitude:  evalLat,
		Longitude: evalLon,
		Provider:  evalProvider,
		Timestamp: evalTime,
	}
	if flags.Changed("accuracy") {
		req.Sample.Accuracy = model.Float(evalAccuracy)
	}
	if flags.Changed("speed") {
		req.Sample.Speed = model.Float(evalSpeed)
	}
	if flags.Changed("altitude") {
		req.Sample.Altitude = model.Float(evalAltitude)
	}
	if flags.Changed("mocked") {
		req.Sample.Mocked = model.Bool(evalMocked)
	}
	return req, nil
}

func evaluateRaw(cfg *policy.PolicyConfig, req evaluateRequest) evaluateResult {
	mode := policy.ParseMode(req.Mode)
	var prev *model.Sample
	if req.Previous != nil {
		p := model.NewSample(*req.Previous)
		prev = &p
	}
	v := policy.Evaluate(model.NewSample(req.Sample), prev, cfg.ThresholdsFor(mode))

	res := evaluateResult{Valid: v.Valid, Mode: string(mode), Issues: []string{}, Lines: v.Lines()}
	for _, c := range v.Codes() {
		res.Issues = append(res.Issues, string(c))
	}
	if res.Lines == nil {
		res.Lines = []string{}
	}
	return res
}
