package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/geowatch/internal/config"
	"github.com/ppiankov/geowatch/internal/devopts"
	"github.com/ppiankov/geowatch/internal/integrity"
	"github.com/ppiankov/geowatch/internal/policy"
	"github.com/ppiankov/geowatch/internal/provider"
)

var doctorPolicy string

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorPolicy, "policy", "", "Path to policy YAML")
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check system readiness and diagnose configuration issues",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	return printChecks(cmd.OutOrStdout(), doctorChecks(ctx, doctorPolicyPath()))
}

func doctorPolicyPath() string {
	if doctorPolicy != "" {
		return doctorPolicy
	}
	return config.GetEnv(config.EnvPolicy, policy.DefaultPath())
}

func doctorChecks(ctx context.Context, policyPath string) []checkResult {
	var checks []checkResult

	// 1. Binary location and version.
	if execPath, _ := os.Executable(); execPath != "" {
		checks = append(checks, checkResult{
			label:  "geowatch binary",
			ok:     true,
			detail: fmt.Sprintf("%s (v%s)", execPath, version),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "geowatch binary",
			ok:     false,
			detail: "cannot determine executable path",
		})
	}

	checks = append(checks, integrityCheck())

	// 2. Policy file parses and validates.
	checks = append(checks, policyCheck(policyPath))

	// 3. adb for the developer-options guard.
	if adbPath, err := exec.LookPath("adb"); err == nil {
		enabled, err := devopts.NewADB(config.GetEnv(config.EnvADBSerial, "")).Enabled(ctx)
		switch {
		case err != nil:
			checks = append(checks, checkResult{
				label:  "adb device",
				ok:     false,
				detail: err.Error(),
				fix:    "adb devices",
			})
		case enabled:
			checks = append(checks, checkResult{
				label:  "developer options",
				ok:     false,
				detail: "enabled on device",
				fix:    "disable developer options and USB debugging",
			})
		default:
			checks = append(checks, checkResult{
				label:  "adb device",
				ok:     true,
				detail: adbPath + ", developer options off",
			})
		}
	} else {
		checks = append(checks, checkResult{
			label:  "adb",
			ok:     false,
			detail: "not in PATH",
			fix:    "install android platform-tools",
		})
	}

	// 4. Serial GPS receiver, only when configured.
	if port := config.GetEnv(config.EnvSerialPort, ""); port != "" {
		opts := provider.DefaultSerialOptions()
		opts.Port = port
		opts.Baud = uint(config.GetEnvInt(config.EnvSerialBaud, int(opts.Baud)))
		if rw, err := provider.OpenSerial(opts); err == nil {
			_ = rw.Close()
			checks = append(checks, checkResult{label: "serial GPS", ok: true, detail: port})
		} else {
			checks = append(checks, checkResult{
				label:  "serial GPS",
				ok:     false,
				detail: err.Error(),
				fix:    "check " + config.EnvSerialPort + " and permissions on " + port,
			})
		}
	}

	return checks
}

func integrityCheck() checkResult {
	res, err := integrity.Verify()
	switch {
	case err != nil:
		return checkResult{label: "binary checksum", ok: false, detail: err.Error(), fix: "reinstall geowatch"}
	case res.Skipped:
		return checkResult{label: "binary checksum", ok: true, detail: "not recorded (sha256 " + res.Actual[:16] + ")"}
	}
	return checkResult{label: "binary checksum", ok: true, detail: "verified"}
}

func policyCheck(path string) checkResult {
	if path == "" {
		return checkResult{label: "policy.yaml", ok: false, detail: "cannot determine home directory"}
	}
	if _, err := os.Stat(path); err != nil {
		return checkResult{
			label:  "policy.yaml",
			ok:     false,
			detail: "missing, defaults in use",
			fix:    "geowatch init-policy",
		}
	}
	_, hash, err := policy.LoadConfigWithHash(path)
	if err != nil {
		return checkResult{label: "policy.yaml", ok: false, detail: err.Error(), fix: "edit " + path}
	}
	return checkResult{label: "policy.yaml", ok: true, detail: hash[:19]}
}

func printChecks(out io.Writer, checks []checkResult) error {
	hasFailures := false
	for _, c := range checks {
		mark := "✓"
		if !c.ok {
			mark = "✗"
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-20s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Fprintln(out, line)
	}

	if hasFailures {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "All checks passed.")
	return nil
}
