package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/geowatch/internal/config"
	"github.com/ppiankov/geowatch/internal/integrity"
	"github.com/ppiankov/geowatch/internal/policy"
	"github.com/ppiankov/geowatch/internal/scenario"
)

var (
	initMode     string
	initForce    bool
	initChecksum bool
)

func init() {
	initCmd.Flags().StringVar(&initMode, "mode", "user", "Config location: user (~/.geowatch) or system (/etc/geowatch)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	initCmd.Flags().BoolVar(&initChecksum, "checksum", false, "Record this binary's sha256 for the host integrity check")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap geowatch configuration",
	Long: `Creates the config directory with a default policy, an example scenario
file and an environment template.

User mode (default):  writes to ~/.geowatch/
System mode:          writes to /etc/geowatch/ (requires root)`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := initConfigDir()
	if err != nil {
		return err
	}

	var created []string

	policyPath := filepath.Join(configDir, "policy.yaml")
	if wrote, err := writeIfMissing(policyPath, policy.DefaultConfigYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, policyPath)
	}

	scenarioContent, err := exampleScenarioYAML()
	if err != nil {
		return fmt.Errorf("generate example scenario: %w", err)
	}
	scenarioPath := filepath.Join(configDir, "scenarios", "example.yaml")
	if wrote, err := writeIfMissing(scenarioPath, scenarioContent); err != nil {
		return err
	} else if wrote {
		created = append(created, scenarioPath)
	}

	envPath := filepath.Join(configDir, "geowatch.env")
	if wrote, err := writeIfMissing(envPath, envTemplate(policyPath)); err != nil {
		return err
	} else if wrote {
		created = append(created, envPath)
	}

	if initChecksum {
		sum, err := integrity.HashSelf()
		if err != nil {
			return err
		}
		sumPath := filepath.Join(configDir, "binary.sha256")
		if wrote, err := writeIfMissing(sumPath, sum+"\n"); err != nil {
			return err
		} else if wrote {
			created = append(created, sumPath)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "geowatch init complete.")
	fmt.Fprintln(out)
	if len(created) > 0 {
		fmt.Fprintln(out, "Created:")
		for _, path := range created {
			fmt.Fprintf(out, "  %s\n", path)
		}
		fmt.Fprintln(out)
	} else {
		fmt.Fprintln(out, "All files already exist (use --force to overwrite).")
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, "Verify:")
	fmt.Fprintln(out, "  geowatch doctor")
	fmt.Fprintf(out, "  geowatch check --scenario '%s' --builtin\n", filepath.Join(configDir, "scenarios", "*.yaml"))
	return nil
}

// initConfigDir returns the configuration directory based on mode.
func initConfigDir() (string, error) {
	switch initMode {
	case "system":
		return "/etc/geowatch", nil
	case "user", "":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".geowatch"), nil
	default:
		return "", fmt.Errorf("unknown mode %q: use 'user' or 'system'", initMode)
	}
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// exampleScenarioYAML renders the built-in scenarios as an editable file.
func exampleScenarioYAML() (string, error) {
	builtin := scenario.Builtin()
	data, err := yaml.Marshal(builtin[1])
	if err != nil {
		return "", err
	}
	header := "# geowatch scenario: samples evaluated in order, each against the previous one.\n" +
		"# expect lists issue codes in rule order; empty means valid.\n" +
		"# Run: geowatch check --scenario <this file>\n\n"
	return header + string(data), nil
}

func envTemplate(policyPath string) string {
	return "# geowatch runtime settings. Copy to .env in the working directory.\n" +
		config.EnvPolicy + "=" + policyPath + "\n" +
		"# " + config.EnvListen + "=:8787\n" +
		"# " + config.EnvSerialPort + "=/dev/serial0\n" +
		"# " + config.EnvSerialBaud + "=9600\n" +
		"# " + config.EnvBroker + "=tcp://localhost:1883\n" +
		"# " + config.EnvADBSerial + "=\n" +
		"# " + config.EnvAuditLog + "=\n" +
		"# " + config.EnvLogLevel + "=info\n" +
		"# " + config.EnvLogFormat + "=text\n"
}
