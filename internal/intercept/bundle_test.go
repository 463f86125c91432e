package intercept

import (
	"os"
	"os/exec"
	"strings"
	"testing"
)

const pageCmd = "github.com/ppiankov/geowatch/cmd/geowatch-wasm"

// hostOnly are imports that must never reach the webview bundle.
var hostOnly = []string{
	"github.com/jacobsa/go-serial",
	"github.com/gin-gonic/gin",
	"github.com/prometheus/",
	"github.com/eclipse/paho.mqtt.golang",
	"github.com/gorilla/websocket",
	"github.com/failsafe-go/",
	"github.com/ppiankov/geowatch/internal/provider",
	"github.com/ppiankov/geowatch/internal/report",
	"github.com/ppiankov/geowatch/internal/alert",
	"github.com/ppiankov/geowatch/internal/metrics",
	"github.com/ppiankov/geowatch/internal/bridge/transport",
}

func goTool(t *testing.T, args ...string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("builds the webview bundle")
	}
	bin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go tool not on PATH")
	}
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), "GOOS=js", "GOARCH=wasm")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return string(out)
}

func TestPageBundleCompilesForWasm(t *testing.T) {
	goTool(t, "vet", pageCmd)
}

func TestPageBundleExcludesHostPackages(t *testing.T) {
	out := goTool(t, "list", "-deps", "-f", "{{.ImportPath}}", pageCmd)
	for _, pkg := range strings.Fields(out) {
		for _, banned := range hostOnly {
			if strings.HasPrefix(pkg, banned) {
				t.Errorf("webview bundle imports %s", pkg)
			}
		}
	}
}
