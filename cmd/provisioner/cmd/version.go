package cmd

import (
	"fmt"
	"runtime"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/provisioner/pkg/archive"
	"github.com/oneconcern/provisioner/pkg/download"
	"github.com/spf13/cobra"
)

// Build information, set with -ldflags at build time
var (
	Version   string
	BuildDate string
	GitCommit string
	GitState  string
)

// VersionInfo describes the build of this binary and what it knows how to provision
type VersionInfo struct {
	Version   string   `json:"version,omitempty"`
	BuildDate string   `json:"buildDate,omitempty"`
	GitCommit string   `json:"gitCommit,omitempty"`
	GitState  string   `json:"gitState,omitempty"`
	GoVersion string   `json:"goVersion"`
	Platform  string   `json:"platform"`
	UserAgent string   `json:"userAgent"`
	Archives  []string `json:"archives"`
}

// NewVersionInfo from build information
func NewVersionInfo() VersionInfo {
	ver := VersionInfo{
		Version:   "dev",
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		UserAgent: download.DefaultUserAgent,
		Archives:  archive.Formats(),
	}
	if Version != "" {
		ver.Version = Version
		ver.GitState = "clean"
	}
	if GitState != "" {
		ver.GitState = GitState
	}
	return ver
}

func (v VersionInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Version: %s\n", v.Version)
	fmt.Fprintf(&b, "Build date: %s\n", v.BuildDate)
	fmt.Fprintf(&b, "Commit: %s\n", v.GitCommit)
	fmt.Fprintf(&b, "Working tree: %s\n", v.GitState)
	fmt.Fprintf(&b, "Go: %s (%s)\n", v.GoVersion, v.Platform)
	fmt.Fprintf(&b, "User agent: %s\n", v.UserAgent)
	fmt.Fprintf(&b, "Archive formats: %s\n", strings.Join(v.Archives, ", "))
	return b.String()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "prints the version of provisioner",
	Long: `Prints the version of provisioner. It includes the following components:
	* Semver (output of git describe --tags)
	* Build Date (date at which the binary was built)
	* Git Commit (the git commit hash this binary was built from)
	* Git State (when dirty there were uncommitted changes during the build)
	* the Go runtime and platform, the user agent sent with downloads and the supported archive formats
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		info := NewVersionInfo()
		if !provisionerFlags.version.json {
			logStdOut("%s", info.String())
			return
		}
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(info, "", "  ")
		if err != nil {
			wrapFatalln("cannot encode version information", err)
			return
		}
		logStdOut("%s\n", b)
	},
}

func init() {
	addVersionJSONFlag(versionCmd)
	rootCmd.AddCommand(versionCmd)
}
