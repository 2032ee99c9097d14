package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oneconcern/provisioner/pkg/download"
	"github.com/spf13/cobra"
)

// used to patch over the HTTP client during test
var newHTTPClient = func() *http.Client { return http.DefaultClient }

var fetchCmd = &cobra.Command{
	Use:   "fetch URL",
	Short: "Download and verify a single artifact",
	Long: `Download an artifact with retries, then verify its digest when one is given.

A transport failure is retried with the manifest's backoff policy. A digest mismatch is never retried,
and leaves nothing at the output path.
`,
	Example: `
provisioner fetch https://example.com/tool_1.0_amd64.deb --output /tmp/ --digest sha256:0b14e715...`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m := loadManifest()
		if m == nil {
			return
		}
		policy, err := m.Backoff()
		if err != nil {
			wrapFatalln("invalid backoff policy", err)
			return
		}
		timeout, err := m.DownloadTimeout()
		if err != nil {
			wrapFatalln("invalid download timeout", err)
			return
		}
		if provisionerFlags.fetch.timeout != "" {
			if timeout, err = time.ParseDuration(provisionerFlags.fetch.timeout); err != nil {
				wrapFatalln("invalid --timeout", err)
				return
			}
		}
		task := download.Task{
			URL:     args[0],
			Target:  provisionerFlags.fetch.output,
			Digest:  provisionerFlags.fetch.digest,
			Retries: m.Download.Retries,
			Timeout: timeout,
			Backoff: policy,
		}
		if provisionerFlags.fetch.retries >= 0 {
			task.Retries = provisionerFlags.fetch.retries
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d := download.New(
			download.HTTPClient(newHTTPClient()),
			download.UserAgent(m.Download.UserAgent),
			download.Logger(logger),
		)
		res, err := d.Fetch(ctx, task)
		if err != nil {
			wrapFatalln("download failed", err)
			return
		}
		infoLogger.Printf("%s\t%s\t%d attempt(s)", res.Path, res.Digest, res.Attempts)
	},
}

func init() {
	addOutputFlag(fetchCmd)
	addDigestFlag(fetchCmd)
	addRetriesFlag(fetchCmd)
	addTimeoutFlag(fetchCmd)

	rootCmd.AddCommand(fetchCmd)
}
