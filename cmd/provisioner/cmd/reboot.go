package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/oneconcern/provisioner/pkg/runner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rebootCommand = runner.Command{Name: "reboot"}

func validReboot(policy string) bool {
	switch policy {
	case rebootAsk, rebootNever, rebootAlways:
		return true
	default:
		return false
	}
}

// maybeReboot reboots the host according to policy. When asking, anything but yes means no.
func maybeReboot(ctx context.Context, cmd *cobra.Command, exec runner.Runner, policy string) bool {
	switch policy {
	case rebootNever:
		return false
	case rebootAsk:
		_, _ = fmt.Fprint(cmd.OutOrStdout(), "Installation complete. Reboot now? (y/N) ")
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
		default:
			infoLogger.Println("Reboot skipped. You may need to log out and in again for some settings to take effect.")
			return false
		}
	}

	logger.Info("rebooting", zap.Stringer("command", rebootCommand))
	if _, err := exec.Run(ctx, rebootCommand); err != nil {
		logger.Error("cannot reboot", zap.Error(err))
		return false
	}
	return true
}
