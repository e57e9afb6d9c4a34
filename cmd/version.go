package cmd

import (
	"fmt"

	"github.com/haierkeys/notegpt-sync-service/internal/app"
	pkgapp "github.com/haierkeys/notegpt-sync-service/pkg/app"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

var versionJSON bool

// versionCmd prints the build info; --json uses the shape /api/health reports
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build info and exit // 打印构建信息并退出",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := pkgapp.VersionInfo{Version: app.Version, GitTag: app.GitTag, BuildTime: app.BuildTime}
		if versionJSON {
			out, err := sonic.Marshal(info)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s v%s (git %s, built %s)\n", app.Name, info.Version, info.GitTag, info.BuildTime)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(versionCmd)
}
