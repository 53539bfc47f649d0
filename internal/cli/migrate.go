package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leeroybrun/happy-stacks/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Data migrations between modes",
}

var migrateSourceDir string

var migrateLightCmd = &cobra.Command{
	Use:   "light-to-server",
	Short: "Move from happy-cli's local light mode to the stack-managed server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp()
		if err != nil {
			return fail("migrate", err)
		}

		res, err := migrate.LightToServer(cmd.Context(), a.env, migrate.Opts{SourceDir: migrateSourceDir})
		if err != nil {
			return fail("migrate", err)
		}
		if jsonOut {
			return emitJSON(res)
		}
		if res.SecretCopied {
			fmt.Printf("secret copied to %s\n", res.SecretPath)
		}
		fmt.Printf("server database ready: %v\n", res.DBReady)
		if !res.SchemaPresent {
			fmt.Println("schema not migrated yet; run the server's prisma migrations, then re-run this command")
			exitCode = 1
		}
		return nil
	},
}

func init() {
	migrateLightCmd.Flags().StringVar(&migrateSourceDir, "source", "", "light-mode data directory (default ~/.happy)")
	migrateCmd.AddCommand(migrateLightCmd)
}
