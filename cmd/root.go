package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/diagno/callsignal/internal/config"
	"github.com/diagno/callsignal/internal/logging"
	"github.com/diagno/callsignal/internal/ui"
	"github.com/diagno/callsignal/internal/version"
)

var (
	settings = config.New()
	cfg      *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "callsignal",
	Short: "WebRTC signaling server for doctor/patient video consultations",
	Long: `callsignal brokers WebRTC peer connections between exactly one doctor and one
patient per meeting. Media flows peer-to-peer; the server only relays offers,
answers and ICE candidates between the two seated participants.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(settings)
		if err != nil {
			return err
		}
		cfg = loaded
		logging.Init(cfg.Log.Level, cfg.Log.Pretty)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("pretty", false, "human readable console logs")
	flags.String("server", "", "base URL of the signaling server (probe, rooms)")

	mustBind("log.level", flags.Lookup("log-level"))
	mustBind("log.pretty", flags.Lookup("pretty"))
	mustBind("probe.server", flags.Lookup("server"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
