package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Altmerian/jackpot/auth"
	"github.com/Altmerian/jackpot/config"
	"github.com/Altmerian/jackpot/db/postgres"
	"github.com/Altmerian/jackpot/db/redis"
	"github.com/Altmerian/jackpot/httpclient"
	"github.com/Altmerian/jackpot/logging"
	"github.com/Altmerian/jackpot/pkg/jackpot"
	appwire "github.com/Altmerian/jackpot/wire"
)

var (
	version    = getVersion()
	configFile string
	configDir  string
)

// getVersion returns the module version from build info
func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "jackpotd",
		Short: "Jackpot engine service",
		Long: `Jackpot engine service: accepts bets, grows jackpot pools and
decides jackpot wins.

Example:
  jackpotd serve --config configs/config-development.yaml
  jackpotd seed
  jackpotd draw --bet bet-1 --jackpot fixed-jackpot`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: configs/config-<ENV>.yaml)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "configs", "Directory searched for config-<ENV>.yaml")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, Kafka consumers and pool feed",
		RunE:  runServe,
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create configured jackpots that do not exist yet",
		RunE:  runSeed,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the postgres schema",
		RunE:  runMigrate,
	}

	drawCmd := &cobra.Command{
		Use:   "draw",
		Short: "Print the deterministic draw of a bet",
		Long: `Print the value in [0, 1) an evaluation of the bet compares against the
win probability. The same bet and jackpot always give the same draw.`,
		RunE: runDraw,
	}
	drawCmd.Flags().String("bet", "", "Bet id")
	drawCmd.Flags().String("jackpot", "", "Jackpot id")
	_ = drawCmd.MarkFlagRequired("bet")
	_ = drawCmd.MarkFlagRequired("jackpot")

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the write routes",
		RunE:  runToken,
	}
	tokenCmd.Flags().String("user", "", "User id")
	tokenCmd.Flags().String("name", "", "User name")
	_ = tokenCmd.MarkFlagRequired("user")

	betCmd := &cobra.Command{
		Use:   "bet",
		Short: "Contribute a bet to a running service and evaluate it",
		RunE:  runBet,
	}
	betCmd.Flags().String("url", "http://localhost:8080", "Service base URL")
	betCmd.Flags().String("token", "", "Bearer token for the write routes")
	betCmd.Flags().String("jackpot", "", "Jackpot id")
	betCmd.Flags().String("amount", "", "Bet amount")
	betCmd.Flags().String("bet", "", "Bet id (default: random)")
	_ = betCmd.MarkFlagRequired("jackpot")
	_ = betCmd.MarkFlagRequired("amount")

	poolsCmd := &cobra.Command{
		Use:   "pools",
		Short: "Print the pool amounts cached in Redis",
		RunE:  runPools,
	}
	poolsCmd.Flags().String("jackpot", "", "Show the full cached snapshot of one jackpot")

	rootCmd.AddCommand(serveCmd, seedCmd, migrateCmd, drawCmd, tokenCmd, betCmd, poolsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadByEnv(configDir)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rt, cleanup, err := initializeRuntime(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	logger := rt.Logger
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	created, err := rt.Seeder.Seed(ctx, cfg.Jackpots)
	if err != nil {
		return err
	}
	logger.Info().Int("created", created).Int("configured", len(cfg.Jackpots)).Msg("Jackpots seeded")

	rt.Feed.Start()
	rt.App.OnShutdown(rt.Feed.Stop)

	for _, c := range rt.Consumers {
		if err := c.Start(); err != nil {
			return err
		}
		consumer := c
		rt.App.OnShutdown(func() {
			if err := consumer.Stop(); err != nil {
				logger.Error().Err(err).Msg("Error stopping consumer")
			}
		})
	}

	return rt.App.RunWithContext(ctx)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging)

	store, cleanup, err := appwire.ProvideStore(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	created, err := jackpot.NewSeeder(store, jackpot.DefaultRegistry(), logger).Seed(cmd.Context(), cfg.Jackpots)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %d of %d configured jackpots\n", created, len(cfg.Jackpots))
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.StoreDriverPostgres {
		return fmt.Errorf("migrate requires store.driver=%s, got %q", config.StoreDriverPostgres, cfg.Store.Driver)
	}
	logger := logging.New(cfg.Logging)

	store, err := postgres.Open(cfg.Postgres, cfg.Store.LockTimeout, logger)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
	return nil
}

func runDraw(cmd *cobra.Command, _ []string) error {
	betID, _ := cmd.Flags().GetString("bet")
	jackpotID, _ := cmd.Flags().GetString("jackpot")
	fmt.Fprintf(cmd.OutOrStdout(), "%.17f\n", jackpot.Draw(betID, jackpotID))
	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is not configured")
	}
	userID, _ := cmd.Flags().GetString("user")
	name, _ := cmd.Flags().GetString("name")

	token, err := auth.GenerateToken(cfg.JWT.Secret, userID, name, cfg.JWT.Expiration)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runBet(cmd *cobra.Command, _ []string) error {
	baseURL, _ := cmd.Flags().GetString("url")
	token, _ := cmd.Flags().GetString("token")
	jackpotID, _ := cmd.Flags().GetString("jackpot")
	rawAmount, _ := cmd.Flags().GetString("amount")
	betID, _ := cmd.Flags().GetString("bet")

	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", rawAmount, err)
	}
	if betID == "" {
		betID = uuid.NewString()
	}

	client := httpclient.New(httpclient.Config{BaseURL: baseURL, Token: token, Logger: logging.NewDefault()})
	ctx := cmd.Context()

	contribution, err := client.Contribute(ctx, httpclient.Bet{BetID: betID, JackpotID: jackpotID, BetAmount: amount})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "bet %s contributed %s, pool %s\n", betID,
		contribution.ContributionAmount.StringFixed(2), contribution.CurrentJackpotPool.StringFixed(2))

	eval, err := client.Evaluate(ctx, betID, jackpotID)
	if err != nil {
		return err
	}
	if eval.Win {
		fmt.Fprintf(out, "won %s (probability %s), pool reset to %s\n",
			eval.PayoutAmount.StringFixed(2), eval.Probability.StringFixed(6), eval.CurrentJackpotPool.StringFixed(2))
	} else {
		fmt.Fprintf(out, "no win (probability %s)\n", eval.Probability.StringFixed(6))
	}
	return nil
}

func runPools(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is not configured")
	}

	client, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck

	cache := redis.NewPoolCache(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
	out := cmd.OutOrStdout()

	if jackpotID, _ := cmd.Flags().GetString("jackpot"); jackpotID != "" {
		u, err := cache.Get(cmd.Context(), jackpotID)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("no cached snapshot for jackpot %s", jackpotID)
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", u.JackpotID, u.Amount.StringFixed(2), u.Reason, u.Timestamp.Format(time.RFC3339))
		return nil
	}

	pools, err := cache.Pools(cmd.Context())
	if err != nil {
		return err
	}
	ids := lo.Keys(pools)
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(out, "%s\t%s\n", id, pools[id].StringFixed(2))
	}
	return nil
}
