package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/ppiankov/rxclaims/internal/logging"
	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Version is set at build time with -ldflags "-X github.com/ppiankov/rxclaims/internal/cli.Version=..."
var Version = "v0.1.0"

var (
	cfgFile   string
	envFile   string
	verbose   bool
	logFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rxclaims",
	Short: "rxclaims - evidence-backed pharmaceutical marketing claims",
	Long: `rxclaims turns a free-text request such as
"3 efficacy claims for Paxlovid in high-risk adults" into a small set of
promotional claims, each backed by an exact citation.

Evidence comes from three public sources searched in parallel:
  - OpenFDA prescribing information
  - PubMed, restricted to articles with free full text in PMC
  - ClinicalTrials.gov

Article claims are generated only from full text and every number in a
claim must appear in its source. Relevant abstract-only articles are
listed separately, never used.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rxclaims %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.rxclaims/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in the dotenv file, config file and RXCLAIMS_* variables
func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", envFile, err)
		}
	}

	setDefaults(model.DefaultConfig())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".rxclaims"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("RXCLAIMS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every key of cfg with viper so that environment
// variables reach nested fields on Unmarshal
func setDefaults(cfg *model.Config) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	walkDefaults("", tree)
}

func walkDefaults(prefix string, tree map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			walkDefaults(key, sub)
			continue
		}
		viper.SetDefault(key, v)
	}
}

// loadConfig builds the runtime configuration from defaults, the config file,
// RXCLAIMS_* variables and the well-known provider variables
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyEnvFallbacks(cfg)

	if verbose {
		cfg.LogLevel = "debug"
		cfg.Output.Verbose = true
	}
	return cfg, nil
}

// applyEnvFallbacks fills secrets from the conventional variable names when
// the config left them empty
func applyEnvFallbacks(cfg *model.Config) {
	setIfEmpty := func(dst *string, names ...string) {
		if *dst != "" {
			return
		}
		for _, n := range names {
			if v := os.Getenv(n); v != "" {
				*dst = v
				return
			}
		}
	}

	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		setIfEmpty(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	case "azure":
		setIfEmpty(&cfg.LLM.APIKey, "AZURE_OPENAI_API_KEY")
		setIfEmpty(&cfg.LLM.AzureEndpoint, "AZURE_OPENAI_ENDPOINT")
		setIfEmpty(&cfg.LLM.Model, "AZURE_OPENAI_DEPLOYMENT")
	case "anthropic", "claude":
		setIfEmpty(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	case "ollama":
		setIfEmpty(&cfg.LLM.BaseURL, "OLLAMA_BASE_URL")
	}

	setIfEmpty(&cfg.Sources.NCBIAPIKey, "NCBI_API_KEY")
	setIfEmpty(&cfg.Sources.NCBIEmail, "NCBI_EMAIL")
	setIfEmpty(&cfg.HTTP.HTTPProxy, "HTTP_PROXY", "http_proxy")
	setIfEmpty(&cfg.HTTP.HTTPSProxy, "HTTPS_PROXY", "https_proxy")
	setIfEmpty(&cfg.HTTP.NoProxy, "NO_PROXY", "no_proxy")
}

// checkLLMKey reports a missing API key before any network work starts
func checkLLMKey(cfg *model.Config) error {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "azure":
		if cfg.LLM.APIKey == "" || cfg.LLM.AzureEndpoint == "" {
			return fmt.Errorf("AZURE_OPENAI_API_KEY and AZURE_OPENAI_ENDPOINT must be set")
		}
	case "anthropic", "claude":
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	}
	return nil
}

func newLogger(cfg *model.Config) (*zap.SugaredLogger, error) {
	return logging.New(cfg.LogLevel, cfg.LogFormat)
}
