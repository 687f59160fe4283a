package cli

import (
	"fmt"
	"os"

	"growzzy/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "growzzy",
	Short: "Growzzy automation and optimization engine",
	Long: `Growzzy evaluates marketing automations against campaign metrics,
executes their actions on the ad platforms and produces optimization insights.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults and env apply
		} else {
			fmt.Println("Error reading config file:", err)
		}
	}
}

// loadConfig 读取配置并初始化日志
func loadConfig() (*config.Config, *logrus.Logger) {
	cfg, err := config.Load(nil)
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	logger, err := config.InitLogger(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}
	return cfg, logger
}
