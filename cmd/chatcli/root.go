package main

import (
	"fmt"
	"os"

	"curasure-chat/config"
	"curasure-chat/pkg/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatcli",
	Short: "Terminal client for the curasure chat relay",
	Long: `chatcli opens a direct or group conversation against a running relay,
prints history and live messages, and sends each line typed on stdin.`,
	SilenceUsage: true,
}

// Execute is called by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "YAML config file (overrides CHAT_CONFIG)")
	flags.String("as", "", "local participant id (overrides CHAT_PARTICIPANT_ID)")
	flags.String("server", "", "relay WebSocket URL")
	flags.String("api", "", "relay HTTP base URL")
	flags.String("log-level", "", "log level")
}

// loadConfig 读取配置文件和环境变量，命令行参数优先
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv("CHAT_CONFIG", path); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	overrides := map[string]*string{
		"as":        &cfg.Client.ParticipantID,
		"server":    &cfg.Client.ServerURL,
		"api":       &cfg.Client.APIBaseURL,
		"log-level": &cfg.Log.Level,
	}
	for flag, dst := range overrides {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			*dst = v
		}
	}
	if cfg.Client.ParticipantID == "" {
		return nil, fmt.Errorf("participant id is required (--as or CHAT_PARTICIPANT_ID)")
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}
