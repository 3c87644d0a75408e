package cmd

import (
	"DeckFM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动DeckFM后端服务",
	Long:  `启动DeckFM的本地HTTP服务，提供命令总线、音频代理和事件推送`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
