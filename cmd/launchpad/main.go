// Command launchpad はAPIサーバー、バックグラウンドワーカー、マイグレーションを
// サブコマンドで切り替えて起動する単一バイナリ。
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/launchpad/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("launchpad exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
