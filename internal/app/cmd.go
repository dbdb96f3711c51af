package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandSeedAdmins はADMIN_EMAILSのユーザーを管理者に昇格することを示す。
	CommandSeedAdmins Command = "seed-admins"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandToken は指定ユーザーのBearerトークンを発行することを示す。
	CommandToken Command = "token"
	// CommandSession は指定ユーザーのCookieセッションを発行することを示す。
	CommandSession Command = "session"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "seed-admins":
		return CommandSeedAdmins
	case "healthcheck":
		return CommandHealthcheck
	case "token":
		return CommandToken
	case "session":
		return CommandSession
	default:
		return CommandServe
	}
}
