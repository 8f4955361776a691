package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は天気検索フォームのUIサーバーを起動することを示す。
	CommandServe Command = "serve"
	// CommandStore は保存エンドポイントを起動することを示す。
	CommandStore Command = "store"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "store":
		return CommandStore
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// RequiresDatabase はコマンドがDATABASE_URLを必要とするかを返す。
func (c Command) RequiresDatabase() bool {
	return c == CommandStore || c == CommandMigrate
}

// healthcheckTarget はヘルスチェック対象ポートの環境変数名とデフォルト値を返す。
// "healthcheck store" の場合は保存エンドポイント、それ以外はフォームサーバーを対象とする。
func healthcheckTarget(args []string) (envKey, defaultPort string) {
	if len(args) > 1 && args[1] == string(CommandStore) {
		return "STORE_PORT", "5000"
	}
	return "SERVER_PORT", "8080"
}
